// Package tensor implements the contiguous storage and multi-dimensional
// view abstraction: a Container owns a byte range, a View describes a
// shape/stride/offset walk over a Container, and views share ownership of
// their Container by reference.
package tensor

import "errors"

// ErrInvalidArgument is returned for shape mismatches, illegal dimensions,
// and illegal slices.
var ErrInvalidArgument = errors.New("tensor: invalid argument")

// ErrNonContiguousView is a more specific ErrInvalidArgument: the requested
// shape cannot be reached from the current strides without a copy.
var ErrNonContiguousView = errors.New("tensor: non-contiguous view")
