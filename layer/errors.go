// Package layer implements the parameterized layer graph every model
// architecture is built from: a Basic layer holding an insertion-ordered
// parameter table and child-layer table, a reference-counted Indirect
// handle, and an Array of integer-named children. Parameters and
// children resolve by dotted path through an explicit ordered map,
// rather than struct-tag-and-reflection field population, since Go
// lacks the static typing that kind of population relies on.
package layer

import "errors"

// ErrParameterNotRegistered is returned when a dotted path does not
// resolve to a registered parameter slot.
var ErrParameterNotRegistered = errors.New("layer: parameter_not_registered")

// ErrParameterTypeMismatch is returned when SetParameter's tensor does
// not match the registered slot's dtype or rank.
var ErrParameterTypeMismatch = errors.New("layer: parameter_type_mismatch")

// ErrChildNotRegistered is returned when a dotted path's child segment
// does not resolve to a registered child layer.
var ErrChildNotRegistered = errors.New("layer: child_not_registered")
