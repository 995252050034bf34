package decoder

import "errors"

// ErrContextExceeded is returned when flushing the pending buffer (or
// generating one more token) would carry the position counter past the
// interpreter's configured maxPos, mirroring the bound
// interpreter::_M_max_pos enforces in the original implementation.
var ErrContextExceeded = errors.New("decoder: context length exceeded")
