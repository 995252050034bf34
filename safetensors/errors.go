// Package safetensors loads and saves archive files in the safetensors
// wire format: an 8-byte little-endian header length, UTF-8 JSON of that
// length describing every tensor's dtype/shape/byte range, followed by
// the raw tensor bytes. Loading mmaps the file and wraps regions of it as
// GPU buffers without copying; the grounding for the header-then-raw-bytes
// parsing shape (sorted offsets, lazy open, one pass over the header) is
// github.com/.../fs/gguf's File type, adapted from GGUF's binary
// key-value section to safetensors' single JSON header.
package safetensors

import "errors"

// ErrBadHeader is returned when the header length prefix or its JSON body
// cannot be parsed.
var ErrBadHeader = errors.New("safetensors: malformed header")

// ErrBindMismatch is returned when a parameter's declared dtype or rank
// does not match the archive entry bound to it.
var ErrBindMismatch = errors.New("safetensors: archive_bind_mismatch")

// ErrNotFound is returned when a requested tensor name has no archive
// entry.
var ErrNotFound = errors.New("safetensors: tensor not found")
