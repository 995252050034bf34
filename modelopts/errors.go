// Package modelopts decodes the two JSON option-file shapes the
// transformer is built from — the reference llama layout and the
// huggingface config.json layout — and normalizes both into one Options
// value the model package constructs layers from.
package modelopts

import "errors"

// ErrUnknownFormat is returned when neither loader's required fields are
// present in the decoded JSON.
var ErrUnknownFormat = errors.New("modelopts: unrecognized options file")
