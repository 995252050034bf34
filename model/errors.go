// Package model implements the transformer layer graph: embedding,
// RMSNorm, feed-forward, grouped-query attention with rotary positional
// encoding and a rolling sink KV cache, stacked transformer blocks, and
// the output projection feeding the sampler.
package model

import "errors"

// ErrUnsupportedModel is returned when an options file names a shape
// this package's fixed block/attention layout cannot represent.
var ErrUnsupportedModel = errors.New("model: model not supported")
