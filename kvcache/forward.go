package kvcache

import (
	"fmt"
	"math"

	"github.com/ybubnov/metalchat/future"
)

// ErrEntryTooLarge is returned when a single Step call's input length
// exceeds the cache capacity minus its sink prefix, which no roll can
// make room for.
var ErrEntryTooLarge = fmt.Errorf("kvcache: entry length exceeds cache capacity")

// Step is the result of writing one attention step's keys/values into the
// cache: the usable prefix to run attention against, and (for L>1) the
// additive causal mask to add to the attention scores.
type Step struct {
	Keys, Values *future.Tensor
	Mask         *future.Tensor
	EndPos       int
}

// Step implements the sink-cache write procedure: write in place when
// there is room, otherwise roll (preserving the sink prefix) and retry,
// then build a causal mask when more than one position was written.
func (c *Cache) Step(newKeys, newValues *future.Tensor) (*Step, error) {
	length := newKeys.GetNoWait().Size(1)
	if length > c.cacheSize-c.sinkLen {
		return nil, ErrEntryTooLarge
	}

	if c.startPos >= c.cacheSize || c.startPos+length > c.cacheSize {
		if err := c.roll(length); err != nil {
			return nil, err
		}
	}

	keys, err := c.write(c.keys, newKeys, c.startPos, length)
	if err != nil {
		return nil, err
	}
	values, err := c.write(c.values, newValues, c.startPos, length)
	if err != nil {
		return nil, err
	}
	c.keys, c.values = keys, values

	endPos := c.startPos + length
	usedKeys, err := keys.Narrow(1, 0, endPos)
	if err != nil {
		return nil, err
	}
	usedValues, err := values.Narrow(1, 0, endPos)
	if err != nil {
		return nil, err
	}

	var mask *future.Tensor
	if length > 1 {
		mask, err = c.buildMask(length, endPos)
		if err != nil {
			return nil, err
		}
	}

	c.startPos = endPos
	return &Step{Keys: usedKeys, Values: usedValues, Mask: mask, EndPos: endPos}, nil
}

// buildMask constructs an additive causal mask (length, endPos) whose
// upper triangle above offset endPos-length is -inf and zero elsewhere,
// computed host-side and uploaded once per multi-token step.
func (c *Cache) buildMask(length, endPos int) (*future.Tensor, error) {
	offset := endPos - length
	data := make([]float32, length*endPos)
	for i := 0; i < length; i++ {
		for j := offset + i + 1; j < endPos; j++ {
			data[i*endPos+j] = float32(math.Inf(-1))
		}
	}
	return c.runtime.UploadF32(data, length, endPos)
}
