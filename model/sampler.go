package model

import (
	"encoding/binary"

	"github.com/ybubnov/metalchat/future"
	"github.com/ybubnov/metalchat/ml/metal"
)

// Sampler reduces a (1,1,V) logits tensor to a single next-token id, the
// last stage of the stack after the output head.
type Sampler interface {
	Sample(logits *future.Tensor) (int32, error)
}

// readScalarI32 reads a single int32 out of a tensor already known to
// hold exactly one element at index 0, waiting for it to be ready first.
func readScalarI32(t *future.Tensor) (int32, error) {
	v, err := t.Get()
	if err != nil {
		return 0, err
	}
	b := v.Bytes()
	return int32(binary.LittleEndian.Uint32(b[:4])), nil
}

// ArgmaxSampler always picks the highest-probability token (temperature
// 0, top-p disabled), used for deterministic decoding.
type ArgmaxSampler struct {
	runtime *metal.Runtime
}

func NewArgmaxSampler(rt *metal.Runtime) *ArgmaxSampler {
	return &ArgmaxSampler{runtime: rt}
}

func (s *ArgmaxSampler) Sample(logits *future.Tensor) (int32, error) {
	_, indices, err := s.runtime.Sort(logits)
	if err != nil {
		return 0, err
	}
	top, err := indices.Narrow(indices.GetNoWait().Rank()-1, 0, 1)
	if err != nil {
		return 0, err
	}
	return readScalarI32(top)
}

// NucleusSampler draws from the smallest set of tokens whose cumulative
// probability exceeds P, after scaling logits by Temperature — the
// top-p pipeline composed in ml/metal.Runtime.NucleusSample.
type NucleusSampler struct {
	runtime     *metal.Runtime
	Temperature float32
	P           float32
	Seed        uint64
}

func NewNucleusSampler(rt *metal.Runtime, temperature, p float32, seed uint64) *NucleusSampler {
	return &NucleusSampler{runtime: rt, Temperature: temperature, P: p, Seed: seed}
}

func (s *NucleusSampler) Sample(logits *future.Tensor) (int32, error) {
	lv := logits.GetNoWait()
	rows, err := logits.View(-1, lv.Size(lv.Rank()-1))
	if err != nil {
		return 0, err
	}
	sampled, err := s.runtime.NucleusSample(rows, s.Temperature, s.P, 1, s.Seed)
	if err != nil {
		return 0, err
	}
	return readScalarI32(sampled)
}
