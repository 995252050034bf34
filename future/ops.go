package future

// These view operations pass straight through to the underlying
// tensor.View and carry the same pending task forward: a future tensor is
// immutable, so any operation that only changes how its bytes are viewed
// (not their content) is safe to perform before the task has completed.

func (t *Tensor) Narrow(dim, start, length int) (*Tensor, error) {
	v, err := t.result.Narrow(dim, start, length)
	if err != nil {
		return nil, err
	}
	return t.derive(v), nil
}

func (t *Tensor) Slice(dim, low, high, step int) (*Tensor, error) {
	v, err := t.result.Slice(dim, low, high, step)
	if err != nil {
		return nil, err
	}
	return t.derive(v), nil
}

func (t *Tensor) Transpose(perm ...int) (*Tensor, error) {
	v, err := t.result.Transpose(perm...)
	if err != nil {
		return nil, err
	}
	return t.derive(v), nil
}

func (t *Tensor) View(newShape ...int) (*Tensor, error) {
	v, err := t.result.View(newShape...)
	if err != nil {
		return nil, err
	}
	return t.derive(v), nil
}

func (t *Tensor) Flatten(from, to int) (*Tensor, error) {
	v, err := t.result.Flatten(from, to)
	if err != nil {
		return nil, err
	}
	return t.derive(v), nil
}
