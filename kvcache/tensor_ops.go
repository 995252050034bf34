package kvcache

import "github.com/ybubnov/metalchat/future"

// write copies entry into full's [startPos, startPos+length) window along
// dim 1, returning a future over the whole cache that depends on both the
// prior cache state and this write.
func (c *Cache) write(full, entry *future.Tensor, startPos, length int) (*future.Tensor, error) {
	dst, err := full.Narrow(1, startPos, length)
	if err != nil {
		return nil, err
	}
	writeFut, err := c.runtime.Copy(dst, entry)
	if err != nil {
		return nil, err
	}
	return future.Join(full.GetNoWait(), full, writeFut), nil
}

// roll replaces keys/values with a freshly allocated cache holding the
// sink prefix verbatim and the remainder rolled left by length, per the
// sink-cache step 2 procedure; it resets startPos to cacheSize-length.
func (c *Cache) roll(length int) error {
	newKeys, err := c.rollOne(c.keys, length)
	if err != nil {
		return err
	}
	newValues, err := c.rollOne(c.values, length)
	if err != nil {
		return err
	}
	c.keys, c.values = newKeys, newValues
	c.startPos = c.cacheSize - length
	return nil
}

func (c *Cache) rollOne(full *future.Tensor, length int) (*future.Tensor, error) {
	fresh, err := c.runtime.Zeros(c.dtype, c.batch, c.cacheSize, c.nKVHeads, c.headDim)
	if err != nil {
		return nil, err
	}

	sinkSrc, err := full.Narrow(1, 0, c.sinkLen)
	if err != nil {
		return nil, err
	}
	sinkDst, err := fresh.Narrow(1, 0, c.sinkLen)
	if err != nil {
		return nil, err
	}
	sinkWrite, err := c.runtime.Copy(sinkDst, sinkSrc)
	if err != nil {
		return nil, err
	}

	remLen := c.cacheSize - c.sinkLen
	remSrc, err := full.Narrow(1, c.sinkLen, remLen)
	if err != nil {
		return nil, err
	}
	rolled, err := c.runtime.Roll(remSrc, -length, 1)
	if err != nil {
		return nil, err
	}

	remDst, err := fresh.Narrow(1, c.sinkLen, remLen)
	if err != nil {
		return nil, err
	}
	remWrite, err := c.runtime.Copy(remDst, rolled)
	if err != nil {
		return nil, err
	}

	return future.Join(fresh.GetNoWait(), fresh, sinkWrite, remWrite), nil
}
