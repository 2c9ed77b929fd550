package raster

// lineCache keeps source lines read by an image whose requests move down the
// source as output lines are produced.
type lineCache struct {
	src   Image
	size  int
	lines map[int][]float32
	free  [][]float32
}

func newLineCache(src Image) *lineCache {
	return &lineCache{src: src, size: src.Info().LineSize(), lines: make(map[int][]float32)}
}

func (c *lineCache) get(y int) ([]float32, error) {
	if l, ok := c.lines[y]; ok {
		return l, nil
	}
	var l []float32
	if n := len(c.free); n > 0 {
		l, c.free = c.free[n-1], c.free[:n-1]
	} else {
		l = make([]float32, c.size)
	}
	if err := c.src.ReadLine(y, l); err != nil {
		c.free = append(c.free, l)
		return nil, err
	}
	c.lines[y] = l
	return l, nil
}

// evictBelow drops the lines above row y.
func (c *lineCache) evictBelow(y int) {
	for row, l := range c.lines {
		if row < y {
			c.free = append(c.free, l)
			delete(c.lines, row)
		}
	}
}
