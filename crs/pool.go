package crs

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

type foreverCache[V any] struct {
	sf    singleflight.Group
	mu    sync.Mutex
	cache map[string]V
}

func newForeverCache[V any]() *foreverCache[V] {
	return &foreverCache[V]{cache: make(map[string]V)}
}

func (c *foreverCache[V]) get(k string, fallback func() (V, error)) (V, error) {
	c.mu.Lock()
	v, ok := c.cache[k]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(k, func() (any, error) {
		return fallback()
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v = vAny.(V)

	c.mu.Lock()
	c.cache[k] = v
	c.mu.Unlock()
	return v, nil
}

func (c *foreverCache[V]) drain() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]V, 0, len(c.cache))
	for k, v := range c.cache {
		out = append(out, v)
		delete(c.cache, k)
	}
	return out
}

// Pool memoizes systems and transforms. Entries are built on first request
// and kept until Cleanup.
type Pool struct {
	systems    *foreverCache[*CRS]
	transforms *foreverCache[*Transform]

	mu       sync.RWMutex
	fallback Resolver
}

func NewPool() *Pool {
	return &Pool{
		systems:    newForeverCache[*CRS](),
		transforms: newForeverCache[*Transform](),
	}
}

// DefaultPool is the process wide pool used by Get and BBox.Reproject.
var DefaultPool = NewPool()

// SetFallback installs the resolver consulted for codes missing from the
// builtin registry.
func (p *Pool) SetFallback(r Resolver) {
	p.mu.Lock()
	p.fallback = r
	p.mu.Unlock()
}

// Get returns the system registered under code.
func (p *Pool) Get(code string) (*CRS, error) {
	code = Normalize(code)
	if code == "" {
		return nil, fmt.Errorf("empty crs code")
	}
	return p.systems.get(code, func() (*CRS, error) {
		if c := builtin(code); c != nil {
			return c, nil
		}
		p.mu.RLock()
		fb := p.fallback
		p.mu.RUnlock()
		if fb == nil {
			return nil, fmt.Errorf("unknown crs %q", code)
		}
		c, err := fb(code)
		if err != nil {
			return nil, fmt.Errorf("resolve crs %q: %w", code, err)
		}
		return c, nil
	})
}

// Transform returns the transform from one system to another.
func (p *Pool) Transform(from, to *CRS) (*Transform, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("transform between %q and %q: missing crs", from.Code(), to.Code())
	}
	return p.transforms.get(from.Code()+"->"+to.Code(), func() (*Transform, error) {
		return &Transform{from: from, to: to}, nil
	})
}

// Cleanup releases every pooled system and transform.
func (p *Pool) Cleanup() {
	p.transforms.drain()
	for _, c := range p.systems.drain() {
		c.close()
	}
}

// Get returns the system registered under code in the default pool.
func Get(code string) (*CRS, error) {
	return DefaultPool.Get(code)
}

// SetFallback installs r on the default pool.
func SetFallback(r Resolver) {
	DefaultPool.SetFallback(r)
}

// Cleanup drains the default pool.
func Cleanup() {
	DefaultPool.Cleanup()
}
