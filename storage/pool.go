package storage

import (
	"context"
	"io"
	"sync"

	"github.com/airbusgeo/ntiff/internal/errs"
	"github.com/airbusgeo/ntiff/internal/log"
	"go.uber.org/zap"
)

// Context gives access to the objects of one kind of store.
type Context interface {
	Open(ctx context.Context, u URI) (Reader, error)
	Create(ctx context.Context, u URI) (io.WriteCloser, error)
	Close() error
}

type PoolOption func(*Pool)

// BlockSize sets the size of the blocks cached by object store readers
// (e.g. "512k").
func BlockSize(s string) PoolOption {
	return func(p *Pool) { p.blockSize = s }
}

// NumCachedBlocks sets the number of blocks kept by object store readers.
func NumCachedBlocks(n int) PoolOption {
	return func(p *Pool) { p.numBlocks = n }
}

// Pool hands out storage contexts, created on first use and kept until
// Close.
type Pool struct {
	mu        sync.Mutex
	contexts  map[Kind]Context
	blockSize string
	numBlocks int
}

func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		contexts:  map[Kind]Context{File: fileContext{}},
		blockSize: "512k",
		numBlocks: 1000,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Context returns the context serving kind.
func (p *Pool) Context(ctx context.Context, kind Kind) (Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.contexts[kind]; ok {
		return c, nil
	}
	switch kind {
	case GS:
		c, err := newGSContext(ctx, p.blockSize, p.numBlocks)
		if err != nil {
			return nil, errs.Resourcef("cannot add %s storage context: %w", kind, err)
		}
		p.contexts[kind] = c
		return c, nil
	default:
		return nil, errs.Resourcef("cannot add %s storage context: not supported by this build", kind)
	}
}

// Open opens the object at uri for reading.
func (p *Pool) Open(ctx context.Context, uri string) (Reader, error) {
	u, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	c, err := p.Context(ctx, u.Kind)
	if err != nil {
		return nil, err
	}
	r, err := c.Open(ctx, u)
	if err != nil {
		return nil, errs.Inputf("open %s: %w", u, err)
	}
	return r, nil
}

// Create opens the object at uri for writing. The object is complete once the
// returned writer is closed without error.
func (p *Pool) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	u, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	c, err := p.Context(ctx, u.Kind)
	if err != nil {
		return nil, err
	}
	w, err := c.Create(ctx, u)
	if err != nil {
		return nil, errs.Outputf("create %s: %w", u, err)
	}
	return w, nil
}

// Abort discards an object being written by a writer returned by Create.
func Abort(w io.WriteCloser) {
	if a, ok := w.(interface{ Abort() error }); ok {
		a.Abort()
		return
	}
	w.Close()
}

// Close releases every context of the pool.
func (p *Pool) Close(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for kind, c := range p.contexts {
		if err := c.Close(); err != nil {
			log.Logger(ctx).Warn("close storage context", zap.String("kind", string(kind)), zap.Error(err))
		}
		delete(p.contexts, kind)
	}
}
