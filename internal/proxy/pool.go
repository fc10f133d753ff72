package proxy

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

const tunnelBufferSize = 4096

var buffers = newBufferPool(tunnelBufferSize)

type bufferPool struct {
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	bp := &bufferPool{}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *bufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return *b
}

func (p *bufferPool) Put(b []byte) {
	// This &b forces a 32-byte heap allocation.  There's no way to avoid this when converting a non-pointer to an interface{}.
	p.pool.Put(&b)
}

// Executor runs a unit of work concurrently.
type Executor interface {
	Go(f func())
}

// Pool runs client sessions and tunnel copies. Sessions are bounded by the
// limit passed to NewPool; tunnel copies are not, since refusing one would
// strand a session that has already been admitted.
type Pool struct {
	sessions errgroup.Group
	copies   sync.WaitGroup
}

// NewPool returns a Pool admitting at most maxSessions concurrent sessions,
// or any number if maxSessions <= 0.
func NewPool(maxSessions int) *Pool {
	p := &Pool{}
	if maxSessions > 0 {
		p.sessions.SetLimit(maxSessions)
	}
	return p
}

// Submit starts f as a session unless the pool is full, in which case it
// returns false without running f.
func (p *Pool) Submit(f func()) bool {
	return p.sessions.TryGo(func() error {
		f()
		return nil
	})
}

// Go runs f unconditionally.
func (p *Pool) Go(f func()) {
	p.copies.Go(f)
}

// Wait blocks until every session and copy has returned or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = p.sessions.Wait()
		p.copies.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
