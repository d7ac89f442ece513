package brickpool

import (
	"sync"

	"github.com/mrjoshuak/go-idx2/internal/volume"
)

// Arena hands out brick buffers of one fixed size. It is owned by a single
// encode or decode session and is safe for concurrent use.
type Arena struct {
	dims volume.V3
	pool sync.Pool
}

// NewArena returns an arena of buffers with the given dims.
func NewArena(dims volume.V3) *Arena {
	a := &Arena{dims: dims}
	a.pool.New = func() any { return volume.NewBuffer(dims) }
	return a
}

// Dims returns the dims of every buffer of the arena.
func (a *Arena) Dims() volume.V3 { return a.dims }

// Get returns a zeroed buffer.
func (a *Arena) Get() *volume.Buffer {
	b := a.pool.Get().(*volume.Buffer)
	clear(b.Data)
	return b
}

// Put returns b to the arena. Buffers of other sizes are dropped.
func (a *Arena) Put(b *volume.Buffer) {
	if b == nil || b.Dims != a.dims {
		return
	}
	a.pool.Put(b)
}
