package mem

import (
	"sync"
)

// BufferPool recycles Buffers. Buffers are reset when taken from the pool.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool() *BufferPool {
	p := &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return &Buffer{}
			},
		},
	}

	return p
}

func (p *BufferPool) Get() *Buffer {
	buf := p.pool.Get().(*Buffer)
	buf.Reset()

	return buf
}

func (p *BufferPool) Put(buf *Buffer) {
	// Don't keep huge buffers around
	if buf.data.Cap() > maxPooledCapacity {
		return
	}

	p.pool.Put(buf)
}

const maxPooledCapacity = 1 << 20

var DefaultBufferPool *BufferPool

func init() {
	DefaultBufferPool = NewBufferPool()
}

func Get() *Buffer {
	return DefaultBufferPool.Get()
}

func Put(buf *Buffer) {
	DefaultBufferPool.Put(buf)
}
