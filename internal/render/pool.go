package render

import (
	"image"
	"sync"
)

// BufferPool provides a pool of reusable canvases to reduce allocations.
// Canvases are keyed by size; Get always returns a fully transparent image.
type BufferPool struct {
	mu      sync.Mutex
	buffers map[image.Point][]*image.RGBA
	limit   int
}

// NewBufferPool creates a BufferPool keeping at most limit idle canvases per
// size. A non-positive limit means 16.
func NewBufferPool(limit int) *BufferPool {
	if limit <= 0 {
		limit = 16
	}
	return &BufferPool{
		buffers: make(map[image.Point][]*image.RGBA),
		limit:   limit,
	}
}

// Get returns a cleared canvas of the given size from the pool or creates a new one.
func (p *BufferPool) Get(width, height int) *image.RGBA {
	size := image.Point{X: width, Y: height}

	p.mu.Lock()
	free := p.buffers[size]
	if n := len(free); n > 0 {
		img := free[n-1]
		p.buffers[size] = free[:n-1]
		p.mu.Unlock()
		clear(img.Pix)
		return img
	}
	p.mu.Unlock()

	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// Put returns a canvas to the pool. The caller must not use img afterwards.
func (p *BufferPool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	size := img.Bounds().Size()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffers[size]) < p.limit {
		p.buffers[size] = append(p.buffers[size], img)
	}
}

// Idle returns the number of pooled canvases of the given size.
func (p *BufferPool) Idle(width, height int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers[image.Point{X: width, Y: height}])
}
