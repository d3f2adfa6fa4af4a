package codec

import (
	"bytes"
	"sync"

	"github.com/harliandi/sizefit/pkg/metrics"
)

// Buffer tiers. Probe outputs are usually near the target size, so the
// caller's target is a good hint for which tier to draw from.
const (
	smallBuffer  = 64 * 1024
	mediumBuffer = 512 * 1024
	largeBuffer  = 5 * 1024 * 1024
)

type bufferTier struct {
	name string
	size int
	pool sync.Pool
}

// BufferPool hands out encode buffers in three size tiers.
type BufferPool struct {
	tiers [3]*bufferTier
}

// NewBufferPool returns an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{tiers: [3]*bufferTier{
		{name: "small", size: smallBuffer},
		{name: "medium", size: mediumBuffer},
		{name: "large", size: largeBuffer},
	}}
}

var defaultBuffers = NewBufferPool()

func (p *BufferPool) tierFor(hint int) *bufferTier {
	for _, t := range p.tiers {
		if hint <= t.size {
			return t
		}
	}
	return p.tiers[len(p.tiers)-1]
}

// Get returns an empty buffer with capacity for at least hint bytes when
// hint fits a tier.
func (p *BufferPool) Get(hint int) *bytes.Buffer {
	t := p.tierFor(hint)
	if v := t.pool.Get(); v != nil {
		metrics.RecordPoolHit(t.name)
		return v.(*bytes.Buffer)
	}
	metrics.RecordPoolMiss(t.name)
	return bytes.NewBuffer(make([]byte, 0, t.size))
}

// Put returns buf to the tier matching its capacity. Buffers that grew
// far past the largest tier are left to the GC.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > 2*largeBuffer {
		return
	}
	buf.Reset()
	for i := len(p.tiers) - 1; i >= 0; i-- {
		if buf.Cap() >= p.tiers[i].size {
			p.tiers[i].pool.Put(buf)
			return
		}
	}
}

// copyOut returns a fresh slice holding buf's contents so the buffer
// can go back to the pool.
func copyOut(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
