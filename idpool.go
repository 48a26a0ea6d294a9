package tracecap

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
)

// idPool hands out pre-generated hex IDs to amortize crypto/rand overhead.
type idPool struct {
	ids      chan string
	stopCh   chan struct{}
	fallback atomic.Uint64
	size     int
	once     sync.Once
}

// newIDPool creates a pool of IDs that are size bytes long before hex encoding.
func newIDPool(size, capacity int) *idPool {
	p := &idPool{
		ids:    make(chan string, capacity),
		stopCh: make(chan struct{}),
		size:   size,
	}
	go p.refill()
	return p
}

// Get retrieves an ID from the pool or generates one if the pool is empty.
func (p *idPool) Get() string {
	select {
	case id := <-p.ids:
		return id
	default:
		return p.generate()
	}
}

func (p *idPool) generate() string {
	buf := make([]byte, p.size)
	if _, err := rand.Read(buf); err != nil {
		// Counter-based IDs stay unique within the process.
		n := strconv.FormatUint(p.fallback.Add(1), 16)
		return hex.EncodeToString(buf)[:2*p.size-len(n)] + n
	}
	return hex.EncodeToString(buf)
}

func (p *idPool) refill() {
	for {
		select {
		case p.ids <- p.generate():
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the refill goroutine. Get keeps working afterwards.
func (p *idPool) Close() {
	p.once.Do(func() {
		close(p.stopCh)
	})
}
