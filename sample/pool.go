// Package sample implements sfz.SamplePool: a bounded worker pool that
// decodes WAV files in the background and de-duplicates decoded buffers
// across every region that references the same path, grounded on the
// command/result worker-pool shape used for multithreaded rendering
// elsewhere in this engine's lineage.
package sample

import (
	"sync"
	"time"

	"github.com/mhschmieder/sfizz-juce"
)

type entry struct {
	done chan struct{}
	buf  *Buffer
	err  error
}

// Pool is a sfz.SamplePool backed by a fixed number of decode workers.
type Pool struct {
	mu    sync.Mutex
	cache map[string]*entry
	jobs  chan string
}

// NewPool starts numWorkers decode goroutines. A typical host uses
// runtime.GOMAXPROCS(0) or a small fixed number such as 2.
func NewPool(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &Pool{
		cache: make(map[string]*entry),
		jobs:  make(chan string, numWorkers*4),
	}
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for id := range p.jobs {
		p.mu.Lock()
		e := p.cache[id]
		p.mu.Unlock()
		e.buf, e.err = decodeWAV(id)
		close(e.done)
	}
}

// getOrStart returns the cache entry for id, enqueueing a decode job the
// first time id is seen.
func (p *Pool) getOrStart(id string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.cache[id]; ok {
		return e
	}
	e := &entry{done: make(chan struct{})}
	p.cache[id] = e
	p.jobs <- id
	return e
}

// Prefetch returns the decoded buffer for id if it is already resident,
// or nil if it has never been requested or is still decoding. It never
// blocks, so the render thread can call it directly.
func (p *Pool) Prefetch(id string) sfz.SampleBuffer {
	p.mu.Lock()
	e, ok := p.cache[id]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		if e.buf == nil {
			return nil
		}
		return e.buf
	default:
		return nil
	}
}

// LoadAsync ensures id is being decoded (or already is) and arranges for
// callback to run, off the render thread, once the buffer is ready.
// maxFrames is accepted for interface symmetry with a streaming pool but
// unused here: whole-instrument samples are small enough that decoding
// the full file once and sharing it is simpler than tracking a distinct
// partial buffer per truncation length.
func (p *Pool) LoadAsync(id string, maxFrames int, callback func(sfz.SampleBuffer, error)) sfz.LoadHandle {
	e := p.getOrStart(id)
	h := &loadHandle{cancel: make(chan struct{})}
	go func() {
		select {
		case <-e.done:
			select {
			case <-h.cancel:
			default:
				if e.buf != nil {
					callback(e.buf, e.err)
				} else {
					callback(nil, e.err)
				}
			}
		case <-h.cancel:
		}
	}()
	return h
}

type loadHandle struct {
	cancel chan struct{}
	once   sync.Once
}

// Cancel unblocks the waiting goroutine so its callback never fires.
// Because the underlying decode itself is shared and cannot be
// interrupted mid-flight, Cancel always returns promptly regardless of
// timeout — it only suppresses the callback, it does not stop the disk
// read.
func (h *loadHandle) Cancel(timeout time.Duration) bool {
	h.once.Do(func() { close(h.cancel) })
	return true
}
