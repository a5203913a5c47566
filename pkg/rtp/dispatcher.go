package rtp

import (
	"hash/fnv"
	"net"
	"sync"
)

// OriginDispatcher fans work out across a fixed pool of worker
// goroutines, each with its own ordered queue, hashing the origin
// address to a worker so packets from one origin are always processed
// by the same worker in arrival order while different origins run
// concurrently. Grounded on the teacher's constructor-level mention of
// an OrderedMemoryAwareThreadPoolExecutor (the Java ancestor's Netty
// executor), realized here without Netty: a bounded worker pool plus
// per-worker channels is the idiomatic Go equivalent of "ordered per
// key, parallel across keys" (spec.md §5).
type OriginDispatcher struct {
	workers []chan func()
	wg      sync.WaitGroup
	closed  chan struct{}
}

// DefaultDispatchWorkers is the worker-pool size every Session uses.
const DefaultDispatchWorkers = 8

// NewOriginDispatcher starts n worker goroutines, each draining its own
// queue in FIFO order. An n below 1 is replaced by DefaultDispatchWorkers.
func NewOriginDispatcher(n int) *OriginDispatcher {
	if n < 1 {
		n = DefaultDispatchWorkers
	}
	d := &OriginDispatcher{
		workers: make([]chan func(), n),
		closed:  make(chan struct{}),
	}
	for i := range d.workers {
		d.workers[i] = make(chan func(), 256)
		d.wg.Add(1)
		go d.run(d.workers[i])
	}
	return d
}

func (d *OriginDispatcher) run(queue chan func()) {
	defer d.wg.Done()
	for task := range queue {
		task()
	}
}

// Dispatch enqueues task onto the worker selected by hashing origin.
// Packets from the same origin are always handed to the same worker, so
// FIFO delivery per origin holds regardless of cross-origin interleaving.
func (d *OriginDispatcher) Dispatch(origin net.Addr, task func()) {
	idx := d.workerFor(origin)
	select {
	case <-d.closed:
		return
	default:
	}
	d.workers[idx] <- task
}

func (d *OriginDispatcher) workerFor(origin net.Addr) int {
	if origin == nil || len(d.workers) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(origin.String()))
	return int(h.Sum32() % uint32(len(d.workers)))
}

// Stop drains and closes every worker queue, waiting for in-flight tasks
// to finish. Safe to call once.
func (d *OriginDispatcher) Stop() {
	select {
	case <-d.closed:
		return
	default:
		close(d.closed)
	}
	for _, w := range d.workers {
		close(w)
	}
	d.wg.Wait()
}
