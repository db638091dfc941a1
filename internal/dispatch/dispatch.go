// Package dispatch runs remote jobs asynchronously on a bounded worker pool.
//
// Jobs carry a read/write classification and a priority. Priorities order
// otherwise-ready work; they never preempt or cancel anything. Writes are
// serialized per entity: at most one write job per entity identity is in
// flight at any time, and writes for the same entity run in submission order.
// Reads run whenever a worker is free.
package dispatch

import (
	"container/heap"
	"context"
	"sync"

	"notesync/internal/logging"
)

// Priority orders ready jobs. Lower value runs first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Class separates reads from writes. Only writes are serialized per entity.
type Class int

const (
	ClassRead Class = iota
	ClassWrite
)

// EntityRef identifies the entity a job operates on, for write serialization.
type EntityRef struct {
	Kind string
	GUID string
}

// Job is one remote operation. Run performs the operation and delivers its
// result exactly once (typically by calling back into the store); the
// dispatcher only schedules it.
type Job struct {
	Entity   EntityRef
	Class    Class
	Priority Priority
	// Label names the operation in logs, e.g. "fetchNotes" or "saveNote".
	Label string
	Run   func(ctx context.Context)
}

type readyItem struct {
	job Job
	seq uint64
}

type readyHeap []readyItem

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)   { *h = append(*h, x.(readyItem)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Dispatcher schedules jobs onto worker goroutines.
type Dispatcher struct {
	log logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	ready   readyHeap
	writes  map[EntityRef][]Job
	seq     uint64
	pending int
	idle    *sync.Cond
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a dispatcher with the given number of workers.
func New(log logging.Logger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		log:    log,
		writes: map[EntityRef][]Job{},
		ctx:    ctx,
		cancel: cancel,
	}
	d.cond = sync.NewCond(&d.mu)
	d.idle = sync.NewCond(&d.mu)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue submits a job. It never blocks the caller; the job runs later on a
// worker. Enqueue after Close drops the job.
func (d *Dispatcher) Enqueue(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn(d.ctx, "dispatcher closed, dropping job", "label", job.Label)
		return
	}
	d.pending++
	if job.Class == ClassWrite {
		queue := append(d.writes[job.Entity], job)
		d.writes[job.Entity] = queue
		if len(queue) > 1 {
			// A write for this entity is already ready or running; this one
			// waits its turn.
			return
		}
	}
	d.pushReady(job)
	d.cond.Signal()
}

func (d *Dispatcher) pushReady(job Job) {
	d.seq++
	heap.Push(&d.ready, readyItem{job: job, seq: d.seq})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for len(d.ready) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.ready) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		item := heap.Pop(&d.ready).(readyItem)
		d.mu.Unlock()

		d.log.Debug(d.ctx, "running job", "label", item.job.Label,
			"priority", item.job.Priority, "guid", item.job.Entity.GUID)
		item.job.Run(d.ctx)

		d.mu.Lock()
		if item.job.Class == ClassWrite {
			d.finishWrite(item.job.Entity)
		}
		d.pending--
		if d.pending == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}
}

// finishWrite releases the per-entity write slot and promotes the next queued
// write, if any. Caller holds d.mu.
func (d *Dispatcher) finishWrite(ref EntityRef) {
	queue := d.writes[ref]
	if len(queue) <= 1 {
		delete(d.writes, ref)
		return
	}
	queue = queue[1:]
	d.writes[ref] = queue
	d.pushReady(queue[0])
	d.cond.Signal()
}

// Wait blocks until no job is queued or running. Intended for shutdown paths
// and tests.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

// Close stops accepting jobs, lets queued and in-flight jobs finish, then
// releases the workers. There is no mid-flight cancellation.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	for d.pending > 0 {
		d.idle.Wait()
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
}
