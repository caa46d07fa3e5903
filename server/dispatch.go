package server

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Dispatcher runs connection jobs. Implementations must survive panicking
// jobs and must let every accepted job finish before Stop returns.
type Dispatcher interface {
	// Submit schedules job, or returns ErrDispatcherStopped.
	Submit(job func()) error
	// Stop refuses new jobs and waits for accepted ones. It is idempotent.
	Stop()
	// Pending returns the number of accepted jobs that have not finished.
	Pending() int
}

// WorkerPool runs jobs on a fixed set of goroutines fed by an unbounded FIFO
// queue. Submitting while every worker is busy only enqueues.
type WorkerPool struct {
	// OnPanic, when set before the first Submit, receives values recovered
	// from panicking jobs.
	OnPanic func(v any)

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	stopped  bool
	size     int
	inflight atomic.Int64
	workers  sync.WaitGroup
	stopOnce sync.Once
}

// NewWorkerPool starts size workers. It panics if size is not positive.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		panic("server: worker pool size must be positive")
	}
	p := &WorkerPool{size: size}
	p.cond = sync.NewCond(&p.mu)
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	return p
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

func (p *WorkerPool) Submit(job func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrDispatcherStopped
	}
	p.inflight.Add(1)
	p.queue = append(p.queue, job)
	p.cond.Signal()
	return nil
}

// Stop tells every worker to terminate once the queue is drained and joins
// them all.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.workers.Wait()
}

func (p *WorkerPool) Pending() int {
	return int(p.inflight.Load())
}

func (p *WorkerPool) work() {
	defer p.workers.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		runJob(job, p.OnPanic)
		p.inflight.Add(-1)
	}
}

// TaskGroup runs each job on its own goroutine with no upper bound.
type TaskGroup struct {
	// OnPanic, when set before the first Submit, receives values recovered
	// from panicking jobs.
	OnPanic func(v any)

	mu       sync.Mutex
	group    errgroup.Group
	stopped  bool
	inflight atomic.Int64
}

func NewTaskGroup() *TaskGroup {
	return &TaskGroup{}
}

func (g *TaskGroup) Submit(job func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return ErrDispatcherStopped
	}
	g.inflight.Add(1)
	g.group.Go(func() error {
		defer g.inflight.Add(-1)
		runJob(job, g.OnPanic)
		return nil
	})
	return nil
}

func (g *TaskGroup) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	_ = g.group.Wait()
}

func (g *TaskGroup) Pending() int {
	return int(g.inflight.Load())
}

func runJob(job func(), onPanic func(any)) {
	defer func() {
		if v := recover(); v != nil && onPanic != nil {
			onPanic(v)
		}
	}()
	job()
}
