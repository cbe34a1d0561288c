// Package pool implements the fixed-size, panic-isolated worker pool
// spec §4.D describes: a shared-queue ThreadPool that accepts fire-and-
// forget jobs and keeps exactly n workers alive for its whole lifetime no
// matter what those jobs do.
package pool

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	metrics "github.com/rcrowley/go-metrics"
)

// Job is a unit of work submitted to a ThreadPool.
type Job func()

// ThreadPool is the contract spec §4.D describes. New spawns exactly n
// workers; Spawn enqueues a job without blocking on its completion.
type ThreadPool interface {
	Spawn(job Job)
	Shutdown()
}

// SharedQueuePool is the hard target of spec §4.D: a bounded set of
// workers pulling from one shared channel.
type SharedQueuePool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	logger  *log.Logger
	workers metrics.Gauge
}

// New spawns exactly n worker goroutines reading off a shared job queue.
// A goroutine that recovers from a panic simply keeps running its for
// loop, so New never needs a restart path, only a recover() around each
// job.
func New(n int, logger *log.Logger) (*SharedQueuePool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", n)
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	p := &SharedQueuePool{
		jobs:    make(chan Job),
		logger:  logger,
		workers: metrics.GetOrRegisterGauge("kvsd.pool.workers", metrics.DefaultRegistry),
	}
	p.workers.Update(int64(n))
	p.wg.Add(n)
	for id := 0; id < n; id++ {
		go p.runWorker(id)
	}
	return p, nil
}

func (p *SharedQueuePool) runWorker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.runJob(id, job)
	}
}

// runJob executes job under a catch-all guard so a panic inside it never
// propagates out of the worker loop (spec §4.D's central correctness
// property: the pool's live-worker count never drops because of a buggy
// handler).
func (p *SharedQueuePool) runJob(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("worker %d recovered from panic: %v", id, r)
		}
	}()
	job()
}

// Spawn enqueues job. It does not block on the job's completion, only
// briefly on the internal queue if every worker is currently busy.
func (p *SharedQueuePool) Spawn(job Job) {
	p.jobs <- job
}

// Shutdown closes the job queue and waits for every worker to drain and
// exit.
func (p *SharedQueuePool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
	p.workers.Update(0)
}
