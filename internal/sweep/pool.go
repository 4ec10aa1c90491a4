// Package sweep removes or blocks many stored followers with a small pool of
// workers. Each job goes through the service's single-follower removal, so
// pacing and the keep-on-failure rule still apply per follower.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	errs "followsweep/pkg/errors"
	"followsweep/pkg/logger"
	"followsweep/pkg/models"
)

// Job is one follower to act on
type Job struct {
	SourceID string
	Handle   string
	Block    bool
}

// Result is the outcome of one job
type Result struct {
	Job      Job
	Err      error
	Duration time.Duration
}

// Remover removes one follower; scraper.Service satisfies it
type Remover interface {
	RemoveRecord(ctx context.Context, sourceID string, block bool) error
}

// WorkerPool runs removal jobs concurrently
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	remover     Remover
	logger      logger.Logger

	mu      sync.Mutex
	aborted error
}

// NewWorkerPool creates a pool bound to ctx. numWorkers below one means one.
func NewWorkerPool(ctx context.Context, numWorkers int, remover Remover, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers*2),
		ctx:         ctx,
		cancel:      cancel,
		remover:     remover,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting sweep workers", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit queues a job. It fails once the pool was aborted or its context
// ended.
func (wp *WorkerPool) Submit(job Job) error {
	if wp.ctx.Err() != nil {
		return wp.closedErr()
	}
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.closedErr()
	}
}

func (wp *WorkerPool) closedErr() error {
	if err := wp.Err(); err != nil {
		return err
	}
	return wp.ctx.Err()
}

// Stop closes the queue, waits for the workers and closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// Results delivers one Result per processed job. It must be drained until
// closed.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// Err returns the error that aborted the pool, if any
func (wp *WorkerPool) Err() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.aborted
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			// drain so Stop does not block on a full queue
			continue
		}

		result := wp.process(job, id)
		if result.Err != nil && abortsSweep(result.Err) {
			wp.abort(result.Err)
		}

		wp.resultQueue <- result
	}
}

func (wp *WorkerPool) process(job Job, workerID int) Result {
	start := time.Now()
	err := wp.remover.RemoveRecord(wp.ctx, job.SourceID, job.Block)
	result := Result{Job: job, Err: err, Duration: time.Since(start)}

	fields := map[string]interface{}{
		"worker_id": workerID,
		"source":    job.SourceID,
		"block":     job.Block,
		"duration":  result.Duration,
	}
	if err != nil {
		fields["error"] = err.Error()
		wp.logger.WarnWithFields("Sweep job failed", fields)
	} else {
		wp.logger.DebugWithFields("Sweep job done", fields)
	}
	return result
}

func (wp *WorkerPool) abort(err error) {
	wp.mu.Lock()
	first := wp.aborted == nil
	if first {
		wp.aborted = err
	}
	wp.mu.Unlock()
	if first {
		wp.logger.WithError(err).Error("Sweep aborted")
		wp.cancel()
	}
}

// abortsSweep reports whether err makes every remaining job pointless
func abortsSweep(err error) bool {
	if errs.IsSessionFatal(err) || errs.IsProcessFatal(err) {
		return true
	}
	t, ok := errs.TypeOf(err)
	return ok && t == errs.ErrorTypeNotLoggedIn
}

// Summary totals a sweep
type Summary struct {
	Done    int
	Failed  []Result
	Skipped int
	Err     error
}

func (s Summary) String() string {
	msg := fmt.Sprintf("%d done, %d failed", s.Done, len(s.Failed))
	if s.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	return msg
}

// Run sweeps records with numWorkers workers. onResult, when set, sees every
// result as it arrives. The sweep stops early when an error makes the
// remaining jobs pointless; Summary.Err then holds it.
func Run(ctx context.Context, remover Remover, records []models.FollowerRecord, block bool, numWorkers int, log logger.Logger, onResult func(Result)) Summary {
	pool := NewWorkerPool(ctx, numWorkers, remover, log)
	pool.Start()

	var (
		summary Summary
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := range pool.Results() {
			if r.Err != nil {
				summary.Failed = append(summary.Failed, r)
			} else {
				summary.Done++
			}
			if onResult != nil {
				onResult(r)
			}
		}
	}()

	for _, rec := range records {
		if err := pool.Submit(Job{SourceID: rec.SourceID, Handle: rec.Handle, Block: block}); err != nil {
			break
		}
	}
	pool.Stop()
	wg.Wait()

	processed := summary.Done + len(summary.Failed)
	summary.Skipped = len(records) - processed
	summary.Err = pool.Err()
	if summary.Err == nil && summary.Skipped > 0 {
		summary.Err = ctx.Err()
	}
	return summary
}
