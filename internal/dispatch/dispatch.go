// Package dispatch runs background jobs on their own goroutines with bounded
// concurrency. Jobs are not persisted: whatever is in flight when the process
// exits is lost.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"memo-pipeline-go/internal/logger"
)

// ErrClosed is returned by handles submitted after Shutdown.
var ErrClosed = errors.New("dispatcher closed")

type Job func(ctx context.Context) error

// Handle observes one submitted job.
type Handle struct {
	key  string
	done chan struct{}
	err  error
}

func (h *Handle) Key() string { return h.key }

// Done is closed once the job has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the job finishes or ctx ends. It returns the job's
// error, or ctx.Err() if ctx ended first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the job's error; nil while the job is still running.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func finished(key string, err error) *Handle {
	h := &Handle{key: key, done: make(chan struct{}), err: err}
	close(h.done)
	return h
}

type Dispatcher struct {
	log    *logger.Logger
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inFlight map[string]*Handle
	wg       sync.WaitGroup
}

func New(concurrency int, log *logger.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		log:      log,
		sem:      make(chan struct{}, concurrency),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: map[string]*Handle{},
	}
}

// Submit schedules job and returns immediately. While a job with the same
// key is still running, its handle is returned and job is dropped.
func (d *Dispatcher) Submit(key string, job Job) *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return finished(key, ErrClosed)
	}
	if h, ok := d.inFlight[key]; ok {
		d.log.WithField("job_key", key).Info("job already in flight, merging")
		return h
	}

	h := &Handle{key: key, done: make(chan struct{})}
	d.inFlight[key] = h
	d.wg.Add(1)
	go d.run(h, job)
	return h
}

func (d *Dispatcher) run(h *Handle, job Job) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inFlight, h.key)
		d.mu.Unlock()
		close(h.done)
	}()

	log := d.log.WithField("job_key", h.key)

	select {
	case d.sem <- struct{}{}:
	case <-d.ctx.Done():
		h.err = d.ctx.Err()
		log.Warn("job dropped before start")
		return
	}
	defer func() { <-d.sem }()

	defer func() {
		if r := recover(); r != nil {
			h.err = fmt.Errorf("job panicked: %v", r)
			log.WithField("stack", string(debug.Stack())).Error(h.err.Error())
		}
	}()

	log.Debug("job started")
	h.err = job(d.ctx)
	if h.err != nil {
		log.WithError(h.err).Warn("job returned error")
		return
	}
	log.Debug("job finished")
}

// Shutdown stops intake, cancels running jobs and waits for them to return
// or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	waited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
