package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"memo-pipeline-go/internal/logger"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmitRunsJobAndReportsError(t *testing.T) {
	d := New(2, logger.Discard())
	defer d.Shutdown(context.Background())

	boom := errors.New("boom")
	h := d.Submit("a", func(ctx context.Context) error { return boom })
	if err := h.Wait(waitCtx(t)); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
	if !errors.Is(h.Err(), boom) {
		t.Errorf("Err = %v, want boom", h.Err())
	}
}

func TestSubmitMergesInFlightKey(t *testing.T) {
	d := New(4, logger.Discard())
	defer d.Shutdown(context.Background())

	var runs int32
	release := make(chan struct{})
	job := func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-release
		return nil
	}

	h1 := d.Submit("conv-1", job)
	h2 := d.Submit("conv-1", job)
	if h1 != h2 {
		t.Fatalf("expected the same handle for an in-flight key")
	}
	close(release)
	h1.Wait(waitCtx(t))
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("job ran %d times, want 1", got)
	}

	// once finished the key can run again
	h3 := d.Submit("conv-1", func(ctx context.Context) error { atomic.AddInt32(&runs, 1); return nil })
	h3.Wait(waitCtx(t))
	if got := atomic.LoadInt32(&runs); got != 2 {
		t.Fatalf("job ran %d times, want 2", got)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	d := New(2, logger.Discard())
	defer d.Shutdown(context.Background())

	var current, peak int32
	release := make(chan struct{})
	var handles []*Handle
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		handles = append(handles, d.Submit(k, func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&current, -1)
			return nil
		}))
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	for _, h := range handles {
		if err := h.Wait(waitCtx(t)); err != nil {
			t.Fatal(err)
		}
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("peak concurrency %d exceeds 2", p)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	d := New(1, logger.Discard())
	defer d.Shutdown(context.Background())

	h := d.Submit("p", func(ctx context.Context) error { panic("kaboom") })
	err := h.Wait(waitCtx(t))
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic, got %v", err)
	}

	// dispatcher still works afterwards
	if err := d.Submit("q", func(ctx context.Context) error { return nil }).Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
}

func TestShutdownCancelsAndRejects(t *testing.T) {
	d := New(1, logger.Discard())

	started := make(chan struct{})
	h := d.Submit("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	if err := d.Shutdown(waitCtx(t)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !errors.Is(h.Err(), context.Canceled) {
		t.Errorf("running job should observe cancellation, got %v", h.Err())
	}

	late := d.Submit("late", func(ctx context.Context) error { return nil })
	if err := late.Wait(waitCtx(t)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestErrIsNilWhileRunning(t *testing.T) {
	d := New(1, logger.Discard())
	defer d.Shutdown(context.Background())

	release := make(chan struct{})
	h := d.Submit("r", func(ctx context.Context) error { <-release; return errors.New("late") })
	if h.Err() != nil {
		t.Fatalf("Err should be nil while running")
	}
	select {
	case <-h.Done():
		t.Fatal("Done closed too early")
	default:
	}
	close(release)
	<-h.Done()
	if h.Err() == nil {
		t.Fatal("expected error after completion")
	}
}
