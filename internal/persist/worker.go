package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskhelp/deskbot/internal/logging"
)

// WorkerConfig tunes the flush policy. Zero values take the defaults below,
// which match the spreadsheet sink's rate limits: wake every second, flush
// at 3 rows or once a non-empty queue is 10s past the last success, retry a
// batch up to 5 times with backoff doubling from 1s to a 60s ceiling.
type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAge      time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	return c
}

// Worker is the single consumer of the queue. It drains the queue in
// batches on a fixed tick and writes them to the sink, retrying transient
// failures with capped exponential backoff. A batch is the unit of retry:
// it is delivered whole, dropped whole (permanent failure) or requeued
// whole at the front of the queue.
type Worker struct {
	queue *Queue
	sink  Sink
	cfg   WorkerConfig

	// injectable for tests
	now   func() time.Time
	sleep func(d time.Duration, stop <-chan struct{}) bool

	lastSuccess time.Time // only touched by the worker goroutine

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewWorker builds a worker over queue and sink. Call Start to begin
// flushing and Stop for a clean shutdown.
func NewWorker(queue *Queue, sink Sink, cfg WorkerConfig) *Worker {
	return &Worker{
		queue: queue,
		sink:  sink,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		sleep: sleepInterruptible,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func sleepInterruptible(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// Start launches the background flush loop.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.lastSuccess = w.now()
		go w.loop()
	})
}

// Stop halts the loop after one final best-effort flush attempt and waits
// for it to finish. Rows still queued after Stop are lost on process exit;
// that tradeoff is deliberate (see the package tests).
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
	})
}

func (w *Worker) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			// Final chance for queued rows before shutdown.
			if w.queue.Len() > 0 && w.sink.Ready() {
				w.flush(1)
			}
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick applies the flush policy: an empty queue never flushes; otherwise
// flush when the queue reached the batch threshold or when the last
// successful flush is older than MaxAge.
func (w *Worker) tick() {
	n := w.queue.Len()
	if n == 0 {
		return
	}
	if n < w.cfg.BatchSize && w.now().Sub(w.lastSuccess) < w.cfg.MaxAge {
		return
	}
	if !w.sink.Ready() {
		// Leave rows queued; they keep their order for a later cycle.
		logging.Debugf("sink not ready, %d rows waiting", n)
		return
	}
	w.flush(w.cfg.MaxAttempts)
}

// flush swaps out the current queue contents and drives one batch to
// completion: delivered, dropped or requeued.
func (w *Worker) flush(maxAttempts int) {
	batch := w.queue.Swap()
	if len(batch) == 0 {
		return
	}
	batchID := uuid.NewString()[:8]

	backoff := w.cfg.BackoffBase
	attempt := 1
	for ; ; attempt++ {
		err := w.sink.AppendBatch(context.Background(), batch)
		if err == nil {
			w.lastSuccess = w.now()
			logging.Infof("flushed batch %s (%d rows)", batchID, len(batch))
			return
		}

		var se *SinkError
		if !errors.As(err, &se) || se.Kind == Permanent {
			logging.Errorf("dropping batch %s (%d rows): %v", batchID, len(batch), err)
			return
		}

		if attempt >= maxAttempts {
			break
		}
		logging.Warnf("batch %s attempt %d/%d failed (%s), retrying in %s",
			batchID, attempt, maxAttempts, se.Code, backoff)
		if !w.sleep(backoff, w.stop) {
			break // shutting down
		}
		backoff *= 2
		if backoff > w.cfg.BackoffCap {
			backoff = w.cfg.BackoffCap
		}
	}

	w.queue.PushFront(batch)
	logging.Warnf("batch %s requeued after %d attempts (%d rows)", batchID, attempt, len(batch))
}
