package usecase

import (
	"context"
	"log/slog"
	"time"
)

// StartProcessing starts the ticker goroutine. Each tick runs ProcessDue and then
// every extra function in order. Calling it while already running does nothing.
func (q *JobQueue) StartProcessing(interval time.Duration, extra ...TickFunc) {
	q.loopMu.Lock()
	defer q.loopMu.Unlock()

	if q.stop != nil {
		return
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go q.loop(interval, extra, q.stop, q.done)

	if q.logger != nil {
		q.logger.Info("job processing started",
			slog.String("worker_id", q.config.WorkerID),
			slog.Duration("interval", interval),
			slog.Int("batch_size", q.config.BatchSize),
		)
	}
}

// StopProcessing prevents new ticks and waits for the tick in progress, if any,
// to finish. It does not interrupt running executors. Safe to call repeatedly.
func (q *JobQueue) StopProcessing() {
	q.loopMu.Lock()
	defer q.loopMu.Unlock()

	if q.stop == nil {
		return
	}
	close(q.stop)
	<-q.done
	q.stop = nil
	q.done = nil

	if q.logger != nil {
		q.logger.Info("job processing stopped", slog.String("worker_id", q.config.WorkerID))
	}
}

func (q *JobQueue) loop(interval time.Duration, extra []TickFunc, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			q.tick(extra)
		}
	}
}

func (q *JobQueue) tick(extra []TickFunc) {
	// A tick always runs to completion, so it gets its own context.
	ctx := context.Background()

	if _, err := q.ProcessDue(ctx); err != nil && q.logger != nil {
		q.logger.Error("failed to process due jobs", slog.Any("error", err))
	}
	for _, fn := range extra {
		if err := fn(ctx); err != nil && q.logger != nil {
			q.logger.Error("processing tick failed", slog.Any("error", err))
		}
	}
}
