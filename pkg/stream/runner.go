/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/telekom/mailgun-notifier/pkg/metrics"
	"github.com/telekom/mailgun-notifier/pkg/signal"
)

// RunnerConfig tunes the worker pool.
type RunnerConfig struct {
	// Workers is the number of concurrent processors. Results keep input
	// order only with a single worker.
	// Default: 1
	Workers int

	// QueueSize is the capacity of the channel between reader and workers.
	// Default: 100
	QueueSize int

	// Rate limits accepted signals per second. Zero disables limiting.
	Rate float64

	// Burst is the limiter bucket size.
	// Default: 1
	Burst int
}

// RunnerStats is a snapshot of runner counters.
type RunnerStats struct {
	Consumed      int64
	Processed     int64
	Failed        int64
	Malformed     int64
	PublishErrors int64
}

// Runner reads signals from a Source, processes each through a Processor and
// writes every result to a Sink. Every accepted signal yields exactly one
// result write attempt, including after the run context is cancelled.
type Runner struct {
	source  Source
	sink    Sink
	proc    Processor
	cfg     RunnerConfig
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	consumed      atomic.Int64
	processed     atomic.Int64
	failed        atomic.Int64
	malformed     atomic.Int64
	publishErrors atomic.Int64
}

// NewRunner creates a runner. Source and sink are not closed by the runner.
func NewRunner(source Source, sink Sink, proc Processor, cfg RunnerConfig, log *zap.SugaredLogger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := &Runner{
		source: source,
		sink:   sink,
		proc:   proc,
		cfg:    cfg,
		log:    log.Named("runner"),
	}
	if cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)
	}
	return r
}

// Run consumes the source until it is exhausted or ctx is cancelled, then
// waits for queued signals to be processed. Cancellation is not an error.
// A source read error other than a malformed signal stops reading and is
// returned once in-flight work has drained.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infow("Starting stream runner",
		"source", r.source.Name(),
		"sink", r.sink.Name(),
		"workers", r.cfg.Workers,
		"queueSize", r.cfg.QueueSize,
		"rate", r.cfg.Rate)

	jobs := make(chan signal.Signal, r.cfg.QueueSize)
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.worker(workCtx, id, jobs)
		}(i)
	}

	readErr := r.readLoop(ctx, jobs)
	close(jobs)
	wg.Wait()

	stats := r.Stats()
	r.log.Infow("Stream runner stopped",
		"consumed", stats.Consumed,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"malformed", stats.Malformed,
		"publishErrors", stats.PublishErrors)
	return readErr
}

func (r *Runner) readLoop(ctx context.Context, jobs chan<- signal.Signal) error {
	sourceName := r.source.Name()
	for {
		if ctx.Err() != nil {
			r.log.Info("Stream runner cancelled, draining queued signals")
			return nil
		}

		sigs, err := r.source.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			r.log.Debugw("Source exhausted", "source", sourceName)
			return nil
		case errors.Is(err, ErrMalformedSignal):
			r.malformed.Add(1)
			r.log.Warnw("Skipping malformed input", "source", sourceName, "error", err)
			continue
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("reading from %s: %w", sourceName, err)
		}

		for _, sig := range sigs {
			if r.limiter != nil {
				if err := r.limiter.Wait(ctx); err != nil {
					r.log.Warnw("Dropping signal not yet accepted at shutdown", "source", sourceName)
					return nil
				}
			}
			select {
			case jobs <- sig:
				r.consumed.Add(1)
				metrics.StreamSignalsConsumed.WithLabelValues(sourceName).Inc()
			case <-ctx.Done():
				r.log.Warnw("Dropping signal not yet accepted at shutdown", "source", sourceName)
				return nil
			}
		}
	}
}

func (r *Runner) worker(ctx context.Context, id int, jobs <-chan signal.Signal) {
	for sig := range jobs {
		result := r.process(ctx, id, sig)
		r.publish(ctx, result)
	}
}

// process shields the pool from a panicking Processor.
func (r *Runner) process(ctx context.Context, id int, sig signal.Signal) (result signal.Signal) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("panic in stream worker recovered", "worker", id, "panic", rec)
			result = signal.Failure(fmt.Errorf("panic while processing signal: %v", rec)).Signal()
		}
		r.processed.Add(1)
		if signal.IsFailure(result) {
			r.failed.Add(1)
		}
	}()
	return r.proc.ProcessSignal(ctx, sig)
}

func (r *Runner) publish(ctx context.Context, result signal.Signal) {
	sinkName := r.sink.Name()
	if err := r.sink.Write(ctx, []signal.Signal{result}); err != nil {
		r.publishErrors.Add(1)
		metrics.StreamPublishErrors.WithLabelValues(sinkName).Inc()
		r.log.Errorw("Failed to publish result", "sink", sinkName, "error", err)
		return
	}
	metrics.StreamResultsPublished.WithLabelValues(sinkName).Inc()
}

// Stats returns the current counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Consumed:      r.consumed.Load(),
		Processed:     r.processed.Load(),
		Failed:        r.failed.Load(),
		Malformed:     r.malformed.Load(),
		PublishErrors: r.publishErrors.Load(),
	}
}
