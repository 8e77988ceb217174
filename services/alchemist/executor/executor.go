// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor serializes engine runs with latest-wins scheduling.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/engine"
)

const tracerName = "alchemist.executor"

var (
	// ErrSuperseded is delivered to a submission replaced by a newer one
	// before it started.
	ErrSuperseded = errors.New("executor: superseded by a newer submission")

	// ErrClosed is delivered to submissions made after, or pending at, Close.
	ErrClosed = errors.New("executor: closed")
)

// Outcome is the final result of one submission.
type Outcome struct {
	Result engine.Result
	Err    error

	// Seq is the submission's sequence number, starting at 1.
	Seq uint64
}

type submission struct {
	ctx  context.Context
	job  engine.Job
	seq  uint64
	done chan Outcome
}

func (s *submission) finish(o Outcome) {
	o.Seq = s.seq
	s.done <- o
}

// Executor runs at most one job at a time and keeps at most one waiting.
//
// Description:
//
//	A submission made while the executor is idle starts immediately. One
//	made while a run is in flight takes the single pending slot; if the slot
//	was occupied, the previous occupant is completed with ErrSuperseded.
//	When a run finishes, the pending submission (if any) starts at once.
//	A running invocation is never cancelled: its context is detached from
//	the caller's cancellation and bounded only by the engine's timeout.
//
// Thread Safety: Executor is safe for concurrent use.
type Executor struct {
	engine engine.Engine
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	pending *submission
	seq     uint64
	wg      sync.WaitGroup
}

// New creates an executor over eng. A nil logger uses slog.Default().
func New(eng engine.Engine, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		engine: eng,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Submit schedules job.
//
// Description:
//
//	Returns immediately. The returned channel receives exactly one Outcome:
//	the run's result, ErrSuperseded if a newer submission displaced this one
//	while it was waiting, or ErrClosed.
//
// Inputs:
//   - ctx: Carries trace context into the run. Cancelling it does not stop
//     a started run.
//   - job: The job to run.
//
// Outputs:
//   - <-chan Outcome: Buffered; receives one Outcome.
func (x *Executor) Submit(ctx context.Context, job engine.Job) <-chan Outcome {
	done := make(chan Outcome, 1)

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		done <- Outcome{Err: ErrClosed}
		return done
	}

	x.seq++
	sub := &submission{ctx: ctx, job: job, seq: x.seq, done: done}
	submissionsTotal.Inc()

	if x.running {
		displaced := x.pending
		x.pending = sub
		x.mu.Unlock()

		if displaced != nil {
			supersededTotal.Inc()
			x.logger.Debug("submission superseded",
				slog.Uint64("seq", displaced.seq),
				slog.Uint64("by", sub.seq),
			)
			displaced.finish(Outcome{Err: ErrSuperseded})
		}
		return done
	}

	x.running = true
	x.wg.Add(1)
	x.mu.Unlock()

	go x.loop(sub)
	return done
}

// Do submits job and waits for its outcome.
//
// Outputs:
//   - engine.Result: The run's result.
//   - error: The run's error, ErrSuperseded, ErrClosed, or ctx.Err() if ctx
//     ends first. In the last case the submission still runs.
func (x *Executor) Do(ctx context.Context, job engine.Job) (engine.Result, error) {
	ch := x.Submit(ctx, job)
	select {
	case o := <-ch:
		return o.Result, o.Err
	case <-ctx.Done():
		return engine.Result{}, ctx.Err()
	}
}

// Busy reports whether a run is in flight.
func (x *Executor) Busy() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.running
}

// Close rejects new submissions, completes the pending one with ErrClosed
// and waits for the in-flight run to finish. Close is idempotent.
func (x *Executor) Close() {
	x.mu.Lock()
	x.closed = true
	pending := x.pending
	x.pending = nil
	x.mu.Unlock()

	if pending != nil {
		pending.finish(Outcome{Err: ErrClosed})
	}
	x.wg.Wait()
}

// loop runs sub, then drains the pending slot until it is empty.
func (x *Executor) loop(sub *submission) {
	defer x.wg.Done()

	for sub != nil {
		x.run(sub)

		x.mu.Lock()
		sub = x.pending
		x.pending = nil
		if sub == nil {
			x.running = false
		}
		x.mu.Unlock()
	}
}

func (x *Executor) run(sub *submission) {
	ctx := context.WithoutCancel(sub.ctx)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "executor.Executor.run",
		trace.WithAttributes(
			attribute.Int64("seq", int64(sub.seq)),
			attribute.String("mode", sub.job.Mode.String()),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := x.engine.Run(ctx, sub.job)
	elapsed := time.Since(start)
	recordRun(elapsed.Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.logger.Warn("run failed",
			slog.Uint64("seq", sub.seq),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
	} else {
		x.logger.Debug("run complete",
			slog.Uint64("seq", sub.seq),
			slog.Duration("duration", elapsed),
		)
	}

	sub.finish(Outcome{Result: res, Err: err})
}
