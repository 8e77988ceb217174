// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 2 * time.Second

// gateEngine blocks every run until the test releases it.
type gateEngine struct {
	started chan engine.Job
	release chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu      sync.Mutex
	ran     []string
	ctxErrs []error
}

func newGateEngine() *gateEngine {
	return &gateEngine{
		started: make(chan engine.Job, 16),
		release: make(chan struct{}),
	}
}

func (g *gateEngine) Run(ctx context.Context, job engine.Job) (engine.Result, error) {
	n := g.inFlight.Add(1)
	for {
		prev := g.maxInFlight.Load()
		if n <= prev || g.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}
	defer g.inFlight.Add(-1)

	g.started <- job
	<-g.release

	g.mu.Lock()
	g.ran = append(g.ran, job.Command)
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	g.mu.Unlock()

	if job.Command == "fail" {
		return engine.Result{}, errors.New("boom")
	}
	return engine.Result{Data: []byte(job.Command)}, nil
}

func (g *gateEngine) ranCommands() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ran...)
}

func (g *gateEngine) waitStarted(t *testing.T, command string) {
	t.Helper()
	select {
	case job := <-g.started:
		require.Equal(t, command, job.Command)
	case <-time.After(waitTimeout):
		t.Fatalf("run %q did not start", command)
	}
}

func (g *gateEngine) releaseOne(t *testing.T) {
	t.Helper()
	select {
	case g.release <- struct{}{}:
	case <-time.After(waitTimeout):
		t.Fatal("no run waiting for release")
	}
}

func receive(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(waitTimeout):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func job(command string) engine.Job {
	return engine.Job{Command: command}
}

func TestSubmit_IdleRunsImmediately(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)
	defer x.Close()

	ch := x.Submit(context.Background(), job("a"))
	g.waitStarted(t, "a")
	assert.True(t, x.Busy())
	g.releaseOne(t)

	o := receive(t, ch)
	require.NoError(t, o.Err)
	assert.Equal(t, []byte("a"), o.Result.Data)
	assert.Equal(t, uint64(1), o.Seq)
}

func TestSubmit_LatestWins(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)
	defer x.Close()

	chA := x.Submit(context.Background(), job("a"))
	g.waitStarted(t, "a")

	chB := x.Submit(context.Background(), job("b"))
	chC := x.Submit(context.Background(), job("c"))
	chD := x.Submit(context.Background(), job("d"))

	// Displaced submissions are told at once, before any run completes.
	assert.ErrorIs(t, receive(t, chB).Err, ErrSuperseded)
	oC := receive(t, chC)
	assert.ErrorIs(t, oC.Err, ErrSuperseded)
	assert.Equal(t, uint64(3), oC.Seq)

	g.releaseOne(t)
	require.NoError(t, receive(t, chA).Err)

	g.waitStarted(t, "d")
	g.releaseOne(t)
	oD := receive(t, chD)
	require.NoError(t, oD.Err)
	assert.Equal(t, []byte("d"), oD.Result.Data)

	assert.Equal(t, []string{"a", "d"}, g.ranCommands())
	assert.Equal(t, int32(1), g.maxInFlight.Load())
}

func TestSubmit_SequentialDispatch(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)
	defer x.Close()

	for _, c := range []string{"a", "b", "c"} {
		ch := x.Submit(context.Background(), job(c))
		g.waitStarted(t, c)
		g.releaseOne(t)
		require.NoError(t, receive(t, ch).Err)
	}

	assert.Equal(t, []string{"a", "b", "c"}, g.ranCommands())
	assert.Equal(t, int32(1), g.maxInFlight.Load())
	assert.Eventually(t, func() bool { return !x.Busy() }, waitTimeout, 5*time.Millisecond)
}

func TestSubmit_PendingStartsAfterFailure(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)
	defer x.Close()

	chA := x.Submit(context.Background(), job("fail"))
	g.waitStarted(t, "fail")
	chB := x.Submit(context.Background(), job("b"))

	g.releaseOne(t)
	assert.EqualError(t, receive(t, chA).Err, "boom")

	g.waitStarted(t, "b")
	g.releaseOne(t)
	require.NoError(t, receive(t, chB).Err)
}

func TestRun_IgnoresCallerCancellation(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)
	defer x.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := x.Submit(ctx, job("a"))
	g.waitStarted(t, "a")
	cancel()
	g.releaseOne(t)

	require.NoError(t, receive(t, ch).Err)
	g.mu.Lock()
	defer g.mu.Unlock()
	require.Len(t, g.ctxErrs, 1)
	assert.NoError(t, g.ctxErrs[0])
}

func TestDo(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)
	defer x.Close()

	go func() {
		<-g.started
		g.release <- struct{}{}
	}()
	res, err := x.Do(context.Background(), job("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), res.Data)
}

func TestDo_ContextEndsFirst(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)

	ch := x.Submit(context.Background(), job("a"))
	g.waitStarted(t, "a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := x.Do(ctx, job("b"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned submission still runs once the slot frees up.
	g.releaseOne(t)
	require.NoError(t, receive(t, ch).Err)
	g.waitStarted(t, "b")
	g.releaseOne(t)

	x.Close()
	assert.Equal(t, []string{"a", "b"}, g.ranCommands())
}

func TestClose(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)

	chA := x.Submit(context.Background(), job("a"))
	g.waitStarted(t, "a")
	chB := x.Submit(context.Background(), job("b"))

	closed := make(chan struct{})
	go func() {
		x.Close()
		close(closed)
	}()

	assert.ErrorIs(t, receive(t, chB).Err, ErrClosed)

	select {
	case <-closed:
		t.Fatal("Close returned before the in-flight run finished")
	case <-time.After(20 * time.Millisecond):
	}

	g.releaseOne(t)
	require.NoError(t, receive(t, chA).Err)
	<-closed

	assert.ErrorIs(t, receive(t, x.Submit(context.Background(), job("c"))).Err, ErrClosed)
	x.Close()
	assert.Equal(t, []string{"a"}, g.ranCommands())
}

func TestSubmit_ConcurrentSubmittersAllAnswered(t *testing.T) {
	g := newGateEngine()
	x := New(g, nil)

	first := x.Submit(context.Background(), job("first"))
	g.waitStarted(t, "first")

	const n = 20
	chans := make([]<-chan Outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chans[i] = x.Submit(context.Background(), job("later"))
		}(i)
	}
	wg.Wait()

	g.releaseOne(t)
	require.NoError(t, receive(t, first).Err)
	g.waitStarted(t, "later")
	g.releaseOne(t)

	var ok, superseded int
	for _, ch := range chans {
		o := receive(t, ch)
		switch {
		case o.Err == nil:
			ok++
		case errors.Is(o.Err, ErrSuperseded):
			superseded++
		default:
			t.Fatalf("unexpected error: %v", o.Err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, superseded)

	x.Close()
}
