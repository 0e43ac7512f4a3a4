package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3tea/cdc-relay/engine"
)

// stubSource is a registerable engine.Source that emits a fixed set of
// batches and then completes.
type stubSource struct {
	batches  []*engine.Batch
	initErr  error
	runErr   error
	inits    atomic.Int32
	closes   atomic.Int32
	runUntil func(ctx context.Context) // optional block after emitting
}

func (s *stubSource) Init(context.Context) error {
	s.inits.Add(1)
	return s.initErr
}

func (s *stubSource) Run(ctx context.Context, out *engine.OutputChannel) error {
	for _, b := range s.batches {
		if err := out.Push(ctx, b); err != nil {
			return err
		}
	}
	if s.runUntil != nil {
		s.runUntil(ctx)
	}
	return s.runErr
}

func (s *stubSource) Ack(context.Context, string) error { return nil }

func (s *stubSource) Close(context.Context) error {
	s.closes.Add(1)
	return nil
}

func TestHandlerUnknownSourceTypeIsNoOp(t *testing.T) {
	cfg := engine.Config{SourceType: "no-such-source", SourceID: "s1"}
	h := NewHandler(cfg, &recordingSender{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Start(context.Background(), "default", Never)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return for unknown source type")
	}
}

func TestHandlerRunsToCompletion(t *testing.T) {
	src := &stubSource{batches: []*engine.Batch{
		makeBatch(2, "0/10"),
		makeBatch(0, "0/20"),
	}}
	engine.RegisterSource("handler-test-ok", func(engine.Config) (engine.Source, error) {
		return src, nil
	})

	snd := &recordingSender{}
	sink := &countingSink{}
	cfg := engine.Config{SourceType: "handler-test-ok", SourceID: "s1"}
	h := NewHandler(cfg, snd, sink, WithPollTimeout(testPollTimeout))

	h.Start(context.Background(), "default", Never)

	sent := snd.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "0/10", sent[0].Checkpoint)
	assert.Equal(t, "0/20", sent[1].Checkpoint)
	assert.Equal(t, []int{2, 0}, sink.eventCount)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestHandlerStartFailureDoesNotPropagate(t *testing.T) {
	src := &stubSource{initErr: errors.New("connection refused")}
	engine.RegisterSource("handler-test-initfail", func(engine.Config) (engine.Source, error) {
		return src, nil
	})

	cfg := engine.Config{SourceType: "handler-test-initfail", SourceID: "s1"}
	h := NewHandler(cfg, &recordingSender{}, nil)

	// failure is absorbed at the boundary; cleanup still runs
	h.Start(context.Background(), "default", Never)
	assert.Equal(t, int32(1), src.inits.Load())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestHandlerCancellationStopsEngine(t *testing.T) {
	src := &stubSource{
		batches: []*engine.Batch{makeBatch(1, "0/10")},
		runUntil: func(ctx context.Context) {
			<-ctx.Done()
		},
	}
	engine.RegisterSource("handler-test-cancel", func(engine.Config) (engine.Source, error) {
		return src, nil
	})

	snd := &recordingSender{}
	// cancel once the only batch has been delivered
	cancelled := func() bool {
		return len(snd.sent()) >= 1
	}

	cfg := engine.Config{SourceType: "handler-test-cancel", SourceID: "s1"}
	h := NewHandler(cfg, snd, nil, WithPollTimeout(testPollTimeout))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Start(context.Background(), "default", cancelled)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not stop after cancellation")
	}

	assert.Len(t, snd.sent(), 1)
	assert.Equal(t, int32(1), src.closes.Load())
}
