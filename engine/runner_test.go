package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a controllable Source for runner lifecycle tests.
type fakeSource struct {
	initErr error
	runErr  error

	batches   []*Batch
	blockRun  bool // when set, Run blocks until ctx is cancelled
	inits     atomic.Int32
	closes    atomic.Int32
	lastAck   atomic.Value
	runExited chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{runExited: make(chan struct{})}
}

func (f *fakeSource) Init(context.Context) error {
	f.inits.Add(1)
	return f.initErr
}

func (f *fakeSource) Run(ctx context.Context, out *OutputChannel) error {
	defer close(f.runExited)
	for _, b := range f.batches {
		if err := out.Push(ctx, b); err != nil {
			return err
		}
	}
	if f.blockRun {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.runErr
}

func (f *fakeSource) Ack(_ context.Context, checkpoint string) error {
	f.lastAck.Store(checkpoint)
	return nil
}

func (f *fakeSource) Close(context.Context) error {
	f.closes.Add(1)
	return nil
}

func waitForState(t *testing.T, r Runner, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner never reached state %s, stuck at %s", want, r.State())
}

func TestRunnerLifecycle(t *testing.T) {
	src := newFakeSource()
	src.blockRun = true
	r := newRunner(src, 4)

	assert.Equal(t, StateCreated, r.State())
	assert.False(t, r.IsRunning())

	require.NoError(t, r.Start())
	assert.Equal(t, StateRunning, r.State())
	assert.True(t, r.IsRunning())
	assert.Equal(t, int32(1), src.inits.Load())

	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	assert.False(t, r.IsRunning())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRunnerStartTwiceFails(t *testing.T) {
	src := newFakeSource()
	src.blockRun = true
	r := newRunner(src, 4)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())

	require.NoError(t, r.Stop())
}

func TestRunnerInitFailure(t *testing.T) {
	src := newFakeSource()
	src.initErr = errors.New("no route to host")
	r := newRunner(src, 4)

	err := r.Start()
	require.Error(t, err)
	assert.Equal(t, StateFailed, r.State())
	assert.False(t, r.IsRunning())

	// stop after a failed start still cleans up and lands terminal
	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRunnerStopIsIdempotent(t *testing.T) {
	src := newFakeSource()
	src.blockRun = true
	r := newRunner(src, 4)

	require.NoError(t, r.Start())
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRunnerDeliversBatches(t *testing.T) {
	src := newFakeSource()
	src.blockRun = true
	src.batches = []*Batch{
		{Checkpoint: "0/10"},
		{Checkpoint: "0/20"},
	}
	r := newRunner(src, 4)
	require.NoError(t, r.Start())
	defer r.Stop() //nolint:errcheck

	out := r.Output()
	b, err := out.Poll(time.Second)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "0/10", b.Checkpoint)

	b, err = out.Poll(time.Second)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "0/20", b.Checkpoint)
}

func TestRunnerSelfCompletion(t *testing.T) {
	src := newFakeSource()
	src.batches = []*Batch{{Checkpoint: "0/10"}}
	r := newRunner(src, 4)

	require.NoError(t, r.Start())
	<-src.runExited

	// the engine holds Running until the consumer drains the output
	b, err := r.Output().Poll(time.Second)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "0/10", b.Checkpoint)

	waitForState(t, r, StateStopped)
	assert.False(t, r.IsRunning())
	assert.Equal(t, int32(1), src.closes.Load())

	// an explicit stop afterwards is a harmless no-op
	require.NoError(t, r.Stop())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRunnerAckDelegatesToSource(t *testing.T) {
	src := newFakeSource()
	src.blockRun = true
	r := newRunner(src, 4)
	require.NoError(t, r.Start())
	defer r.Stop() //nolint:errcheck

	require.NoError(t, r.Ack(context.Background(), "0/FF"))
	assert.Equal(t, "0/FF", src.lastAck.Load())
}

func TestNewRunnerUnknownSourceType(t *testing.T) {
	r, err := NewRunner(Config{SourceType: "definitely-not-registered"})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestRegisterSourceBuildsRunner(t *testing.T) {
	RegisterSource("runner-test-src", func(Config) (Source, error) {
		src := newFakeSource()
		src.blockRun = true
		return src, nil
	})

	r, err := NewRunner(Config{SourceType: "Runner-Test-Src"}) // lookup is case-insensitive
	require.NoError(t, err)
	require.NotNil(t, r)

	require.NoError(t, r.Start())
	require.NoError(t, r.Stop())
}

func TestRegisterSourceBuilderError(t *testing.T) {
	RegisterSource("runner-test-badsrc", func(Config) (Source, error) {
		return nil, errors.New("bad config")
	})

	r, err := NewRunner(Config{SourceType: "runner-test-badsrc"})
	require.Error(t, err)
	assert.Nil(t, r)
}
