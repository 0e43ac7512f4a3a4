package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/web3tea/cdc-relay/pkg/log"
)

const stopTimeout = 30 * time.Second

// Source is the capture implementation wrapped by a Runner. Run blocks,
// pushing one batch per committed transaction into out, until ctx is
// cancelled or the source completes on its own (e.g. a bounded snapshot
// finished).
type Source interface {
	Init(ctx context.Context) error
	Run(ctx context.Context, out *OutputChannel) error
	Ack(ctx context.Context, checkpoint string) error
	Close(ctx context.Context) error
}

// Runner owns one capture engine instance for one invocation. It is not
// restartable: once stopped, build a new one.
type Runner interface {
	Start() error
	Stop() error
	IsRunning() bool
	State() State
	Output() *OutputChannel
	Ack(ctx context.Context, checkpoint string) error
}

type runner struct {
	src Source
	out *OutputChannel
	sm  *stateMachine

	ctx      context.Context
	cancelFn context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	stopped   bool
	closeOnce sync.Once
}

func newRunner(src Source, bufferSize int) *runner {
	r := &runner{
		src: src,
		out: NewOutputChannel(bufferSize),
		sm:  newStateMachine(),
	}
	r.ctx, r.cancelFn = context.WithCancel(context.Background())
	return r
}

// Start initializes the source and launches its run loop. On failure the
// runner lands in StateFailed; Stop must still be attempted for cleanup.
func (r *runner) Start() error {
	if err := r.sm.Transition(StateStarting); err != nil {
		return err
	}

	if err := r.src.Init(r.ctx); err != nil {
		_ = r.sm.Transition(StateFailed)
		return fmt.Errorf("failed to initialize source: %w", err)
	}

	if err := r.sm.Transition(StateRunning); err != nil {
		return err
	}

	r.wg.Add(1)
	go r.run()
	return nil
}

func (r *runner) run() {
	defer r.wg.Done()

	err := r.src.Run(r.ctx, r.out)
	r.out.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("source run loop exited")
	}

	// Self-completion: nobody requested a stop, the source is simply done.
	// Let the consumer drain what was already produced, then the engine
	// considers itself stopped without an external Stop call.
	if r.sm.Is(StateRunning) {
		r.out.WaitDrained(r.ctx)
		r.closeSource()
		if terr := r.sm.Transition(StateStopped); terr == nil {
			log.Info().Msg("engine self-completed")
		}
	}
}

// Stop requests shutdown, waits for the run loop, and releases source
// resources. It is idempotent: any call after the first is a no-op.
func (r *runner) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	// Fails when startup already failed or the source self-completed;
	// cleanup below still runs.
	_ = r.sm.Transition(StateStopping)

	r.cancelFn()
	r.wg.Wait()

	err := r.closeSource()

	// Stopped is terminal whether or not cleanup succeeded.
	_ = r.sm.Transition(StateStopped)

	if err != nil {
		return fmt.Errorf("failed to close source: %w", err)
	}
	return nil
}

func (r *runner) closeSource() error {
	var err error
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err = r.src.Close(ctx)
	})
	return err
}

func (r *runner) IsRunning() bool {
	return r.sm.Is(StateRunning)
}

func (r *runner) State() State {
	return r.sm.State()
}

func (r *runner) Output() *OutputChannel {
	return r.out
}

func (r *runner) Ack(ctx context.Context, checkpoint string) error {
	return r.src.Ack(ctx, checkpoint)
}

var _ Runner = (*runner)(nil)
