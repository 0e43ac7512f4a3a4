package relay

import (
	"context"
	"errors"
	"time"

	"github.com/web3tea/cdc-relay/engine"
	"github.com/web3tea/cdc-relay/metrics"
	"github.com/web3tea/cdc-relay/pkg/log"
	"github.com/web3tea/cdc-relay/sender"
)

// DefaultPollTimeout bounds each wait on the engine's output channel. A
// timed wait keeps cancellation visible within one window even when no
// data is flowing.
const DefaultPollTimeout = 500 * time.Millisecond

// Pump drains the capture engine's output channel and forwards every
// batch, in order, to one downstream channel. It runs on a single
// goroutine and owns no collaborator it is handed.
type Pump struct {
	runner    engine.Runner
	channel   sender.ChannelID
	cancelled CancelSignal
	sender    sender.Sender
	sink      metrics.Sink

	sourceType  string
	sourceID    string
	pollTimeout time.Duration
}

type Option func(*Pump)

// WithPollTimeout overrides the poll bound W.
func WithPollTimeout(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.pollTimeout = d
		}
	}
}

// WithMetrics sets the metrics sink; defaults to a no-op sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(p *Pump) {
		p.sink = sink
	}
}

// WithSourceLabels sets the (source type, source id) metric key.
func WithSourceLabels(sourceType, sourceID string) Option {
	return func(p *Pump) {
		p.sourceType = sourceType
		p.sourceID = sourceID
	}
}

func NewPump(runner engine.Runner, channel sender.ChannelID, cancelled CancelSignal, snd sender.Sender, options ...Option) *Pump {
	p := &Pump{
		runner:      runner,
		channel:     channel,
		cancelled:   cancelled,
		sender:      snd,
		sink:        metrics.NopSink{},
		pollTimeout: DefaultPollTimeout,
	}
	if p.cancelled == nil {
		p.cancelled = Never
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Run executes the consumer loop until the engine stops running or the
// cancellation signal fires. ctx is the delivery context handed to the
// sender; it is not a cancellation mechanism for the loop itself.
//
// A failure inside one iteration is logged and never terminates the loop;
// the next iteration proceeds unconditionally. On the cancellation path
// the engine stop has already been requested when Run returns. When the
// engine stops on its own, Run returns without calling Stop.
func (p *Pump) Run(ctx context.Context) {
	out := p.runner.Output()

	for p.runner.IsRunning() {
		if p.cancelled() {
			log.Info().Str("source_id", p.sourceID).Msg("connection broken detected, stopping the engine")
			if err := p.runner.Stop(); err != nil {
				log.Warn().Err(err).Str("source_id", p.sourceID).Msg("failed to stop engine")
			}
			return
		}

		if err := p.pumpOne(ctx, out); err != nil {
			p.sink.IncForwardErrors(p.sourceType, p.sourceID)
			log.Error().Err(err).Str("source_id", p.sourceID).Msg("failed to poll or forward engine output")
		}
	}
}

// pumpOne performs one timed poll and, when a batch is available, records
// and forwards it. A batch with zero events is forwarded like any other:
// the pump relays whatever the engine emits, it does not filter by content.
func (p *Pump) pumpOne(ctx context.Context, out *engine.OutputChannel) error {
	batch, err := out.Poll(p.pollTimeout)
	if err != nil {
		if errors.Is(err, engine.ErrChannelClosed) {
			// Engine is winding down; hold one poll window so the loop
			// does not spin while IsRunning flips (source cleanup may take
			// a while after the channel is drained).
			time.Sleep(p.pollTimeout)
			return nil
		}
		return err
	}
	if batch == nil {
		return nil
	}

	p.sink.IncEventsReceived(p.sourceType, p.sourceID, batch.EventCount())
	log.Debug().
		Str("source_id", p.sourceID).
		Int("events", batch.EventCount()).
		Msg("emitting one batch to channel")

	if err := p.sender.Send(ctx, p.channel, batch); err != nil {
		return err
	}

	if batch.Checkpoint != "" {
		if err := p.runner.Ack(ctx, batch.Checkpoint); err != nil {
			log.Warn().Err(err).Str("checkpoint", batch.Checkpoint).Msg("failed to ack checkpoint")
		}
	}
	return nil
}
