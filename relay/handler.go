package relay

import (
	"context"

	"github.com/web3tea/cdc-relay/engine"
	"github.com/web3tea/cdc-relay/metrics"
	"github.com/web3tea/cdc-relay/pkg/log"
	"github.com/web3tea/cdc-relay/sender"
)

// Handler owns one connector invocation: it builds the engine runner from
// configuration, starts it, and runs the pump inline until it exits. The
// boundary is fire-and-forget: callers observe outcomes only through logs
// and metrics, never through a propagated failure.
type Handler struct {
	cfg     engine.Config
	sender  sender.Sender
	sink    metrics.Sink
	options []Option
}

func NewHandler(cfg engine.Config, snd sender.Sender, sink metrics.Sink, options ...Option) *Handler {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Handler{
		cfg:     cfg,
		sender:  snd,
		sink:    sink,
		options: options,
	}
}

// Start runs the capture-and-forward flow synchronously. cancelled is
// sampled by the pump once per iteration; ctx is the delivery context for
// sends. Nothing is returned: any failure is logged, the engine is stopped
// best-effort, and control comes back to the caller.
func (h *Handler) Start(ctx context.Context, channel sender.ChannelID, cancelled CancelSignal) {
	runner, err := engine.NewRunner(h.cfg)
	if err != nil {
		log.Error().Err(err).Str("source_id", h.cfg.SourceID).Msg("failed to build engine runner")
		return
	}
	if runner == nil {
		// Source type does not apply here; nothing to run.
		log.Debug().Str("source_type", h.cfg.SourceType).Msg("no engine runner for source type")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("source_id", h.cfg.SourceID).Msg("cdc engine failed")
			stopBestEffort(runner, h.cfg.SourceID)
		}
	}()

	if err := runner.Start(); err != nil {
		log.Error().Err(err).Str("source_id", h.cfg.SourceID).Msg("cdc engine failed to start")
		stopBestEffort(runner, h.cfg.SourceID)
		return
	}
	log.Info().Str("source_id", h.cfg.SourceID).Msg("start consuming events")

	options := append([]Option{
		WithMetrics(h.sink),
		WithSourceLabels(h.cfg.SourceType, h.cfg.SourceID),
	}, h.options...)

	NewPump(runner, channel, cancelled, h.sender, options...).Run(ctx)
}

func stopBestEffort(runner engine.Runner, sourceID string) {
	if err := runner.Stop(); err != nil {
		log.Warn().Err(err).Str("source_id", sourceID).Msg("failed to stop engine")
	}
}
