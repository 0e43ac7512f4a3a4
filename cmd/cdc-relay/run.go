package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"

	"github.com/web3tea/cdc-relay/config"
	"github.com/web3tea/cdc-relay/di"
	"github.com/web3tea/cdc-relay/metrics"
	"github.com/web3tea/cdc-relay/pkg/log"
	"github.com/web3tea/cdc-relay/relay"
	"github.com/web3tea/cdc-relay/sender"

	_ "github.com/web3tea/cdc-relay/engine/postgres"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Run the capture-and-relay loop",
	Flags: []cli.Flag{configFlag},
	Action: func(ctx context.Context, c *cli.Command) error {
		injector := di.SetupContainer(c.String("config"))

		cfg, err := do.Invoke[*config.Config](injector)
		if err != nil {
			return err
		}
		if err := log.SetLevel(cfg.LogLevel); err != nil {
			return err
		}

		handler, err := do.Invoke[*relay.Handler](injector)
		if err != nil {
			return err
		}
		snd := do.MustInvoke[sender.Sender](injector)
		defer func() {
			if err := snd.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close sender")
			}
		}()

		if cfg.MetricsAddress != "" {
			go serveMetrics(cfg.MetricsAddress)
		}

		// A signal trips the flag; the relay notices it within one poll
		// window and stops the engine.
		cancelled := relay.NewFlag()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			cancelled.Trip()
		}()

		log.Info().Str("source_id", cfg.Engine.SourceID).
			Str("channel", cfg.Relay.Channel).
			Msg("starting cdc relay")

		handler.Start(ctx, sender.ChannelID(cfg.Relay.Channel), cancelled.Signal())

		log.Info().Msg("cdc relay stopped")
		return nil
	},
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.NewRegistry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("address", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server exited")
	}
}
