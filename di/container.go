package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/web3tea/cdc-relay/config"
	"github.com/web3tea/cdc-relay/metrics"
	"github.com/web3tea/cdc-relay/relay"
	"github.com/web3tea/cdc-relay/sender"
)

func SetupContainer(cfgPath string) do.Injector {
	injector := do.New()

	do.ProvideNamedValue(injector, "configPath", cfgPath)
	do.Provide(injector, NewConfig)
	do.Provide(injector, NewMetricsSink)
	do.Provide(injector, NewSender)
	do.Provide(injector, NewHandler)

	return injector
}

func NewConfig(i do.Injector) (*config.Config, error) {
	return config.LoadFromFile(do.MustInvokeNamed[string](i, "configPath"))
}

func NewMetricsSink(i do.Injector) (metrics.Sink, error) {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.MetricsAddress == "" {
		return metrics.NopSink{}, nil
	}
	metrics.Register()
	return metrics.NewPrometheusSink(), nil
}

func NewSender(i do.Injector) (sender.Sender, error) {
	cfg := do.MustInvoke[*config.Config](i)

	switch cfg.Sender.Type {
	case "", "stdout":
		return sender.NewStdoutSender(
			sender.WithPrettyPrint(cfg.Sender.Stdout.PrettyPrint),
		), nil
	case "console":
		options := []sender.ConsoleOption{
			sender.WithColorOutput(cfg.Sender.Console.Color),
		}
		if cfg.Sender.Console.MaxColumnWidth > 0 {
			options = append(options, sender.WithMaxColumnWidth(cfg.Sender.Console.MaxColumnWidth))
		}
		return sender.NewConsoleSender(options...), nil
	default:
		return nil, fmt.Errorf("unknown sender type: %s", cfg.Sender.Type)
	}
}

func NewHandler(i do.Injector) (*relay.Handler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	snd := do.MustInvoke[sender.Sender](i)
	sink := do.MustInvoke[metrics.Sink](i)

	var options []relay.Option
	if cfg.Relay.PollTimeout > 0 {
		options = append(options, relay.WithPollTimeout(cfg.Relay.PollTimeout.Std()))
	}
	return relay.NewHandler(cfg.Engine, snd, sink, options...), nil
}
