package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/web3tea/cdc-relay/engine"
)

type Config struct {
	AppName  string `json:"app_name" yaml:"app_name" toml:"app_name"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// MetricsAddress is the listen address of the /metrics endpoint;
	// empty disables it.
	MetricsAddress string `json:"metrics_address" yaml:"metrics_address" toml:"metrics_address"`

	Engine engine.Config `json:"engine" yaml:"engine" toml:"engine"`
	Relay  RelayConfig   `json:"relay" yaml:"relay" toml:"relay"`
	Sender SenderConfig  `json:"sender" yaml:"sender" toml:"sender"`
}

type RelayConfig struct {
	// Channel names the logical output the relay serves.
	Channel string `json:"channel" yaml:"channel" toml:"channel"`

	// PollTimeout bounds each blocking dequeue from the engine output.
	PollTimeout Duration `json:"poll_timeout" yaml:"poll_timeout" toml:"poll_timeout"`
}

type SenderConfig struct {
	Type    string              `json:"type" yaml:"type" toml:"type"`
	Stdout  StdoutSenderConfig  `json:"stdout,omitempty" yaml:"stdout,omitempty" toml:"stdout,omitempty"`
	Console ConsoleSenderConfig `json:"console,omitempty" yaml:"console,omitempty" toml:"console,omitempty"`
}

type StdoutSenderConfig struct {
	PrettyPrint bool `json:"pretty_print" yaml:"pretty_print" toml:"pretty_print"`
}

type ConsoleSenderConfig struct {
	Color          bool `json:"color" yaml:"color" toml:"color"`
	MaxColumnWidth int  `json:"max_column_width" yaml:"max_column_width" toml:"max_column_width"`
}

// Duration is a time.Duration that unmarshals from "500ms" style strings
// in TOML and JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		return d.UnmarshalText([]byte(v))
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	default:
		return fmt.Errorf("invalid duration: %v", raw)
	}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".toml"):
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Relay.PollTimeout < 0 {
		return fmt.Errorf("relay.poll_timeout must not be negative")
	}
	if c.Engine.ChannelBufferSize < 0 {
		return fmt.Errorf("engine.channel_buffer_size must not be negative")
	}
	return nil
}

func DefaultConfig() Config {
	return Config{
		AppName:  "cdc-relay",
		LogLevel: "info",
		Engine: engine.Config{
			SourceType: "postgres",
		},
		Relay: RelayConfig{
			Channel:     "default",
			PollTimeout: Duration(500 * time.Millisecond),
		},
		Sender: SenderConfig{
			Type: "stdout",
		},
	}
}
