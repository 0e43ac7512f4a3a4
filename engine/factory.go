package engine

import (
	"fmt"
	"strings"
	"sync"
)

type DatabaseConfig struct {
	Hosts    []string `json:"hosts" yaml:"hosts" toml:"hosts"`
	Port     uint16   `json:"port" yaml:"port" toml:"port"`
	Username string   `json:"username" yaml:"username" toml:"username"`
	Password string   `json:"password" yaml:"password" toml:"password"`
	Database string   `json:"database" yaml:"database" toml:"database"`
}

type Config struct {
	SourceType            string         `json:"source_type" yaml:"source_type" toml:"source_type"`
	SourceID              string         `json:"source_id" yaml:"source_id" toml:"source_id"`
	Database              DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	SlotName              string         `json:"slot_name" yaml:"slot_name" toml:"slot_name"`
	PublicationName       string         `json:"publication_name" yaml:"publication_name" toml:"publication_name"`
	Tables                []string       `json:"tables" yaml:"tables" toml:"tables"`
	DropSlotOnStop        bool           `json:"drop_slot_on_stop" yaml:"drop_slot_on_stop" toml:"drop_slot_on_stop"`
	DropPublicationOnStop bool           `json:"drop_publication_on_stop" yaml:"drop_publication_on_stop" toml:"drop_publication_on_stop"`
	ChannelBufferSize     int            `json:"channel_buffer_size" yaml:"channel_buffer_size" toml:"channel_buffer_size"`
}

// SourceBuilder constructs a Source for one source type.
type SourceBuilder func(cfg Config) (Source, error)

var (
	buildersMu sync.RWMutex
	builders   = map[string]SourceBuilder{}
)

// RegisterSource makes a source type available to NewRunner. Concrete
// sources register themselves from their package init.
func RegisterSource(sourceType string, builder SourceBuilder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[strings.ToLower(sourceType)] = builder
}

// NewRunner builds a runner for the configured source type. An unknown
// source type yields (nil, nil): the configuration simply does not apply
// here, which is not an error.
func NewRunner(cfg Config) (Runner, error) {
	buildersMu.RLock()
	builder, ok := builders[strings.ToLower(cfg.SourceType)]
	buildersMu.RUnlock()
	if !ok {
		return nil, nil
	}

	src, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s source: %w", cfg.SourceType, err)
	}
	return newRunner(src, cfg.ChannelBufferSize), nil
}
