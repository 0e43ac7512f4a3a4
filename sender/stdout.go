package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/web3tea/cdc-relay/engine"
	"github.com/web3tea/cdc-relay/pkg/log"
)

// StdoutSender writes each batch as one JSON line.
type StdoutSender struct {
	out         io.Writer
	prettyPrint bool
}

type StdoutOption func(*StdoutSender)

func WithPrettyPrint(enabled bool) StdoutOption {
	return func(s *StdoutSender) {
		s.prettyPrint = enabled
	}
}

func WithWriter(w io.Writer) StdoutOption {
	return func(s *StdoutSender) {
		s.out = w
	}
}

func NewStdoutSender(options ...StdoutOption) *StdoutSender {
	s := &StdoutSender{out: os.Stdout}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *StdoutSender) Send(ctx context.Context, channel ChannelID, batch *engine.Batch) error {
	log.Debug().Str("channel", string(channel)).Int("events", batch.EventCount()).Msg("StdoutSender Send")

	payload := struct {
		Channel ChannelID     `json:"channel"`
		Count   int           `json:"count"`
		Batch   *engine.Batch `json:"batch"`
	}{
		Channel: channel,
		Count:   batch.EventCount(),
		Batch:   batch,
	}

	var (
		data []byte
		err  error
	)
	if s.prettyPrint {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	if _, err := fmt.Fprintln(s.out, string(data)); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	return nil
}

func (s *StdoutSender) Close() error {
	return nil
}

func (s *StdoutSender) Type() string {
	return "stdout"
}

var _ Sender = (*StdoutSender)(nil)
