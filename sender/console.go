package sender

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/web3tea/cdc-relay/engine"
)

// ConsoleSender renders each batch as pretty tables, one per event, for
// interactive inspection of a channel.
type ConsoleSender struct {
	out            io.Writer
	colorEnabled   bool
	maxColumnWidth int
}

type ConsoleOption func(*ConsoleSender)

// WithColorOutput enables or disables colored output.
func WithColorOutput(enabled bool) ConsoleOption {
	return func(s *ConsoleSender) {
		s.colorEnabled = enabled
	}
}

// WithMaxColumnWidth sets the maximum column width for truncation.
func WithMaxColumnWidth(width int) ConsoleOption {
	return func(s *ConsoleSender) {
		s.maxColumnWidth = width
	}
}

func WithOutput(w io.Writer) ConsoleOption {
	return func(s *ConsoleSender) {
		s.out = w
	}
}

func NewConsoleSender(options ...ConsoleOption) *ConsoleSender {
	s := &ConsoleSender{
		out:            os.Stdout,
		colorEnabled:   true,
		maxColumnWidth: 80,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *ConsoleSender) Send(ctx context.Context, channel ChannelID, batch *engine.Batch) error {
	header := fmt.Sprintf("channel=%s events=%d checkpoint=%s commit=%s",
		channel, batch.EventCount(), batch.Checkpoint,
		batch.CommitTime.Format(time.RFC3339))
	if _, err := fmt.Fprintln(s.out, header); err != nil {
		return fmt.Errorf("failed to write batch header: %w", err)
	}

	for i := range batch.Events {
		s.writeEventTable(&batch.Events[i])
	}
	return nil
}

func (s *ConsoleSender) writeEventTable(event *engine.ChangeEvent) {
	insertColor := color.New(color.FgGreen, color.Bold).SprintFunc()
	updateColor := color.New(color.FgYellow, color.Bold).SprintFunc()
	deleteColor := color.New(color.FgRed, color.Bold).SprintFunc()

	if !s.colorEnabled {
		insertColor = fmt.Sprint
		updateColor = fmt.Sprint
		deleteColor = fmt.Sprint
	}

	var opText string
	switch event.Type {
	case engine.OperationTypeInsert:
		opText = insertColor("INSERT")
	case engine.OperationTypeUpdate:
		opText = updateColor("UPDATE")
	case engine.OperationTypeDelete:
		opText = deleteColor("DELETE")
	default:
		opText = fmt.Sprintf("%v", event.Type)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(s.out)
	tw.SetStyle(table.StyleLight)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: s.maxColumnWidth},
		{Number: 3, WidthMax: s.maxColumnWidth},
	})
	tw.SetTitle(fmt.Sprintf("%s %s.%s", opText, event.Schema, event.Table))
	tw.Style().Title.Align = text.AlignCenter

	tw.AppendHeader(table.Row{"Column", "Before", "After"})
	for _, name := range columnNames(event) {
		tw.AppendRow(table.Row{name, formatValue(event.Before[name]), formatValue(event.After[name])})
	}
	tw.AppendFooter(table.Row{"LSN", event.LSN, event.Timestamp.Format(time.RFC3339)})
	tw.Render()
}

// columnNames merges before/after column names into one stable order.
func columnNames(event *engine.ChangeEvent) []string {
	seen := map[string]struct{}{}
	var names []string
	for name := range event.Before {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for name := range event.After {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func (s *ConsoleSender) Close() error {
	return nil
}

func (s *ConsoleSender) Type() string {
	return "console"
}

var _ Sender = (*ConsoleSender)(nil)
