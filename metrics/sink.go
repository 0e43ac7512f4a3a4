package metrics

// Sink is the observability collaborator injected into the relay. All
// operations are fire-and-forget counter increments with no failure
// contract.
type Sink interface {
	// IncEventsReceived records that a batch carrying count events was
	// received for the given source.
	IncEventsReceived(sourceType, sourceID string, count int)

	// IncForwardErrors records one failed poll/forward iteration.
	IncForwardErrors(sourceType, sourceID string)
}

// PrometheusSink records into the package's Prometheus collectors.
type PrometheusSink struct{}

func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{}
}

func (s *PrometheusSink) IncEventsReceived(sourceType, sourceID string, count int) {
	SourceEventsReceivedTotal.WithLabelValues(sourceType, sourceID).Add(float64(count))
	SourceBatchesReceivedTotal.WithLabelValues(sourceType, sourceID).Inc()
}

func (s *PrometheusSink) IncForwardErrors(sourceType, sourceID string) {
	RelayForwardErrorsTotal.WithLabelValues(sourceType, sourceID).Inc()
}

// NopSink discards all recordings.
type NopSink struct{}

func (NopSink) IncEventsReceived(string, string, int) {}
func (NopSink) IncForwardErrors(string, string)       {}

var (
	_ Sink = (*PrometheusSink)(nil)
	_ Sink = NopSink{}
)
