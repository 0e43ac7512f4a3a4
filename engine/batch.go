package engine

import "time"

// Batch is the unit the engine hands to its consumer: the ordered change
// events of one committed source transaction. A batch is never mutated
// after it leaves the engine; ownership transfers to the consumer on
// dequeue. A committed transaction with no decodable changes still yields
// a batch with zero events.
type Batch struct {
	// Events holds the row changes in commit order.
	Events []ChangeEvent `json:"events"`

	// Checkpoint is the source position that may be acknowledged once the
	// batch has been delivered downstream.
	Checkpoint string `json:"checkpoint,omitempty"`

	// Xid is the source transaction id, when the source has one.
	Xid uint32 `json:"xid,omitempty"`

	// CommitTime is when the transaction committed on the source.
	CommitTime time.Time `json:"commit_time,omitempty"`
}

// EventCount returns the number of events carried by the batch.
func (b *Batch) EventCount() int {
	return len(b.Events)
}
