package postgres

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/web3tea/cdc-relay/engine"
)

// transactionTracker accumulates the row changes of the transaction
// currently being decoded and seals them into a batch on commit.
type transactionTracker struct {
	xid           uint32
	beginLSN      LSN
	commitTime    time.Time
	pendingEvents []engine.ChangeEvent
	eventCounter  int
	mu            sync.Mutex
}

func (t *transactionTracker) Begin(xid uint32, lsn LSN, commitTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.xid = xid
	t.beginLSN = lsn
	t.commitTime = commitTime
	t.pendingEvents = t.pendingEvents[:0]
	t.eventCounter = 0
}

func (t *transactionTracker) Add(event engine.ChangeEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.ID == "" {
		event.ID = t.generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = t.commitTime
	}
	if event.LSN == "" {
		event.LSN = t.beginLSN.String()
	}
	t.pendingEvents = append(t.pendingEvents, event)
}

// End seals the current transaction into a batch. A transaction whose
// changes all fell outside the decoded tables still yields a batch with
// zero events so the checkpoint advances.
func (t *transactionTracker) End(commitLSN, endLSN LSN, commitTime time.Time) *engine.Batch {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := make([]engine.ChangeEvent, len(t.pendingEvents))
	copy(events, t.pendingEvents)

	t.pendingEvents = t.pendingEvents[:0]
	t.eventCounter = 0

	if commitTime.IsZero() {
		commitTime = t.commitTime
	}

	return &engine.Batch{
		Events:     events,
		Checkpoint: endLSN.String(),
		Xid:        t.xid,
		CommitTime: commitTime,
	}
}

// generateEventID derives a stable ID from the transaction id, the event
// position within it and the begin LSN. Call with lock held.
func (t *transactionTracker) generateEventID() string {
	t.eventCounter++
	h := fnv.New64a()
	fmt.Fprintf(h, "%d-%d-%s", t.xid, t.eventCounter, t.beginLSN)
	return strconv.FormatUint(h.Sum64(), 16)
}
