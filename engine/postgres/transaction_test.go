package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3tea/cdc-relay/engine"
)

func TestTransactionTrackerSealsBatch(t *testing.T) {
	tracker := &transactionTracker{}
	commitTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tracker.Begin(730, LSN(0x100), commitTime)
	tracker.Add(engine.ChangeEvent{Type: engine.OperationTypeInsert, Table: "accounts"})
	tracker.Add(engine.ChangeEvent{Type: engine.OperationTypeUpdate, Table: "accounts"})

	batch := tracker.End(LSN(0x100), LSN(0x200), commitTime)
	require.NotNil(t, batch)
	assert.Equal(t, 2, batch.EventCount())
	assert.Equal(t, uint32(730), batch.Xid)
	assert.Equal(t, LSN(0x200).String(), batch.Checkpoint)
	assert.True(t, batch.CommitTime.Equal(commitTime))

	// events in insertion order
	assert.Equal(t, engine.OperationTypeInsert, batch.Events[0].Type)
	assert.Equal(t, engine.OperationTypeUpdate, batch.Events[1].Type)
}

func TestTransactionTrackerFillsDefaults(t *testing.T) {
	tracker := &transactionTracker{}
	commitTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tracker.Begin(731, LSN(0x300), commitTime)
	tracker.Add(engine.ChangeEvent{Type: engine.OperationTypeDelete, Table: "accounts"})

	batch := tracker.End(LSN(0x300), LSN(0x400), commitTime)
	require.Equal(t, 1, batch.EventCount())

	event := batch.Events[0]
	assert.NotEmpty(t, event.ID)
	assert.True(t, event.Timestamp.Equal(commitTime))
	assert.Equal(t, LSN(0x300).String(), event.LSN)
}

func TestTransactionTrackerUniqueIDs(t *testing.T) {
	tracker := &transactionTracker{}
	tracker.Begin(732, LSN(0x500), time.Now())
	tracker.Add(engine.ChangeEvent{Type: engine.OperationTypeInsert})
	tracker.Add(engine.ChangeEvent{Type: engine.OperationTypeInsert})

	batch := tracker.End(LSN(0x500), LSN(0x600), time.Now())
	require.Equal(t, 2, batch.EventCount())
	assert.NotEqual(t, batch.Events[0].ID, batch.Events[1].ID)
}

func TestTransactionTrackerEmptyTransaction(t *testing.T) {
	tracker := &transactionTracker{}
	commitTime := time.Now()

	tracker.Begin(733, LSN(0x700), commitTime)
	batch := tracker.End(LSN(0x700), LSN(0x800), commitTime)

	// a committed transaction with no decoded changes still seals a batch
	require.NotNil(t, batch)
	assert.Equal(t, 0, batch.EventCount())
	assert.Equal(t, LSN(0x800).String(), batch.Checkpoint)
	assert.Equal(t, uint32(733), batch.Xid)
}

func TestTransactionTrackerResetsBetweenTransactions(t *testing.T) {
	tracker := &transactionTracker{}

	tracker.Begin(734, LSN(0x900), time.Now())
	tracker.Add(engine.ChangeEvent{Type: engine.OperationTypeInsert})
	first := tracker.End(LSN(0x900), LSN(0xA00), time.Now())
	require.Equal(t, 1, first.EventCount())

	tracker.Begin(735, LSN(0xB00), time.Now())
	second := tracker.End(LSN(0xB00), LSN(0xC00), time.Now())
	assert.Equal(t, 0, second.EventCount())
	assert.Equal(t, uint32(735), second.Xid)

	// sealing the second transaction must not mutate the first batch
	assert.Equal(t, 1, first.EventCount())
}
