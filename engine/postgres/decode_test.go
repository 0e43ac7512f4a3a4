package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3tea/cdc-relay/engine"
)

func processAll(t *testing.T, d *rowDecoder, out *engine.OutputChannel, msgs ...[]byte) {
	t.Helper()
	for _, msg := range msgs {
		require.NoError(t, d.Process(context.Background(), msg, out))
	}
}

func TestRowDecoderInsertTransaction(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	processAll(t, d, out,
		encodeRelation(16385, "public", "accounts"),
		encodeBegin(LSN(0x1000), 730),
		encodeInsert(16385, "1", "alice"),
		encodeCommit(LSN(0x1000), LSN(0x1100)),
	)

	batch, err := out.Poll(time.Second)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, LSN(0x1100).String(), batch.Checkpoint)
	assert.Equal(t, uint32(730), batch.Xid)
	require.Equal(t, 1, batch.EventCount())

	event := batch.Events[0]
	assert.Equal(t, engine.OperationTypeInsert, event.Type)
	assert.Equal(t, "public", event.Schema)
	assert.Equal(t, "accounts", event.Table)
	assert.Equal(t, int64(1), event.After["id"])
	assert.Equal(t, "alice", event.After["name"])
	assert.Equal(t, map[string]any{"id": int64(1)}, event.PrimaryKey)
	assert.Nil(t, event.Before)
	assert.NotEmpty(t, event.ID)
}

func TestRowDecoderUpdateTransaction(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	processAll(t, d, out,
		encodeRelation(16385, "public", "accounts"),
		encodeBegin(LSN(0x2000), 731),
		encodeUpdate(16385, "1", "alice", "1", "bob"),
		encodeCommit(LSN(0x2000), LSN(0x2100)),
	)

	batch, err := out.Poll(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, batch.EventCount())

	event := batch.Events[0]
	assert.Equal(t, engine.OperationTypeUpdate, event.Type)
	assert.Equal(t, "alice", event.Before["name"])
	assert.Equal(t, "bob", event.After["name"])
	assert.Equal(t, map[string]any{"id": int64(1)}, event.PrimaryKey)
}

func TestRowDecoderDeleteTransaction(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	processAll(t, d, out,
		encodeRelation(16385, "public", "accounts"),
		encodeBegin(LSN(0x3000), 732),
		encodeDelete(16385, "1"),
		encodeCommit(LSN(0x3000), LSN(0x3100)),
	)

	batch, err := out.Poll(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, batch.EventCount())

	event := batch.Events[0]
	assert.Equal(t, engine.OperationTypeDelete, event.Type)
	assert.Equal(t, int64(1), event.Before["id"])
	assert.Nil(t, event.After)
}

func TestRowDecoderEmptyTransactionYieldsBatch(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	processAll(t, d, out,
		encodeBegin(LSN(0x4000), 733),
		encodeCommit(LSN(0x4000), LSN(0x4100)),
	)

	batch, err := out.Poll(time.Second)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 0, batch.EventCount())
	assert.Equal(t, LSN(0x4100).String(), batch.Checkpoint)
}

func TestRowDecoderMultipleTransactions(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	processAll(t, d, out,
		encodeRelation(16385, "public", "accounts"),
		encodeBegin(LSN(0x5000), 734),
		encodeInsert(16385, "1", "alice"),
		encodeCommit(LSN(0x5000), LSN(0x5100)),
		encodeBegin(LSN(0x6000), 735),
		encodeInsert(16385, "2", "bob"),
		encodeInsert(16385, "3", "carol"),
		encodeCommit(LSN(0x6000), LSN(0x6100)),
	)

	first, err := out.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, first.EventCount())
	assert.Equal(t, uint32(734), first.Xid)

	second, err := out.Poll(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, second.EventCount())
	assert.Equal(t, uint32(735), second.Xid)
	assert.Equal(t, "bob", second.Events[0].After["name"])
	assert.Equal(t, "carol", second.Events[1].After["name"])
}

func TestRowDecoderUnknownRelation(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	require.NoError(t, d.Process(context.Background(), encodeBegin(LSN(0x7000), 736), out))
	err := d.Process(context.Background(), encodeInsert(99999, "1", "x"), out)
	assert.Error(t, err)
}

func TestRowDecoderGarbage(t *testing.T) {
	d := newRowDecoder()
	out := engine.NewOutputChannel(4)

	err := d.Process(context.Background(), []byte{0xDE, 0xAD}, out)
	assert.Error(t, err)
}
