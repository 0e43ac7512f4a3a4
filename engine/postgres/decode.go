package postgres

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/yugabyte/pgx/v5/pgtype"

	"github.com/web3tea/cdc-relay/engine"
	"github.com/web3tea/cdc-relay/pkg/log"
)

// rowDecoder turns the pgoutput stream into change events grouped by
// transaction and pushes one batch per commit to the output channel.
type rowDecoder struct {
	relations map[uint32]*RelationMessage
	typeMap   *pgtype.Map
	tracker   *transactionTracker
}

func newRowDecoder() *rowDecoder {
	return &rowDecoder{
		relations: map[uint32]*RelationMessage{},
		typeMap:   pgtype.NewMap(),
		tracker:   &transactionTracker{},
	}
}

func (d *rowDecoder) Process(ctx context.Context, walData []byte, out *engine.OutputChannel) error {
	logicalMsg, err := Parse(walData)
	if err != nil {
		return fmt.Errorf("parse logical replication message: %w", err)
	}
	log.Debug().Str("type", logicalMsg.Type().String()).Msg("Process logical replication message")

	switch logicalMsg := logicalMsg.(type) {
	case *RelationMessage:
		d.relations[logicalMsg.RelationID] = logicalMsg
	case *BeginMessage:
		d.handleBegin(logicalMsg)
	case *CommitMessage:
		return d.handleCommit(ctx, logicalMsg, out)
	case *InsertMessage:
		return d.handleInsert(logicalMsg)
	case *UpdateMessage:
		return d.handleUpdate(logicalMsg)
	case *DeleteMessage:
		return d.handleDelete(logicalMsg)
	case *TruncateMessage:
	case *TypeMessage:
	case *OriginMessage:
	case *LogicalDecodingMessage:
	default:
		return fmt.Errorf("unknown message type in pgoutput stream: %T", logicalMsg)
	}
	return nil
}

func (d *rowDecoder) handleBegin(msg *BeginMessage) {
	log.Debug().Uint32("xid", msg.Xid).
		Str("lsn", msg.FinalLSN.String()).
		Time("timestamp", msg.CommitTime).
		Msg("Begin transaction")

	d.tracker.Begin(msg.Xid, msg.FinalLSN, msg.CommitTime)
}

// handleCommit seals the pending transaction into a batch. Committed
// transactions whose changes were all filtered out still produce a batch
// with zero events.
func (d *rowDecoder) handleCommit(ctx context.Context, msg *CommitMessage, out *engine.OutputChannel) error {
	log.Debug().Uint8("flags", msg.Flags).
		Str("lsn", msg.CommitLSN.String()).
		Str("end_lsn", msg.TransactionEndLSN.String()).
		Time("timestamp", msg.CommitTime).
		Msg("Commit transaction")

	batch := d.tracker.End(msg.CommitLSN, msg.TransactionEndLSN, msg.CommitTime)
	return out.Push(ctx, batch)
}

func (d *rowDecoder) handleInsert(msg *InsertMessage) error {
	rel, ok := d.relations[msg.RelationID]
	if !ok {
		return fmt.Errorf("unknown relation id: %d", msg.RelationID)
	}

	values, err := d.decodeTuple(rel, msg.Tuple)
	if err != nil {
		return err
	}

	d.tracker.Add(engine.ChangeEvent{
		Type:       engine.OperationTypeInsert,
		Schema:     rel.Namespace,
		Table:      rel.RelationName,
		PrimaryKey: lo.PickByKeys(values, keyColumns(rel)),
		After:      values,
	})
	return nil
}

func (d *rowDecoder) handleUpdate(msg *UpdateMessage) error {
	rel, ok := d.relations[msg.RelationID]
	if !ok {
		return fmt.Errorf("unknown relation id: %d", msg.RelationID)
	}

	var oldValues map[string]any
	if msg.OldTuple != nil {
		var err error
		oldValues, err = d.decodeTuple(rel, msg.OldTuple)
		if err != nil {
			return err
		}
	}
	newValues, err := d.decodeTuple(rel, msg.NewTuple)
	if err != nil {
		return err
	}

	keys := keyColumns(rel)
	primaryKey := lo.PickByKeys(newValues, keys)
	if len(primaryKey) == 0 && oldValues != nil {
		primaryKey = lo.PickByKeys(oldValues, keys)
	}

	d.tracker.Add(engine.ChangeEvent{
		Type:       engine.OperationTypeUpdate,
		Schema:     rel.Namespace,
		Table:      rel.RelationName,
		PrimaryKey: primaryKey,
		Before:     oldValues,
		After:      newValues,
	})
	return nil
}

func (d *rowDecoder) handleDelete(msg *DeleteMessage) error {
	rel, ok := d.relations[msg.RelationID]
	if !ok {
		return fmt.Errorf("unknown relation id: %d", msg.RelationID)
	}

	values, err := d.decodeTuple(rel, msg.OldTuple)
	if err != nil {
		return err
	}

	d.tracker.Add(engine.ChangeEvent{
		Type:       engine.OperationTypeDelete,
		Schema:     rel.Namespace,
		Table:      rel.RelationName,
		PrimaryKey: lo.PickByKeys(values, keyColumns(rel)),
		Before:     values,
	})
	return nil
}

func (d *rowDecoder) decodeTuple(rel *RelationMessage, tuple *TupleData) (map[string]any, error) {
	if tuple == nil {
		return nil, nil
	}

	values := make(map[string]any, len(tuple.Columns))
	for idx, col := range tuple.Columns {
		if idx >= len(rel.Columns) {
			return nil, fmt.Errorf("tuple has more columns than relation %s.%s", rel.Namespace, rel.RelationName)
		}
		colName := rel.Columns[idx].Name
		switch col.DataType {
		case TupleDataTypeNull:
			values[colName] = nil
		case TupleDataTypeUnchangedToast:
			// unchanged TOAST values are not shipped in the tuple
		case TupleDataTypeText:
			val, err := decodeTextColumnData(d.typeMap, col.Data, rel.Columns[idx].DataType)
			if err != nil {
				return nil, fmt.Errorf("error decoding column %s: %w", colName, err)
			}
			values[colName] = val
		}
	}
	return values, nil
}

// keyColumns returns the replica identity columns of a relation.
func keyColumns(rel *RelationMessage) []string {
	return lo.FilterMap(rel.Columns, func(col *RelationColumn, _ int) (string, bool) {
		return col.Name, col.Flags&1 == 1
	})
}

func decodeTextColumnData(mi *pgtype.Map, data []byte, dataType uint32) (any, error) {
	if dt, ok := mi.TypeForOID(dataType); ok {
		return dt.Codec.DecodeValue(mi, dataType, pgtype.TextFormatCode, data)
	}
	return string(data), nil
}
