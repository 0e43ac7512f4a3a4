package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgio"
	"github.com/yugabyte/pgx/v5/pgconn"
	"github.com/yugabyte/pgx/v5/pgproto3"
)

const (
	XLogDataByteID                = 'w'
	PrimaryKeepaliveMessageByteID = 'k'
	StandbyStatusUpdateByteID     = 'r'
)

// Replication timestamps are microseconds since midnight 2000-01-01.
const microsecFromUnixEpochToY2K = int64(946684800 * 1000000)

func pgTimeToTime(microsecSinceY2K int64) time.Time {
	return time.Unix(0, (microsecFromUnixEpochToY2K+microsecSinceY2K)*1000)
}

func timeToPgTime(t time.Time) int64 {
	return t.UnixMicro() - microsecFromUnixEpochToY2K
}

// XLogData is the payload of a 'w' CopyData message: a chunk of WAL
// starting at WALStart.
type XLogData struct {
	WALStart     LSN
	ServerWALEnd LSN
	ServerTime   time.Time
	WALData      []byte
}

func ParseXLogData(data []byte) (XLogData, error) {
	var xld XLogData
	if len(data) < 24 {
		return xld, fmt.Errorf("XLogData must be at least 24 bytes, got %d", len(data))
	}
	xld.WALStart = LSN(binary.BigEndian.Uint64(data))
	xld.ServerWALEnd = LSN(binary.BigEndian.Uint64(data[8:]))
	xld.ServerTime = pgTimeToTime(int64(binary.BigEndian.Uint64(data[16:])))
	xld.WALData = data[24:]
	return xld, nil
}

// PrimaryKeepaliveMessage is the payload of a 'k' CopyData message.
type PrimaryKeepaliveMessage struct {
	ServerWALEnd   LSN
	ServerTime     time.Time
	ReplyRequested bool
}

func ParsePrimaryKeepaliveMessage(data []byte) (PrimaryKeepaliveMessage, error) {
	var pkm PrimaryKeepaliveMessage
	if len(data) < 17 {
		return pkm, fmt.Errorf("primary keepalive message must be at least 17 bytes, got %d", len(data))
	}
	pkm.ServerWALEnd = LSN(binary.BigEndian.Uint64(data))
	pkm.ServerTime = pgTimeToTime(int64(binary.BigEndian.Uint64(data[8:])))
	pkm.ReplyRequested = data[16] != 0
	return pkm, nil
}

// StandbyStatusUpdate reports the client's replication progress back to
// the server.
type StandbyStatusUpdate struct {
	WALWritePosition LSN
	WALFlushPosition LSN
	WALApplyPosition LSN
	ClientTime       time.Time
	ReplyRequested   bool
}

// SendStandbyStatusUpdate sends a status update to the server on a
// connection that is streaming replication data.
func SendStandbyStatusUpdate(_ context.Context, conn *pgconn.PgConn, ssu StandbyStatusUpdate) error {
	if ssu.WALFlushPosition == 0 {
		ssu.WALFlushPosition = ssu.WALWritePosition
	}
	if ssu.WALApplyPosition == 0 {
		ssu.WALApplyPosition = ssu.WALWritePosition
	}
	if ssu.ClientTime.IsZero() {
		ssu.ClientTime = time.Now()
	}

	data := make([]byte, 0, 34)
	data = append(data, StandbyStatusUpdateByteID)
	data = pgio.AppendUint64(data, uint64(ssu.WALWritePosition))
	data = pgio.AppendUint64(data, uint64(ssu.WALFlushPosition))
	data = pgio.AppendUint64(data, uint64(ssu.WALApplyPosition))
	data = pgio.AppendInt64(data, timeToPgTime(ssu.ClientTime))
	if ssu.ReplyRequested {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}

	cd := &pgproto3.CopyData{Data: data}
	buf := cd.Encode(nil)
	return conn.Frontend().SendUnbufferedEncodedCopyData(buf)
}

type StartReplicationOptions struct {
	PluginArgs []string
}

// StartReplication begins streaming from the given slot. On success the
// connection is in CopyBoth mode and messages are read with
// conn.ReceiveMessage.
func StartReplication(ctx context.Context, conn *pgconn.PgConn, slotName string, startLSN LSN, options StartReplicationOptions) error {
	sql := fmt.Sprintf("START_REPLICATION SLOT %s LOGICAL %s", slotName, startLSN)
	if len(options.PluginArgs) > 0 {
		sql += fmt.Sprintf(" (%s)", strings.Join(options.PluginArgs, ", "))
	}

	conn.Frontend().SendQuery(&pgproto3.Query{String: sql})
	if err := conn.Frontend().Flush(); err != nil {
		return fmt.Errorf("failed to send START_REPLICATION: %w", err)
	}

	for {
		msg, err := conn.ReceiveMessage(ctx)
		if err != nil {
			return fmt.Errorf("failed to receive message: %w", err)
		}

		switch msg := msg.(type) {
		case *pgproto3.NoticeResponse:
		case *pgproto3.ErrorResponse:
			return fmt.Errorf("START_REPLICATION failed: %s (SQLSTATE %s)", msg.Message, msg.Code)
		case *pgproto3.CopyBothResponse:
			// replication stream is open
			return nil
		default:
			return fmt.Errorf("unexpected response to START_REPLICATION: %T", msg)
		}
	}
}
