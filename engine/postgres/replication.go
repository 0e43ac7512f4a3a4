package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/yugabyte/pgx/v5/pgconn"
)

type ReplicationSlotInfo struct {
	SlotName          string         `json:"slot_name"`
	Plugin            string         `json:"plugin"`
	SlotType          string         `json:"slot_type"`
	Database          string         `json:"database"`
	Temporary         bool           `json:"temporary"`
	Active            bool           `json:"active"`
	ActivePID         sql.NullInt32  `json:"active_pid"`
	Xmin              sql.NullString `json:"xmin"`
	RestartLSN        LSN            `json:"restart_lsn"`
	ConfirmedFlushLSN LSN            `json:"confirmed_flush_lsn"`
	RetainedWALBytes  int64          `json:"retained_wal_bytes,omitempty"`
}

// ListReplicationSlots returns all replication slots visible on the server.
func ListReplicationSlots(ctx context.Context, conn *pgconn.PgConn) ([]ReplicationSlotInfo, error) {
	return queryReplicationSlots(ctx, conn, nil)
}

// GetReplicationSlot returns the named replication slot.
func GetReplicationSlot(ctx context.Context, conn *pgconn.PgConn, slotName string) (*ReplicationSlotInfo, error) {
	slots, err := queryReplicationSlots(ctx, conn, &slotName)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("replication slot %s not found", slotName)
	}
	return &slots[0], nil
}

func queryReplicationSlots(ctx context.Context, conn *pgconn.PgConn, slotName *string) ([]ReplicationSlotInfo, error) {
	query := `
		SELECT
			slot_name,
			plugin,
			slot_type,
			database,
			temporary,
			active,
			active_pid,
			xmin::text,
			restart_lsn,
			confirmed_flush_lsn,
			pg_wal_lsn_diff(pg_current_wal_lsn(), restart_lsn) AS retained_bytes
		FROM
			pg_catalog.pg_replication_slots
	`
	var params [][]byte
	if slotName != nil {
		query += " WHERE slot_name = $1"
		params = append(params, []byte(*slotName))
	}

	result := conn.ExecParams(ctx, query, params, nil, nil, nil).Read()
	if result.Err != nil {
		return nil, fmt.Errorf("failed to query replication slots: %w", result.Err)
	}

	slots := make([]ReplicationSlotInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		var slot ReplicationSlotInfo

		slot.SlotName = string(row[0])
		slot.Plugin = string(row[1])
		slot.SlotType = string(row[2])
		slot.Database = string(row[3])
		slot.Temporary = string(row[4]) == "t"
		slot.Active = string(row[5]) == "t"

		if len(row[6]) > 0 {
			pid, err := strconv.ParseInt(string(row[6]), 10, 32)
			if err == nil {
				slot.ActivePID = sql.NullInt32{Int32: int32(pid), Valid: true}
			}
		}
		if len(row[7]) > 0 {
			slot.Xmin = sql.NullString{String: string(row[7]), Valid: true}
		}
		if len(row[8]) > 0 {
			if lsn, err := ParseLSN(string(row[8])); err == nil {
				slot.RestartLSN = lsn
			}
		}
		if len(row[9]) > 0 {
			if lsn, err := ParseLSN(string(row[9])); err == nil {
				slot.ConfirmedFlushLSN = lsn
			}
		}
		if len(row[10]) > 0 {
			slot.RetainedWALBytes, _ = strconv.ParseInt(string(row[10]), 10, 64)
		}

		slots = append(slots, slot)
	}

	return slots, nil
}

// CheckReplicationSlotExists reports whether the named slot exists.
func CheckReplicationSlotExists(ctx context.Context, conn *pgconn.PgConn, slotName string) (bool, error) {
	query := "SELECT 1 FROM pg_replication_slots WHERE slot_name = $1"
	result := conn.ExecParams(ctx, query, [][]byte{[]byte(slotName)}, nil, nil, nil)

	cmdTag, err := result.Close()
	if err != nil {
		return false, fmt.Errorf("failed to query replication slot: %w", err)
	}
	return cmdTag.RowsAffected() > 0, nil
}

type CreateReplicationSlotOptions struct {
	OutputPlugin string
	Temporary    bool
}

type CreateReplicationSlotResult struct {
	Name string
	LSN  LSN
}

// CreateLogicalReplicationSlot creates a logical replication slot and
// returns its name and consistent-point LSN.
func CreateLogicalReplicationSlot(ctx context.Context, conn *pgconn.PgConn, slotName string, options CreateReplicationSlotOptions) (*CreateReplicationSlotResult, error) {
	query := fmt.Sprintf("SELECT * FROM pg_create_logical_replication_slot('%s', '%s', %v);",
		slotName, options.OutputPlugin, options.Temporary)

	results, err := conn.Exec(ctx, query).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to create logical replication slot: %w", err)
	}
	if len(results) == 0 || len(results[0].Rows) == 0 {
		return nil, fmt.Errorf("no result returned from pg_create_logical_replication_slot")
	}
	if len(results[0].Rows[0]) < 2 {
		return nil, fmt.Errorf("expected 2 columns in result, got %d", len(results[0].Rows[0]))
	}

	lsn, err := ParseLSN(string(results[0].Rows[0][1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse LSN: %w", err)
	}

	return &CreateReplicationSlotResult{
		Name: string(results[0].Rows[0][0]),
		LSN:  lsn,
	}, nil
}

// DropReplicationSlot drops a replication slot.
func DropReplicationSlot(ctx context.Context, conn *pgconn.PgConn, slotName string) error {
	query := fmt.Sprintf("SELECT pg_drop_replication_slot('%s');", slotName)
	_, err := conn.Exec(ctx, query).ReadAll()
	return err
}
