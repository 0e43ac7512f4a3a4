package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/yugabyte/pgx/v5/pgconn"
)

type PublicationParams struct {
	Name            string
	Tables          []string
	AllTables       bool
	PublishInsert   bool
	PublishUpdate   bool
	PublishDelete   bool
	PublishTruncate bool
}

// CreatePublication creates a publication covering the given tables, or
// all tables when none are named.
func CreatePublication(ctx context.Context, conn *pgconn.PgConn, params PublicationParams) error {
	if params.Name == "" {
		return fmt.Errorf("publication name cannot be empty")
	}

	query := fmt.Sprintf("CREATE PUBLICATION %s ", pq.QuoteIdentifier(params.Name))

	if params.AllTables {
		query += "FOR ALL TABLES "
	} else if len(params.Tables) > 0 {
		tableNames := make([]string, len(params.Tables))
		for i, table := range params.Tables {
			if strings.Contains(table, ".") {
				parts := strings.SplitN(table, ".", 2)
				tableNames[i] = pq.QuoteIdentifier(parts[0]) + "." + pq.QuoteIdentifier(parts[1])
			} else {
				tableNames[i] = pq.QuoteIdentifier(table)
			}
		}
		query += "FOR TABLE " + strings.Join(tableNames, ", ") + " "
	}

	var operations []string
	if params.PublishInsert {
		operations = append(operations, "insert")
	}
	if params.PublishUpdate {
		operations = append(operations, "update")
	}
	if params.PublishDelete {
		operations = append(operations, "delete")
	}
	if params.PublishTruncate {
		operations = append(operations, "truncate")
	}
	if len(operations) > 0 {
		query += fmt.Sprintf("WITH (publish = '%s')", strings.Join(operations, ", "))
	}

	if _, err := conn.Exec(ctx, query).ReadAll(); err != nil {
		return fmt.Errorf("failed to create publication: %w", err)
	}
	return nil
}

// DropPublication drops a publication.
func DropPublication(ctx context.Context, conn *pgconn.PgConn, name string) error {
	query := fmt.Sprintf("DROP PUBLICATION %s", pq.QuoteIdentifier(name))
	if _, err := conn.Exec(ctx, query).ReadAll(); err != nil {
		return fmt.Errorf("failed to drop publication: %w", err)
	}
	return nil
}

// CheckPublicationExists reports whether the named publication exists.
func CheckPublicationExists(ctx context.Context, conn *pgconn.PgConn, name string) (bool, error) {
	query := "SELECT 1 FROM pg_publication WHERE pubname = $1"
	result := conn.ExecParams(ctx, query, [][]byte{[]byte(name)}, nil, nil, nil)

	cmdTag, err := result.Close()
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}
