// Package database opens short-lived sessions against the checked database.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Session is a single open connection. It must be closed by the caller.
type Session interface {
	// Query runs a single statement and returns every row in result order.
	Query(ctx context.Context, query string) ([][]any, error)
	Close() error
}

// Connector opens sessions against a DSN.
type Connector interface {
	Connect(ctx context.Context, dsn string, cred credential.Pair) (Session, error)
}

// NewConnector returns the connector for driver.
func NewConnector(log logrus.FieldLogger, driver string) (Connector, error) {
	log = log.WithFields(logrus.Fields{
		"component": "database",
		"driver":    driver,
	})

	switch driver {
	case "oracle":
		return &oracleConnector{log: log}, nil
	case "postgres", "sqlite":
		return &gormConnector{log: log, driver: driver}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// collectRows drains rows into generic values. []byte values are copied
// into strings since drivers reuse their buffers.
func collectRows(rows *sqlx.Rows) ([][]any, error) {
	defer func() { _ = rows.Close() }()

	out := make([][]any, 0, 8)

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		out = append(out, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return out, nil
}

// wrapRows adapts plain database/sql rows for sqlx scanning.
func wrapRows(rows *sql.Rows) *sqlx.Rows {
	return &sqlx.Rows{Rows: rows}
}
