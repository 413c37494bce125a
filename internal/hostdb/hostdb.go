// Package hostdb registers the ncruces/go-sqlite3 driver and embedded
// WASM runtime, mirroring the connection-opening convention the
// partitioner's lineage uses for its own storage layer.
package hostdb

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DriverName is the database/sql driver name registered by the blank
// imports above.
const DriverName = "sqlite3"

// Open opens a *sql.DB against dsn using the pure-Go, WASM-embedded
// SQLite driver. A single connection is typically sufficient for a
// virtual-table module's own shadow-table bookkeeping, since the host
// engine already serializes access to the connection the module is
// attached to.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("hostdb: open %q: %w", dsn, err)
	}
	return db, nil
}
