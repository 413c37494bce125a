// Package shadow implements the root, lookup, and template shadow
// tables that back one instance of the partitioned virtual table.
package shadow

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
)

// Table is the capability shared by every shadow table: a static
// postfix, and its own schema declaration. FullName derives the
// physical table name as "<base>_<postfix>".
type Table interface {
	Postfix() string
	Schema() *schema.Declaration
}

// FullName returns "<base>_<postfix>" for t, the naming scheme shared by
// every shadow and partition table.
func FullName(base string, t Table) string {
	return fmt.Sprintf("%s_%s", base, t.Postfix())
}

// Create persists t by executing its schema's CREATE TABLE form.
func Create(db *sql.DB, t Table) error {
	if _, err := db.Exec(t.Schema().CreateTableSQL()); err != nil {
		return perr.Hostf(err, "creating shadow table %q", t.Schema().Name)
	}
	return nil
}

// Drop executes "DROP TABLE <full name>".
func Drop(db *sql.DB, base string, t Table) error {
	name := FullName(base, t)
	if _, err := db.Exec(fmt.Sprintf("DROP TABLE %s", name)); err != nil {
		return perr.Hostf(err, "dropping shadow table %q", name)
	}
	return nil
}

// readCreateTableSQL fetches the stored CREATE TABLE text for name from
// the host catalog, the sqlite_schema-equivalent lookup used by Connect.
func readCreateTableSQL(db *sql.DB, name string) (string, error) {
	var sqlText sql.NullString
	row := db.QueryRow(`SELECT sql FROM sqlite_schema WHERE type = 'table' AND name = ?`, name)
	if err := row.Scan(&sqlText); err != nil {
		if err == sql.ErrNoRows {
			return "", perr.Hostf(err, "shadow table %q not found in sqlite_schema", name)
		}
		return "", perr.Hostf(err, "reading sqlite_schema for %q", name)
	}
	if !sqlText.Valid {
		return "", perr.Hostf(nil, "shadow table %q has no stored CREATE TABLE text", name)
	}
	return sqlText.String, nil
}

// parseCreateTable parses a stored "CREATE TABLE <name> (<cols>)"
// statement into a schema.Declaration. It is deliberately tolerant of
// the exact column-definition grammar SQLite stores (types, "hidden",
// and so on aren't re-derived precisely) since Connect only needs column
// names and enough of the type to render the table back out again. The
// partition/lifetime column flags are left unset: on Connect the
// partition column is known by name from the root table's row, not
// reconstructed from this text.
func parseCreateTable(createSQL string) (*schema.Declaration, error) {
	open := strings.IndexByte(createSQL, '(')
	close := strings.LastIndexByte(createSQL, ')')
	if open < 0 || close < 0 || close < open {
		return nil, perr.Hostf(nil, "malformed CREATE TABLE text: %q", createSQL)
	}

	header := strings.TrimSpace(createSQL[:open])
	fields := strings.Fields(header)
	if len(fields) < 3 || !strings.EqualFold(fields[0], "CREATE") || !strings.EqualFold(fields[1], "TABLE") {
		return nil, perr.Hostf(nil, "not a CREATE TABLE statement: %q", createSQL)
	}
	name := fields[len(fields)-1]

	body := createSQL[open+1 : close]
	cols := splitTopLevel(body)
	columns := make([]schema.Column, 0, len(cols))
	for _, raw := range cols {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		fs := strings.Fields(raw)
		if len(fs) < 2 {
			continue
		}
		t, err := schema.ParseType(fs[1])
		if err != nil {
			t = schema.Text
		}
		hidden := len(fs) >= 3 && strings.EqualFold(fs[len(fs)-1], "hidden")
		columns = append(columns, schema.Column{Name: fs[0], Type: t, Hidden: hidden})
	}

	return &schema.Declaration{Name: name, Columns: columns}, nil
}

// splitTopLevel splits a comma-separated column list without breaking
// inside any nested parentheses (e.g. a column's default expression).
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
