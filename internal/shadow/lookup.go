package shadow

import (
	"database/sql"
	"fmt"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/directory"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
)

// Lookup is the persisted partition directory: one row per known
// bucket, backed in memory by a directory.Directory.
type Lookup struct {
	Base string
	Dir  *directory.Directory
}

const lookupPostfix = "lookup"

func (l *Lookup) Postfix() string { return lookupPostfix }

func (l *Lookup) Schema() *schema.Declaration {
	return &schema.Declaration{
		Name: FullName(l.Base, l),
		Columns: []schema.Column{
			{Name: "partition_table", Type: schema.Text},
			{Name: "partition_value", Type: schema.Integer},
			{Name: "expires_at", Type: schema.Integer},
		},
	}
}

// CreateLookup creates the lookup table and its unique indexes, and
// returns a Lookup with a fresh, empty directory.
func CreateLookup(db *sql.DB, base string) (*Lookup, error) {
	l := &Lookup{Base: base, Dir: directory.New()}
	if err := Create(db, l); err != nil {
		return nil, err
	}
	name := FullName(base, l)
	stmts := []string{
		fmt.Sprintf("CREATE UNIQUE INDEX %s_partition_table_idx ON %s (partition_table)", name, name),
		fmt.Sprintf("CREATE UNIQUE INDEX %s_partition_value_idx ON %s (partition_value)", name, name),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, perr.Hostf(err, "creating lookup index on %q", name)
		}
	}
	return l, nil
}

// ConnectLookup re-attaches to an existing lookup table and performs an
// initial Sync to populate the in-memory directory.
func ConnectLookup(db *sql.DB, base string) (*Lookup, error) {
	l := &Lookup{Base: base, Dir: directory.New()}
	if err := l.Sync(db); err != nil {
		return nil, err
	}
	return l, nil
}

// GetPartition is the read-only directory lookup.
func (l *Lookup) GetPartition(value int64) (string, bool) {
	return l.Dir.Get(value)
}

// Insert writes a row to the lookup table, then updates the in-memory
// map. expiresAt is nil when the virtual table has no configured
// lifetime.
func (l *Lookup) Insert(db *sql.DB, name string, value int64, expiresAt *int64) error {
	full := FullName(l.Base, l)
	_, err := db.Exec(
		"INSERT INTO "+full+" (partition_table, partition_value, expires_at) VALUES (?, ?, ?)",
		name, value, expiresAt,
	)
	if err != nil {
		return perr.Hostf(err, "inserting lookup row (%s, %d)", name, value)
	}
	l.Dir.Insert(value, name)
	return nil
}

// Sync reconciles the in-memory directory against the persisted lookup
// table: it issues a NOT-IN query for rows the in-memory copy doesn't
// already have and extends the directory with them. It never removes
// entries.
func (l *Lookup) Sync(db *sql.DB) error {
	full := FullName(l.Base, l)
	known := l.Dir.All()
	knownValues := make([]any, 0, len(known))
	for _, e := range known {
		knownValues = append(knownValues, e.Value)
	}

	query := "SELECT partition_value, partition_table FROM " + full
	var rows *sql.Rows
	var err error
	if len(knownValues) == 0 {
		rows, err = db.Query(query)
	} else {
		placeholders := make([]string, len(knownValues))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		query += " WHERE partition_value NOT IN (" + joinCommas(placeholders) + ")"
		rows, err = db.Query(query, knownValues...)
	}
	if err != nil {
		return perr.Hostf(err, "syncing lookup table %q", full)
	}
	defer rows.Close()

	var fresh []directory.Entry
	for rows.Next() {
		var e directory.Entry
		if err := rows.Scan(&e.Value, &e.Name); err != nil {
			return perr.Hostf(err, "scanning lookup row from %q", full)
		}
		fresh = append(fresh, e)
	}
	if err := rows.Err(); err != nil {
		return perr.Hostf(err, "iterating lookup rows from %q", full)
	}

	l.Dir.Sync(fresh)
	return nil
}

// GetPartitionsByRange first Syncs, then returns every (value, name)
// pair bounded by lo/hi in ascending key order.
func (l *Lookup) GetPartitionsByRange(db *sql.DB, lo, hi directory.Bound) ([]directory.Entry, error) {
	if err := l.Sync(db); err != nil {
		return nil, err
	}
	return l.Dir.RangeByBound(lo, hi), nil
}

func joinCommas(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
