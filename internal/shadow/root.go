package shadow

import (
	"database/sql"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
)

// Root is the single-row configuration table: the name of the
// partition column, the interval in seconds, and an optional lifetime
// in seconds.
type Root struct {
	Base             string
	PartitionColumn  string
	IntervalSeconds  int64
	LifetimeSeconds  *int64
}

const rootPostfix = "root"

func (r *Root) Postfix() string { return rootPostfix }

func (r *Root) Schema() *schema.Declaration {
	return &schema.Declaration{
		Name: FullName(r.Base, r),
		Columns: []schema.Column{
			{Name: "partition_column", Type: schema.Text},
			{Name: "partition_value", Type: schema.Integer},
			{Name: "lifetime", Type: schema.Integer},
		},
	}
}

// CreateRoot persists the single root row after creating the table.
func CreateRoot(db *sql.DB, r *Root) error {
	if err := Create(db, r); err != nil {
		return err
	}
	name := FullName(r.Base, r)
	_, err := db.Exec(
		"INSERT INTO "+name+" (partition_column, partition_value, lifetime) VALUES (?, ?, ?)",
		r.PartitionColumn, r.IntervalSeconds, r.LifetimeSeconds,
	)
	if err != nil {
		return perr.Hostf(err, "inserting root row into %q", name)
	}
	return nil
}

// ConnectRoot reads the single persisted row back into a Root.
func ConnectRoot(db *sql.DB, base string) (*Root, error) {
	r := &Root{Base: base}
	name := FullName(base, r)

	row := db.QueryRow("SELECT partition_column, partition_value, lifetime FROM " + name)
	var lifetime sql.NullInt64
	if err := row.Scan(&r.PartitionColumn, &r.IntervalSeconds, &lifetime); err != nil {
		return nil, perr.Hostf(err, "reading root row from %q", name)
	}
	if lifetime.Valid {
		v := lifetime.Int64
		r.LifetimeSeconds = &v
	}
	return r, nil
}
