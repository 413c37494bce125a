// Package vtable implements the virtual table facade: the component
// that owns the three shadow tables for one partitioned virtual table
// instance and resolves partition values into physical partition
// names, creating new partitions on demand.
package vtable

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/directory"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/shadow"
)

// VirtualTable is the handle bound to one CREATE/CONNECT VIRTUAL TABLE
// instance's connection lifetime.
type VirtualTable struct {
	DB       *sql.DB
	Base     string
	Root     *shadow.Root
	Lookup   *shadow.Lookup
	Template *shadow.Template
}

// Create materializes lookup, root, and template, in that order: the
// lookup and root must exist before any partition can be resolved or
// created against the template.
func Create(db *sql.DB, base string, columns []schema.Column, partitionColumn string, interval int64, lifetime *int64) (*VirtualTable, error) {
	lk, err := shadow.CreateLookup(db, base)
	if err != nil {
		return nil, err
	}
	r := &shadow.Root{Base: base, PartitionColumn: partitionColumn, IntervalSeconds: interval, LifetimeSeconds: lifetime}
	if err := shadow.CreateRoot(db, r); err != nil {
		return nil, err
	}
	tmpl, err := shadow.CreateTemplate(db, base, columns)
	if err != nil {
		return nil, err
	}
	return &VirtualTable{DB: db, Base: base, Root: r, Lookup: lk, Template: tmpl}, nil
}

// Connect re-attaches to an existing instance's three shadow tables;
// Lookup's Sync populates the in-memory directory.
func Connect(db *sql.DB, base string) (*VirtualTable, error) {
	r, err := shadow.ConnectRoot(db, base)
	if err != nil {
		return nil, err
	}
	lk, err := shadow.ConnectLookup(db, base)
	if err != nil {
		return nil, err
	}
	tmpl, err := shadow.ConnectTemplate(db, base)
	if err != nil {
		return nil, err
	}
	return &VirtualTable{DB: db, Base: base, Root: r, Lookup: lk, Template: tmpl}, nil
}

// Destroy enumerates every partition, drops each, then drops lookup,
// root, and template, in that order.
func (vt *VirtualTable) Destroy() error {
	entries, err := vt.Lookup.GetPartitionsByRange(vt.DB, directory.Bound{Kind: directory.Unbounded}, directory.Bound{Kind: directory.Unbounded})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := vt.DB.Exec(fmt.Sprintf("DROP TABLE %s", e.Name)); err != nil {
			return perr.Hostf(err, "dropping partition %q", e.Name)
		}
	}
	if err := shadow.Drop(vt.DB, vt.Base, vt.Lookup); err != nil {
		return err
	}
	if err := shadow.Drop(vt.DB, vt.Base, vt.Root); err != nil {
		return err
	}
	if err := shadow.Drop(vt.DB, vt.Base, vt.Template); err != nil {
		return err
	}
	return nil
}

// partitionName renders the deterministic "<base>_<value>" name for a
// bucket.
func (vt *VirtualTable) partitionName(value int64) string {
	return fmt.Sprintf("%s_%d", vt.Base, value)
}

// GetPartition implements the partition resolution contract: consult
// the directory; on a miss, clone the template into a new
// physical partition and record it in the lookup, recovering from a
// losing race against a concurrent connection via the lookup's UNIQUE
// constraint on partition_value.
func (vt *VirtualTable) GetPartition(value int64) (string, error) {
	if name, ok := vt.Lookup.GetPartition(value); ok {
		return name, nil
	}

	newName := vt.partitionName(value)
	if err := vt.Template.Copy(vt.DB, newName); err != nil {
		return "", err
	}

	var expiresAt *int64
	if vt.Root.LifetimeSeconds != nil {
		e := *vt.Root.LifetimeSeconds + value
		expiresAt = &e
	}

	if err := vt.Lookup.Insert(vt.DB, newName, value, expiresAt); err != nil {
		// Another connection may have won the race on the UNIQUE
		// partition_value constraint; re-read the lookup and use its
		// winning partition name rather than surfacing the conflict.
		if name, ok := vt.Lookup.GetPartition(value); ok {
			return name, nil
		}
		if err2 := vt.Lookup.Sync(vt.DB); err2 == nil {
			if name, ok := vt.Lookup.GetPartition(value); ok {
				return name, nil
			}
		}
		return "", err
	}
	return newName, nil
}

// Insert resolves the partition for value, then executes a positional
// INSERT against it, returning the new row's rowid.
func (vt *VirtualTable) Insert(value int64, columnValues []any) (int64, error) {
	name, err := vt.GetPartition(value)
	if err != nil {
		return 0, err
	}
	placeholders := make([]string, len(columnValues))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s VALUES (%s)", name, strings.Join(placeholders, ", "))
	res, err := vt.DB.Exec(stmt, columnValues...)
	if err != nil {
		return 0, perr.Hostf(err, "inserting into partition %q", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, perr.Hostf(err, "reading rowid for insert into %q", name)
	}
	return id, nil
}

// CreateTableQuery produces the user-visible DDL the host engine learns
// the virtual table's column signature from: the template's schema with
// its name substituted for the virtual table's own base name.
func (vt *VirtualTable) CreateTableQuery() string {
	decl := schema.Declaration{Name: vt.Base, Columns: vt.Template.UserColumns()}
	return decl.CreateTableSQL()
}
