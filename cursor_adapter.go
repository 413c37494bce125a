package partitioner

import (
	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/vtab"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/cursor"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/epoch"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/predicate"
)

// Cursor adapts internal/cursor.Cursor to vtab.Cursor: it translates
// host sqlite3.Value arguments into the plain Go values the internal
// packages operate on, and writes internal column values back into a
// sqlite3.Context result.
type Cursor struct {
	inner *cursor.Cursor
	table *Table
}

// Filter implements vtab.Cursor: it deserializes the opaque plan string
// produced by BestIndex and hands the bound argument values to the
// inner cursor.
func (c *Cursor) Filter(_ int, idxStr string, arg ...sqlite3.Value) error {
	var plan predicate.Plan
	if idxStr != "" {
		p, err := predicate.Unmarshal(idxStr)
		if err != nil {
			// An absent or malformed plan string implies no pruning
			// and no partition-level filter; fall back to an empty
			// plan (full scan across every partition) rather than
			// failing the query outright.
			plan = predicate.Plan{}
		} else {
			plan = p
		}
	}

	argv := make([]any, len(arg))
	for i, a := range arg {
		argv[i] = valueToAny(a)
	}
	return c.inner.Filter(plan, argv)
}

// Next implements vtab.Cursor.
func (c *Cursor) Next() error {
	return c.inner.Next()
}

// EOF implements vtab.Cursor.
func (c *Cursor) EOF() bool {
	return c.inner.EOF()
}

// Column implements vtab.Cursor: col is zero-based among user columns.
func (c *Cursor) Column(ctx *sqlite3.Context, col int) error {
	v, err := c.inner.Column(col)
	if err != nil {
		return err
	}
	resultAny(ctx, v)
	return nil
}

// RowID implements vtab.Cursor.
func (c *Cursor) RowID() (int64, error) {
	return c.inner.RowID()
}

// Close implements vtab.Cursor.
func (c *Cursor) Close() error {
	return c.inner.Close()
}

// valueToAny converts a host-supplied sqlite3.Value into the plain Go
// value the internal predicate/epoch packages expect.
func valueToAny(v sqlite3.Value) any {
	switch v.Type() {
	case sqlite3.INTEGER:
		return v.Int64()
	case sqlite3.FLOAT:
		return v.Float()
	case sqlite3.TEXT:
		return v.Text()
	case sqlite3.BLOB:
		return v.Blob(nil)
	default:
		return nil
	}
}

// resultAny writes a plain Go value (as produced by the internal
// packages' row scanning) back into a result context.
func resultAny(ctx *sqlite3.Context, v any) {
	switch t := v.(type) {
	case nil:
		ctx.ResultNull()
	case int64:
		ctx.ResultInt64(t)
	case float64:
		ctx.ResultFloat(t)
	case string:
		ctx.ResultText(t)
	case []byte:
		ctx.ResultBlob(t)
	default:
		ctx.ResultNull()
	}
}

// Update implements vtab.Updater, routing DELETE/UPDATE/INSERT calls.
// It follows the standard xUpdate argv convention: argv[0] is
// NULL for an INSERT, the surrogate row id to delete/update otherwise;
// len(argv) == 1 signals a DELETE; otherwise argv[1] is the new rowid
// (NULL to keep it unchanged) and argv[2:] are the new column values,
// one per declared column in order, each checked for "unchanged" via
// NoChange so unmodified columns are omitted from the generated SQL.
func (t *Table) Update(arg ...sqlite3.Value) (int64, error) {
	if len(arg) == 0 {
		return 0, perr.Hostf(nil, "Update called with no arguments")
	}

	if arg[0].Type() == sqlite3.NULL {
		return t.insert(arg[2:])
	}

	surrogate := arg[0].Int64()
	if len(arg) == 1 {
		return 0, t.delete(surrogate)
	}
	return 0, t.update(surrogate, arg[2:])
}

func (t *Table) insert(values []sqlite3.Value) (int64, error) {
	partitionIdx := t.vt.Template.Schema().ColumnIndex(t.vt.Root.PartitionColumn)
	if partitionIdx < 0 {
		return 0, perr.PartitionColumnf("partition column %q not found", t.vt.Root.PartitionColumn)
	}

	columnValues := make([]any, len(values))
	for i, v := range values {
		columnValues[i] = valueToAny(v)
	}
	if partitionIdx >= len(columnValues) {
		return 0, perr.PartitionColumnf("insert is missing the partition column value")
	}

	bucket, err := epoch.ParsePartitionValue(columnValues[partitionIdx], t.vt.Root.IntervalSeconds)
	if err != nil {
		return 0, err
	}
	return t.vt.Insert(bucket, columnValues)
}

func (t *Table) delete(surrogate int64) error {
	c := cursor.NewWithSurrogates(t.vt, t.surr)
	return c.Delete(surrogate)
}

func (t *Table) update(surrogate int64, values []sqlite3.Value) error {
	cols := t.vt.Template.UserColumns()
	partitionIdx := t.vt.Template.Schema().ColumnIndex(t.vt.Root.PartitionColumn)

	updates := make([]cursor.ColumnUpdate, 0, len(values))
	for i, v := range values {
		if i >= len(cols) {
			break
		}
		updates = append(updates, cursor.ColumnUpdate{
			Column:  cols[i].Name,
			Value:   valueToAny(v),
			Changed: !v.NoChange(),
		})
	}

	c := cursor.NewWithSurrogates(t.vt, t.surr)
	return c.Update(surrogate, partitionIdx, updates)
}
