// Package partitioner implements a SQLite virtual-table extension that
// transparently range-partitions a table by a declared temporal column
// into fixed-width time buckets. This file and cursor_adapter.go are the
// only place the package touches the host's virtual-table ABI
// (github.com/ncruces/go-sqlite3/vtab); every other concern — schema
// parsing, shadow-table bookkeeping, predicate pruning, cursor
// mechanics — lives in internal/ packages that know nothing about the
// ABI and are exercised directly by their own tests.
package partitioner

import (
	"strings"

	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/vtab"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/cursor"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/epoch"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/hostdb"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/plog"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/predicate"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/vtable"
)

// ModuleName is the string used in "CREATE VIRTUAL TABLE ... USING
// <ModuleName>(...)".
const ModuleName = "partitioner"

// The stable, public SQLite C-API index-constraint-op values. Mirrored
// locally rather than imported from vtab's own constants so that the
// predicate translation below doesn't depend on this library exposing
// them under any particular Go identifier.
const (
	indexConstraintEQ = 2
	indexConstraintGT = 4
	indexConstraintLE = 8
	indexConstraintLT = 16
	indexConstraintGE = 32
)

func toOperator(op int) predicate.Operator {
	switch op {
	case indexConstraintEQ:
		return predicate.EQ
	case indexConstraintGT:
		return predicate.GT
	case indexConstraintLE:
		return predicate.LE
	case indexConstraintLT:
		return predicate.LT
	case indexConstraintGE:
		return predicate.GE
	default:
		return predicate.Other
	}
}

// Module registers the partitioner virtual-table module with a host
// connection. Register it once per *sqlite3.Conn, typically from a
// ConnectHook.
type Module struct {
	Logger *plog.Logger
}

func Register(conn *sqlite3.Conn, logger *plog.Logger) error {
	return vtab.Register(conn, ModuleName, &Module{Logger: logger})
}

func (m *Module) logger() *plog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return plog.Default
}

// Connect implements vtab.Module: it reconnects to an existing
// instance's shadow tables.
func (m *Module) Connect(c *sqlite3.Conn, _, _, table string, _ ...string) (vtab.Table, string, error) {
	db, err := hostdb.Open(c.Filename(""))
	if err != nil {
		return nil, "", perr.Hostf(err, "opening host connection for %q", table)
	}
	vt, err := vtable.Connect(db, table)
	if err != nil {
		db.Close()
		return nil, "", err
	}
	return &Table{vt: vt, db: db, surr: cursor.NewSurrogateMap(), logger: m.logger()}, vt.CreateTableQuery(), nil
}

// Create implements vtab.Creator: it parses the CREATE VIRTUAL TABLE
// argument list and materializes the three shadow tables.
func (m *Module) Create(c *sqlite3.Conn, _, _, table string, args ...string) (vtab.Table, string, error) {
	parsed, err := parseCreateArgs(args)
	if err != nil {
		return nil, "", err
	}

	db, err := hostdb.Open(c.Filename(""))
	if err != nil {
		return nil, "", perr.Hostf(err, "opening host connection for %q", table)
	}
	vt, err := vtable.Create(db, table, parsed.columns, parsed.partitionColumn, parsed.interval, parsed.lifetime)
	if err != nil {
		db.Close()
		return nil, "", err
	}
	return &Table{vt: vt, db: db, surr: cursor.NewSurrogateMap(), logger: m.logger()}, vt.CreateTableQuery(), nil
}

// createArgs is the parsed form of a CREATE VIRTUAL TABLE argument
// list, split out as a pure function of its own so the DDL grammar can
// be exercised without a live host connection.
type createArgs struct {
	interval        int64
	columns         []schema.Column
	partitionColumn string
	lifetime        *int64
}

// parseCreateArgs parses the args passed after the table name in
// "CREATE VIRTUAL TABLE <name> USING partitioner(<args>)": the first
// argument is the interval expression, the rest are column fragments
// (including an optional lifetime pseudo-column).
func parseCreateArgs(args []string) (createArgs, error) {
	if len(args) < 2 {
		return createArgs{}, perr.ColumnDeclarationf("expected an interval and at least one column, got %d arguments", len(args))
	}

	interval, err := epoch.ParseInterval(unquote(args[0]))
	if err != nil {
		return createArgs{}, err
	}

	var columns []schema.Column
	var lifetime *int64
	for _, fragment := range args[1:] {
		col, err := schema.ParseColumn(unquote(fragment))
		if err != nil {
			return createArgs{}, err
		}
		if col.IsLifetimeColumn {
			lifetime = col.Default
			continue
		}
		columns = append(columns, col)
	}

	decl := schema.Declaration{Columns: columns}
	partitionCol, err := decl.PartitionColumn()
	if err != nil {
		return createArgs{}, err
	}

	return createArgs{
		interval:        interval,
		columns:         columns,
		partitionColumn: partitionCol.Name,
		lifetime:        lifetime,
	}, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// Table is the per-connection vtab.Table implementation: a thin
// adapter over internal/vtable.VirtualTable.
type Table struct {
	vt     *vtable.VirtualTable
	db     interface{ Close() error }
	surr   *cursor.SurrogateMap
	logger *plog.Logger
}

// BestIndex implements vtab.Table: it runs the predicate analyzer over
// the host's reported constraints and serializes the resulting plan
// into the opaque index string.
func (t *Table) BestIndex(idx *vtab.IndexInputs) (*vtab.IndexOutputs, error) {
	partitionColIdx := t.vt.Template.Schema().ColumnIndex(t.vt.Root.PartitionColumn)

	var constraints []predicate.Constraint
	columnByIdx := func(i int) string {
		cols := t.vt.Template.UserColumns()
		if i < 0 || i >= len(cols) {
			return ""
		}
		return cols[i].Name
	}

	for _, c := range idx.Constraint {
		if !c.Usable {
			continue
		}
		constraints = append(constraints, predicate.Constraint{
			Column:   columnByIdx(c.Column),
			Operator: toOperator(int(c.Op)),
			Usable:   c.Usable,
		})
	}

	partitionColName := ""
	if partitionColIdx >= 0 {
		partitionColName = columnByIdx(partitionColIdx)
	}
	plan, _ := predicate.BuildPlan(constraints, partitionColName)

	idxStr, err := predicate.Marshal(plan)
	if err != nil {
		return nil, err
	}

	usage := make([]vtab.IndexConstraintUsage, len(idx.Constraint))
	argvIdx := 0
	for i, c := range idx.Constraint {
		if !c.Usable {
			continue
		}
		usage[i] = vtab.IndexConstraintUsage{ArgvIndex: argvIdx + 1, Omit: false}
		argvIdx++
	}

	return &vtab.IndexOutputs{
		ConstraintUsage: usage,
		IdxStr:          idxStr,
		EstimatedCost:   1.0,
		EstimatedRows:   1,
	}, nil
}

// Open implements vtab.Table.
func (t *Table) Open() (vtab.Cursor, error) {
	return &Cursor{inner: cursor.NewWithSurrogates(t.vt, t.surr), table: t}, nil
}

// Disconnect implements vtab.Table.
func (t *Table) Disconnect() error {
	return t.db.Close()
}

// Destroy implements vtab.Destroyer: it drops every partition, then the
// lookup, root, and template shadow tables, then releases the
// connection.
func (t *Table) Destroy() error {
	if err := t.vt.Destroy(); err != nil {
		return err
	}
	return t.db.Close()
}
