// Package schema parses and renders the column and table DDL fragments
// used throughout the partitioner: the column grammar accepted inside a
// CREATE VIRTUAL TABLE statement, and the declarations used to render the
// shadow tables' own CREATE TABLE text.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/epoch"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
)

// Type is a column's declared storage class.
type Type int

const (
	Integer Type = iota
	Text
	Float
	Blob
	Null
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Text:
		return "TEXT"
	case Float:
		return "FLOAT"
	case Blob:
		return "BLOB"
	case Null:
		return "NULL"
	default:
		return "NULL"
	}
}

// ParseType maps a DDL type keyword to a Type. Comparison is
// case-insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "INT", "INTEGER":
		return Integer, nil
	case "TEXT", "VARCHAR", "TIMESTAMP":
		return Text, nil
	case "FLOAT":
		return Float, nil
	case "BLOB", "JSON":
		return Blob, nil
	case "NULL":
		return Null, nil
	default:
		return Null, perr.ParseValueTypef(nil, "unknown column type %q", s)
	}
}

// Column describes one column of a virtual table: its name, declared
// type, and the two flags that single it out as special to the
// partitioner (the partition column, or the lifetime pseudo-column).
type Column struct {
	Name              string
	Type              Type
	IsPartitionColumn bool
	IsLifetimeColumn  bool
	// Default holds the lifetime-in-seconds value for a lifetime
	// pseudo-column; it is unset (nil) for ordinary columns.
	Default *int64
	Hidden  bool
}

// ParseColumn parses one column fragment of a CREATE VIRTUAL TABLE
// argument list, using the grammar:
//
//	<name> <type>                    -- ordinary column
//	<name> <type> partition_column    -- marks the partition column
//	lifetime <N> <unit>               -- lifetime pseudo-column
func ParseColumn(fragment string) (Column, error) {
	fields := strings.Fields(fragment)
	switch len(fields) {
	case 2:
		t, err := ParseType(fields[1])
		if err != nil {
			return Column{}, perr.ColumnDeclarationf("fragment %q: %v", fragment, err)
		}
		return Column{Name: fields[0], Type: t}, nil
	case 3:
		if strings.EqualFold(fields[0], "lifetime") {
			seconds, err := epoch.ParseInterval(fields[1] + " " + fields[2])
			if err != nil {
				return Column{}, perr.ColumnDeclarationf("fragment %q: %v", fragment, err)
			}
			return Column{
				Name:             "lifetime",
				Type:             Integer,
				IsLifetimeColumn: true,
				Default:          &seconds,
			}, nil
		}
		if !strings.EqualFold(fields[2], "partition_column") {
			return Column{}, perr.ColumnDeclarationf("fragment %q: expected \"partition_column\", got %q", fragment, fields[2])
		}
		t, err := ParseType(fields[1])
		if err != nil {
			return Column{}, perr.ColumnDeclarationf("fragment %q: %v", fragment, err)
		}
		return Column{Name: fields[0], Type: t, IsPartitionColumn: true}, nil
	default:
		return Column{}, perr.ColumnDeclarationf("fragment %q: expected 2 or 3 tokens, got %d", fragment, len(fields))
	}
}

// DDL renders the column as it appears inside a CREATE TABLE statement:
// "<name> <TYPE>", with " hidden" appended when Hidden is set.
func (c Column) DDL() string {
	ddl := fmt.Sprintf("%s %s", c.Name, c.Type.String())
	if c.Hidden {
		ddl += " hidden"
	}
	return ddl
}

// Declaration is a full table schema: a name and an ordered list of
// columns. Order is preserved because it determines INSERT/UPDATE
// positional argument binding throughout the vtab adapter.
type Declaration struct {
	Name    string
	Columns []Column
}

// CreateTableSQL renders "CREATE TABLE <name> (<col1 DDL>, <col2 DDL>, ...)".
func (d Declaration) CreateTableSQL() string {
	parts := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		parts[i] = c.DDL()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Name, strings.Join(parts, ", "))
}

// PartitionColumn returns the single column flagged as the partition
// column, or an error of Kind PartitionColumn if zero or more than one
// such column exists.
func (d Declaration) PartitionColumn() (Column, error) {
	var found *Column
	for i := range d.Columns {
		if d.Columns[i].IsPartitionColumn {
			if found != nil {
				return Column{}, perr.PartitionColumnf("more than one partition column declared")
			}
			c := d.Columns[i]
			found = &c
		}
	}
	if found == nil {
		return Column{}, perr.PartitionColumnf("no partition column declared")
	}
	if found.Type != Integer && found.Type != Text {
		return Column{}, perr.PartitionColumnf("partition column %q has non-temporal type %s", found.Name, found.Type)
	}
	return *found, nil
}

// LifetimeColumn returns the lifetime pseudo-column, if one was declared.
func (d Declaration) LifetimeColumn() (Column, bool) {
	for _, c := range d.Columns {
		if c.IsLifetimeColumn {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnIndex returns the positional index of the named column, or -1.
func (d Declaration) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ParseLifetimeSeconds is a convenience for converting a "<N> <unit>"
// lifetime fragment to seconds, the same conversion ParseColumn applies
// when it fills the lifetime column's Default.
func ParseLifetimeSeconds(fragment string) (int64, error) {
	return epoch.ParseInterval(fragment)
}

// FormatInteger renders an int64 the way a DDL default literal would be
// written; exists so call sites don't reach for strconv directly.
func FormatInteger(v int64) string {
	return strconv.FormatInt(v, 10)
}
