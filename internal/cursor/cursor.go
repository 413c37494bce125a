// Package cursor implements the multi-partition cursor state machine
// and the update/delete routing that depends on it.
package cursor

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/directory"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/predicate"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/vtable"
)

// RowRef identifies exactly where a surrogate row id physically lives:
// which partition table, and its rowid within that table.
type RowRef struct {
	PhysicalRowID int64
	Partition     string
}

// handle owns one prepared scan against a single physical partition and
// the current row's scanned values. Position 0 of cols is always the
// injected row_id; user columns occupy cols[1:].
type handle struct {
	partition string
	rows      *sql.Rows
	cols      []any
	hasRow    bool
}

func (h *handle) advance() error {
	if h.rows.Next() {
		dest := make([]any, len(h.cols))
		for i := range dest {
			dest[i] = &h.cols[i]
		}
		if err := h.rows.Scan(dest...); err != nil {
			return perr.Hostf(err, "scanning row from %q", h.partition)
		}
		h.hasRow = true
		return nil
	}
	h.hasRow = false
	return h.rows.Err()
}

func (h *handle) close() error {
	return h.rows.Close()
}

// SurrogateMap is the surrogate-id mapping: a shared resource scoped to
// one virtual-table *instance*, not to any single cursor. Every cursor
// opened against the same instance records into and reads from the same
// SurrogateMap, since the host engine's UPDATE/DELETE callback
// identifies a row by surrogate id alone, with no indication of which
// cursor produced it. It grows monotonically and is only ever cleared by
// discarding it at disconnect.
type SurrogateMap struct {
	mu     sync.Mutex
	next   int64
	rowMap map[int64]RowRef
}

// NewSurrogateMap returns an empty SurrogateMap for one virtual-table
// instance.
func NewSurrogateMap() *SurrogateMap {
	return &SurrogateMap{rowMap: make(map[int64]RowRef)}
}

func (s *SurrogateMap) record(ref RowRef) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.rowMap[id] = ref
	return id
}

func (s *SurrogateMap) lookup(surrogate int64) (RowRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.rowMap[surrogate]
	return ref, ok
}

// Cursor is the per-query scan state: an ordered list of partition
// handles and an index into it. Surrogate row-id bookkeeping is
// delegated to a shared SurrogateMap (see above).
type Cursor struct {
	vt      *vtable.VirtualTable
	surr    *SurrogateMap
	handles []*handle
	idx     int
	eof     bool
}

// New returns a standalone cursor bound to vt, with its own fresh
// SurrogateMap. Most callers building a long-lived virtual-table
// instance should prefer NewWithSurrogates so that multiple cursors
// opened over the instance's lifetime share one mapping.
func New(vt *vtable.VirtualTable) *Cursor {
	return NewWithSurrogates(vt, NewSurrogateMap())
}

// NewWithSurrogates returns a cursor bound to vt that records into and
// reads from the given shared SurrogateMap.
func NewWithSurrogates(vt *vtable.VirtualTable, surr *SurrogateMap) *Cursor {
	return &Cursor{vt: vt, surr: surr, eof: true}
}

// Filter aggregates the lookup conditions into a partition_value range,
// resolves the qualifying partitions, and prepares one scan per
// partition with the partition table's own constraints applied as a
// WHERE clause. A cursor may be re-filtered; prior scan state is
// discarded first.
func (c *Cursor) Filter(plan predicate.Plan, argv []any) error {
	if err := c.closeHandles(); err != nil {
		return err
	}
	c.idx = 0
	c.eof = true

	lookupConds := make([]predicate.BoundArg, 0, len(plan.LookupTable))
	for _, clause := range plan.LookupTable {
		if clause.ArgvIdx < 0 || clause.ArgvIdx >= len(argv) {
			return perr.WhereClausef("argv index %d out of range (len %d)", clause.ArgvIdx, len(argv))
		}
		lookupConds = append(lookupConds, predicate.BoundArg{Operator: clause.Operator, Value: argv[clause.ArgvIdx]})
	}

	r, err := predicate.AggregateConditionsToRanges(lookupConds, c.vt.Root.IntervalSeconds)
	if err != nil {
		return err
	}

	lo := toDirectoryBound(r.Lower)
	hi := toDirectoryBound(r.Upper)
	entries, err := c.vt.Lookup.GetPartitionsByRange(c.vt.DB, lo, hi)
	if err != nil {
		return err
	}

	whereSQL, whereArgs, err := buildWhere(plan.PartitionTable, argv)
	if err != nil {
		return err
	}

	handles := make([]*handle, 0, len(entries))
	for _, e := range entries {
		query := fmt.Sprintf("SELECT rowid AS row_id, * FROM %s", e.Name)
		if whereSQL != "" {
			query += " WHERE " + whereSQL
		}
		rows, err := c.vt.DB.Query(query, whereArgs...)
		if err != nil {
			for _, h := range handles {
				h.close()
			}
			return perr.Hostf(err, "preparing scan of partition %q", e.Name)
		}
		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			for _, h := range handles {
				h.close()
			}
			return perr.Hostf(err, "reading column list for %q", e.Name)
		}
		h := &handle{partition: e.Name, rows: rows, cols: make([]any, len(cols))}
		if err := h.advance(); err != nil {
			for _, hh := range handles {
				hh.close()
			}
			h.close()
			return err
		}
		handles = append(handles, h)
	}

	c.handles = handles
	c.idx = 0
	c.skipExhausted()
	return nil
}

func toDirectoryBound(b predicate.Bound) directory.Bound {
	switch b.Kind {
	case predicate.Included:
		return directory.Bound{Kind: directory.Included, Value: b.Value}
	case predicate.Excluded:
		return directory.Bound{Kind: directory.Excluded, Value: b.Value}
	default:
		return directory.Bound{Kind: directory.Unbounded}
	}
}

func buildWhere(clauses []predicate.Clause, argv []any) (string, []any, error) {
	if len(clauses) == 0 {
		return "", nil, nil
	}
	var parts []string
	var args []any
	for _, cl := range clauses {
		op, ok := cl.Operator.SQL()
		if !ok {
			continue
		}
		if cl.ArgvIdx < 0 || cl.ArgvIdx >= len(argv) {
			return "", nil, perr.WhereClausef("argv index %d out of range (len %d)", cl.ArgvIdx, len(argv))
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", cl.Column, op))
		args = append(args, argv[cl.ArgvIdx])
	}
	return strings.Join(parts, " AND "), args, nil
}

// skipExhausted advances idx past any handle that has no current row,
// setting eof once every handle is exhausted.
func (c *Cursor) skipExhausted() {
	for c.idx < len(c.handles) && !c.handles[c.idx].hasRow {
		c.idx++
	}
	c.eof = c.idx >= len(c.handles)
}

// Next advances the cursor to the next row: within the current
// partition if one remains, else to the first row of the next
// partition, else to Eof.
func (c *Cursor) Next() error {
	if c.eof {
		return nil
	}
	h := c.handles[c.idx]
	if err := h.advance(); err != nil {
		return err
	}
	if !h.hasRow {
		c.idx++
	}
	c.skipExhausted()
	return nil
}

// EOF reports whether the cursor has been exhausted.
func (c *Cursor) EOF() bool {
	return c.eof
}

// Column returns the i-th user column of the current row; position 0 of
// the prepared row is the injected row_id, so Column reads position i+1.
func (c *Cursor) Column(i int) (any, error) {
	if c.eof {
		return nil, perr.Hostf(nil, "Column called at eof")
	}
	h := c.handles[c.idx]
	pos := i + 1
	if pos < 0 || pos >= len(h.cols) {
		return nil, perr.Hostf(nil, "column index %d out of range", i)
	}
	return h.cols[pos], nil
}

// RowID returns the surrogate id for the current row, atomically
// recording a mapping entry surrogate -> (physical_rowid,
// partition_name) so a later UPDATE/DELETE can be routed back to the
// correct physical table.
func (c *Cursor) RowID() (int64, error) {
	if c.eof {
		return 0, perr.Hostf(nil, "RowID called at eof")
	}
	h := c.handles[c.idx]
	physical, ok := h.cols[0].(int64)
	if !ok {
		return 0, perr.Hostf(nil, "row_id column has unexpected type %T", h.cols[0])
	}

	return c.surr.record(RowRef{PhysicalRowID: physical, Partition: h.partition}), nil
}

// Lookup returns the physical (rowid, partition) a surrogate id maps to.
func (c *Cursor) Lookup(surrogate int64) (RowRef, bool) {
	return c.surr.lookup(surrogate)
}

// Close releases every prepared statement; it is safe to call more than
// once and safe to call on a Cursor whose Filter was never called.
func (c *Cursor) Close() error {
	return c.closeHandles()
}

func (c *Cursor) closeHandles() error {
	var firstErr error
	for _, h := range c.handles {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.handles = nil
	return firstErr
}
