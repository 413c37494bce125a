// Package directory implements the in-memory partition directory: an
// ordered map from partition value (bucket epoch) to physical partition
// table name, guarded by a read-write lock so concurrent lookups can
// proceed together while an insert or sync holds the lock exclusively.
package directory

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Bound describes one side of a range query against the directory,
// matching the three-state Bound model used by the predicate package:
// unbounded, inclusive, or exclusive of Value.
type Bound struct {
	Kind  BoundKind
	Value int64
}

type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Entry is one (partition value, partition name) pair returned from a
// range query, in ascending key order.
type Entry struct {
	Value int64
	Name  string
}

// Directory is safe for concurrent use by multiple goroutines.
type Directory struct {
	mu sync.RWMutex
	om *orderedmap.OrderedMap[int64, string]
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{om: orderedmap.New[int64, string]()}
}

// Get returns the partition name for value, if the directory has one.
func (d *Directory) Get(value int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.om.Get(value)
}

// Insert records that value maps to name, overwriting any prior mapping.
// Insertion order matters only for newly-added keys; overwriting an
// existing key preserves its original position, matching
// go-ordered-map's Set semantics.
func (d *Directory) Insert(value int64, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.om.Set(value, name)
}

// Delete removes value from the directory, reporting whether it was
// present.
func (d *Directory) Delete(value int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.om.Delete(value)
	return ok
}

// Len reports the number of partitions currently tracked.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.om.Len()
}

// All returns every (value, name) pair currently tracked, in ascending
// key order regardless of insertion order, since range queries over the
// directory must be sorted by partition value.
func (d *Directory) All() []Entry {
	return d.RangeByBound(Bound{Kind: Unbounded}, Bound{Kind: Unbounded})
}

// RangeByBound returns every (value, name) pair whose value satisfies
// lo and hi, in ascending key order.
func (d *Directory) RangeByBound(lo, hi Bound) []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := make([]Entry, 0, d.om.Len())
	for pair := d.om.Oldest(); pair != nil; pair = pair.Next() {
		if !satisfiesLower(pair.Key, lo) || !satisfiesUpper(pair.Key, hi) {
			continue
		}
		entries = append(entries, Entry{Value: pair.Key, Name: pair.Value})
	}
	sortEntries(entries)
	return entries
}

func satisfiesLower(v int64, b Bound) bool {
	switch b.Kind {
	case Unbounded:
		return true
	case Included:
		return v >= b.Value
	case Excluded:
		return v > b.Value
	default:
		return true
	}
}

func satisfiesUpper(v int64, b Bound) bool {
	switch b.Kind {
	case Unbounded:
		return true
	case Included:
		return v <= b.Value
	case Excluded:
		return v < b.Value
	default:
		return true
	}
}

// sortEntries is a small insertion sort: the directory rarely exceeds a
// few hundred live partitions, and go-ordered-map's own iteration order
// is insertion order, not key order, so results need an explicit sort by
// Value before being handed to the cursor.
func sortEntries(entries []Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Value > entries[j].Value; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// Sync reconciles the in-memory directory against a set of partition
// values observed in the lookup table (e.g. after a connect or a
// concurrent writer's commit), inserting any value present in rows but
// absent from the directory. It never removes entries: the directory is
// monotonically extended, mirroring the reference's NOT-IN-based sync.
func (d *Directory) Sync(rows []Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range rows {
		if _, ok := d.om.Get(r.Value); !ok {
			d.om.Set(r.Value, r.Name)
		}
	}
}
