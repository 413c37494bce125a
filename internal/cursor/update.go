package cursor

import (
	"fmt"
	"strconv"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/epoch"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
)

// Delete resolves the surrogate id to its physical row, then issues
// DELETE FROM <partition> WHERE rowid = ?.
func (c *Cursor) Delete(surrogate int64) error {
	ref, ok := c.Lookup(surrogate)
	if !ok {
		return perr.Hostf(nil, "surrogate row id %d not found", surrogate)
	}
	_, err := c.vt.DB.Exec(fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", ref.Partition), ref.PhysicalRowID)
	if err != nil {
		return perr.Hostf(err, "deleting rowid %d from %q", ref.PhysicalRowID, ref.Partition)
	}
	return nil
}

// ColumnUpdate is one column's new value, alongside whether the host
// engine flagged it as actually changed. Unchanged columns are skipped
// entirely from the generated UPDATE statement.
type ColumnUpdate struct {
	Column  string
	Value   any
	Changed bool
}

// Update applies an UPDATE to the row identified by surrogate.
// columnUpdates must be given in the virtual table's declared column
// order, one entry per column,
// including the partition column. If an update would move the row's
// partition value into a different bucket, Update returns a
// *perr.Error of Kind PartitionColumn rather than guessing: cross-
// partition updates are out of scope.
func (c *Cursor) Update(surrogate int64, partitionColumnIndex int, columnUpdates []ColumnUpdate) error {
	ref, ok := c.Lookup(surrogate)
	if !ok {
		return perr.Hostf(nil, "surrogate row id %d not found", surrogate)
	}

	if partitionColumnIndex >= 0 && partitionColumnIndex < len(columnUpdates) {
		pc := columnUpdates[partitionColumnIndex]
		if pc.Changed {
			newBucket, err := epoch.ParsePartitionValue(pc.Value, c.vt.Root.IntervalSeconds)
			if err != nil {
				return err
			}
			currentBucket, err := currentBucketFor(c, ref)
			if err != nil {
				return err
			}
			if newBucket != currentBucket {
				return perr.PartitionColumnf(
					"cross-partition update: row in partition %q (bucket %d) cannot move to bucket %d",
					ref.Partition, currentBucket, newBucket,
				)
			}
		}
	}

	var assignments []string
	var args []any
	for _, u := range columnUpdates {
		if !u.Changed {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = ?", u.Column))
		args = append(args, u.Value)
	}
	if len(assignments) == 0 {
		return nil
	}
	args = append(args, ref.PhysicalRowID)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE ROWID = ?", ref.Partition, joinAssignments(assignments))
	if _, err := c.vt.DB.Exec(stmt, args...); err != nil {
		return perr.Hostf(err, "updating rowid %d in %q", ref.PhysicalRowID, ref.Partition)
	}
	return nil
}

// currentBucketFor derives the bucket a row's current partition belongs
// to from the partition suffix, i.e. the "<value>" half of
// "<base>_<value>".
func currentBucketFor(c *Cursor, ref RowRef) (int64, error) {
	suffix := ref.Partition
	if idx := lastIndexByte(suffix, '_'); idx >= 0 {
		suffix = suffix[idx+1:]
	}
	bucket, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, perr.PartitionColumnf("partition %q has no integer bucket suffix", ref.Partition)
	}
	return bucket, nil
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func joinAssignments(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
