// Package predicate implements the predicate analyzer and partition
// pruner: translating the host engine's BestIndex constraints into a
// serialized plan, and that plan plus bound argument values into the
// interval range used to prune partitions at Filter time.
package predicate

import (
	"encoding/json"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/epoch"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
)

// Operator is the comparison operator of one constraint, restricted to
// the set the pruner understands; anything else is Other and never
// contributes to range aggregation. An Other clause is carried in the
// partition_table bag, but it has no SQL rendering, so the per-partition
// WHERE builder skips it and the partition scan does not check it.
type Operator int

const (
	Other Operator = iota
	EQ
	LT
	LE
	GT
	GE
)

// SQL renders the operator as it appears in a generated WHERE fragment.
// Other has no SQL rendering and reports false; the per-partition WHERE
// builder skips such clauses.
func (o Operator) SQL() (string, bool) {
	switch o {
	case EQ:
		return "=", true
	case LT:
		return "<", true
	case LE:
		return "<=", true
	case GT:
		return ">", true
	case GE:
		return ">=", true
	default:
		return "", false
	}
}

// Clause is one constraint the host reported during BestIndex: a column
// name, the operator, and the positional argv index the host will bind
// the comparison value into at Filter time.
type Clause struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	ArgvIdx  int      `json:"argv_idx"`
}

// Plan is the opaque, round-trippable structure serialized into the
// host engine's index string. PartitionTable holds every user-column
// constraint, applied per-partition during scan. LookupTable holds the
// derived constraints against the lookup's partition_value column,
// synthesized one-for-one from constraints on the declared partition
// column; these drive pruning.
type Plan struct {
	PartitionTable []Clause `json:"partition_table"`
	LookupTable    []Clause `json:"lookup_table"`
}

// BuildPlan assigns sequential argv indices to every usable constraint,
// splits them into the partition_table/lookup_table bags, and returns
// the plan alongside the number of argv slots it consumes (the host
// needs this count to size its own argument array).
//
// partitionColumn is the name of the virtual table's declared partition
// column; any constraint against it additionally produces a derived
// lookup_table clause against "partition_value".
func BuildPlan(constraints []Constraint, partitionColumn string) (Plan, int) {
	var plan Plan
	argvIdx := 0
	for _, c := range constraints {
		if !c.Usable {
			continue
		}
		clause := Clause{Column: c.Column, Operator: c.Operator, ArgvIdx: argvIdx}
		plan.PartitionTable = append(plan.PartitionTable, clause)
		if c.Column == partitionColumn {
			plan.LookupTable = append(plan.LookupTable, Clause{
				Column:   "partition_value",
				Operator: c.Operator,
				ArgvIdx:  argvIdx,
			})
		}
		argvIdx++
	}
	return plan, argvIdx
}

// Constraint is a single BestIndex-time constraint reported by the host
// engine, before argv indices are assigned.
type Constraint struct {
	Column   string
	Operator Operator
	Usable   bool
}

// Marshal serializes a Plan into the engine's opaque index string. JSON
// is used because it is trivially round-trippable through the UTF-8
// string the vtab ABI hands back at Filter time, and because the
// teacher's own append-only log format uses encoding/json directly
// rather than a third-party serializer for structured records.
func Marshal(p Plan) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", perr.WhereClausef("marshaling plan: %v", err)
	}
	return string(b), nil
}

// Unmarshal parses an index string produced by Marshal back into a Plan.
func Unmarshal(s string) (Plan, error) {
	var p Plan
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Plan{}, perr.WhereClausef("unmarshaling plan %q: %v", s, err)
	}
	return p, nil
}

// BoundKind mirrors directory.BoundKind; predicate defines its own to
// keep the package import-independent of directory, since Bound values
// here are computed from raw argument values, not directory entries.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one side of an aggregated range.
type Bound struct {
	Kind  BoundKind
	Value int64
}

// LessRestrictive returns the bound that admits more rows: the minimum
// of the two bound values, with Unbounded dominating (Unbounded is
// always less restrictive than any concrete bound).
func LessRestrictive(a, b Bound) Bound {
	if a.Kind == Unbounded || b.Kind == Unbounded {
		return Bound{Kind: Unbounded}
	}
	if a.Value != b.Value {
		if a.Value < b.Value {
			return a
		}
		return b
	}
	// Equal values: Excluded admits fewer rows than Included, so the
	// less restrictive of the two at an equal value is Included.
	if a.Kind == Included || b.Kind == Included {
		return Bound{Kind: Included, Value: a.Value}
	}
	return a
}

// MoreRestrictive returns the bound that admits fewer rows: the maximum
// of the two bound values, with Unbounded acting as the identity (any
// concrete bound is more restrictive than Unbounded).
func MoreRestrictive(a, b Bound) Bound {
	if a.Kind == Unbounded {
		return b
	}
	if b.Kind == Unbounded {
		return a
	}
	if a.Value != b.Value {
		if a.Value > b.Value {
			return a
		}
		return b
	}
	if a.Kind == Excluded || b.Kind == Excluded {
		return Bound{Kind: Excluded, Value: a.Value}
	}
	return a
}

// Range is the (lower, upper) pair produced by aggregating every
// condition on one column.
type Range struct {
	Lower Bound
	Upper Bound
}

// BoundArg is one deserialized lookup_table clause paired with its
// bound argument value.
type BoundArg struct {
	Operator Operator
	Value    any
}

// AggregateConditionsToRanges folds a set of conditions on the
// partition column into a single (lower, upper) range: for each
// condition, compute v = parse_partition_value(value, interval), then
// fold it into the running range per the operator table. Both bounds
// start Unbounded. ">" and ">=" combine into the lower bound via
// LessRestrictive, and since Unbounded dominates there, they leave the
// lower bound Unbounded; only "=" sets a concrete lower bound. Upper
// bounds combine via MoreRestrictive, which keeps the larger value, so
// repeated upper bounds also broaden rather than narrow; "<" and "<="
// add one interval to v to cover the bucket-floor semantics. Each
// qualifying partition's own WHERE clause re-checks the exact condition.
func AggregateConditionsToRanges(conds []BoundArg, interval int64) (Range, error) {
	r := Range{Lower: Bound{Kind: Unbounded}, Upper: Bound{Kind: Unbounded}}
	for _, c := range conds {
		v, err := epoch.ParsePartitionValue(c.Value, interval)
		if err != nil {
			return Range{}, err
		}
		switch c.Operator {
		case GT, GE:
			r.Lower = LessRestrictive(r.Lower, Bound{Kind: Excluded, Value: v})
		case LT:
			r.Upper = MoreRestrictive(r.Upper, Bound{Kind: Excluded, Value: v + interval})
		case LE:
			r.Upper = MoreRestrictive(r.Upper, Bound{Kind: Included, Value: v + interval})
		case EQ:
			r.Lower = MoreRestrictive(r.Lower, Bound{Kind: Included, Value: v})
			r.Upper = MoreRestrictive(r.Upper, Bound{Kind: Included, Value: v})
		case Other:
			// no effect on the range
		}
	}
	return r, nil
}
