package predicate

import "testing"

func TestBuildPlanSplitsBags(t *testing.T) {
	constraints := []Constraint{
		{Column: "created_at", Operator: GE, Usable: true},
		{Column: "payload", Operator: EQ, Usable: true},
		{Column: "created_at", Operator: LT, Usable: false}, // unusable, dropped
	}
	plan, n := BuildPlan(constraints, "created_at")

	if n != 2 {
		t.Fatalf("argv count = %d, want 2", n)
	}
	if len(plan.PartitionTable) != 2 {
		t.Fatalf("partition_table = %+v, want 2 entries", plan.PartitionTable)
	}
	if len(plan.LookupTable) != 1 || plan.LookupTable[0].Column != "partition_value" {
		t.Fatalf("lookup_table = %+v, want one partition_value clause", plan.LookupTable)
	}
	if plan.LookupTable[0].ArgvIdx != plan.PartitionTable[0].ArgvIdx {
		t.Fatalf("lookup clause argv idx %d != partition clause argv idx %d",
			plan.LookupTable[0].ArgvIdx, plan.PartitionTable[0].ArgvIdx)
	}
}

func TestPlanRoundTrip(t *testing.T) {
	plan := Plan{
		PartitionTable: []Clause{{Column: "created_at", Operator: GE, ArgvIdx: 0}},
		LookupTable:    []Clause{{Column: "partition_value", Operator: GE, ArgvIdx: 0}},
	}
	s, err := Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(s)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.PartitionTable) != 1 || got.PartitionTable[0].Column != "created_at" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLessRestrictiveUnboundedDominates(t *testing.T) {
	u := Bound{Kind: Unbounded}
	c := Bound{Kind: Included, Value: 100}
	if got := LessRestrictive(u, c); got.Kind != Unbounded {
		t.Fatalf("LessRestrictive(unbounded, concrete) = %+v, want Unbounded", got)
	}
	if got := LessRestrictive(c, u); got.Kind != Unbounded {
		t.Fatalf("LessRestrictive(concrete, unbounded) = %+v, want Unbounded", got)
	}
}

func TestLessRestrictiveTakesMinimum(t *testing.T) {
	a := Bound{Kind: Excluded, Value: 200}
	b := Bound{Kind: Excluded, Value: 100}
	got := LessRestrictive(a, b)
	if got.Value != 100 {
		t.Fatalf("LessRestrictive = %+v, want value 100", got)
	}
}

func TestMoreRestrictiveUnboundedIsIdentity(t *testing.T) {
	u := Bound{Kind: Unbounded}
	c := Bound{Kind: Included, Value: 100}
	if got := MoreRestrictive(u, c); got != c {
		t.Fatalf("MoreRestrictive(unbounded, c) = %+v, want %+v", got, c)
	}
	if got := MoreRestrictive(c, u); got != c {
		t.Fatalf("MoreRestrictive(c, unbounded) = %+v, want %+v", got, c)
	}
}

func TestMoreRestrictiveTakesMaximum(t *testing.T) {
	a := Bound{Kind: Included, Value: 100}
	b := Bound{Kind: Included, Value: 200}
	got := MoreRestrictive(a, b)
	if got.Value != 200 {
		t.Fatalf("MoreRestrictive = %+v, want value 200", got)
	}
}

func TestAggregateConditionsToRangesSingleEquality(t *testing.T) {
	interval := int64(3600)
	conds := []BoundArg{{Operator: EQ, Value: int64(7200)}}
	r, err := AggregateConditionsToRanges(conds, interval)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Lower != (Bound{Kind: Included, Value: 7200}) {
		t.Fatalf("Lower = %+v, want Included(7200)", r.Lower)
	}
	if r.Upper != (Bound{Kind: Included, Value: 7200}) {
		t.Fatalf("Upper = %+v, want Included(7200)", r.Upper)
	}
}

func TestAggregateConditionsToRangesLessThan(t *testing.T) {
	interval := int64(3600)
	conds := []BoundArg{{Operator: LT, Value: int64(7200)}}
	r, err := AggregateConditionsToRanges(conds, interval)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// v = parse_partition_value(7200, 3600) = 7200; upper = Excluded(v+interval)
	want := Bound{Kind: Excluded, Value: 7200 + interval}
	if r.Upper != want {
		t.Fatalf("Upper = %+v, want %+v", r.Upper, want)
	}
	if r.Lower.Kind != Unbounded {
		t.Fatalf("Lower = %+v, want Unbounded", r.Lower)
	}
}

func TestAggregateConditionsToRangesRepeatedLowerBoundsBroaden(t *testing.T) {
	interval := int64(3600)
	// Two ">" constraints on the same column: lower bounds combine via
	// LessRestrictive, and the running lower bound starts Unbounded, which
	// dominates. The aggregated lower bound therefore stays Unbounded,
	// broadening the pruned set rather than narrowing it; each
	// partition's own WHERE clause re-checks the exact rows.
	conds := []BoundArg{
		{Operator: GT, Value: int64(7200)},
		{Operator: GT, Value: int64(10800)},
	}
	r, err := AggregateConditionsToRanges(conds, interval)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Lower.Kind != Unbounded {
		t.Fatalf("Lower = %+v, want Unbounded", r.Lower)
	}
}

func TestAggregateConditionsToRangesPropagatesParseErrors(t *testing.T) {
	conds := []BoundArg{{Operator: EQ, Value: "not-a-date"}}
	if _, err := AggregateConditionsToRanges(conds, 3600); err == nil {
		t.Fatal("expected parse error to propagate")
	}
}
