package directory

import "testing"

func TestInsertAndGet(t *testing.T) {
	d := New()
	d.Insert(100, "events_100")
	d.Insert(200, "events_200")

	name, ok := d.Get(100)
	if !ok || name != "events_100" {
		t.Fatalf("Get(100) = (%q, %v), want (events_100, true)", name, ok)
	}
	if _, ok := d.Get(999); ok {
		t.Fatal("Get(999) found an entry that was never inserted")
	}
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}
}

func TestAllIsSortedRegardlessOfInsertionOrder(t *testing.T) {
	d := New()
	d.Insert(300, "events_300")
	d.Insert(100, "events_100")
	d.Insert(200, "events_200")

	all := d.All()
	want := []int64{100, 200, 300}
	if len(all) != len(want) {
		t.Fatalf("All() len = %d, want %d", len(all), len(want))
	}
	for i, v := range want {
		if all[i].Value != v {
			t.Errorf("All()[%d].Value = %d, want %d", i, all[i].Value, v)
		}
	}
}

func TestRangeByBound(t *testing.T) {
	d := New()
	for _, v := range []int64{0, 100, 200, 300, 400} {
		d.Insert(v, "p")
	}

	got := d.RangeByBound(Bound{Kind: Included, Value: 100}, Bound{Kind: Excluded, Value: 400})
	var values []int64
	for _, e := range got {
		values = append(values, e.Value)
	}
	want := []int64{100, 200, 300}
	if len(values) != len(want) {
		t.Fatalf("RangeByBound = %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("RangeByBound = %v, want %v", values, want)
		}
	}
}

func TestDelete(t *testing.T) {
	d := New()
	d.Insert(1, "p1")
	if !d.Delete(1) {
		t.Fatal("Delete(1) = false, want true")
	}
	if d.Delete(1) {
		t.Fatal("Delete(1) twice = true, want false")
	}
	if d.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", d.Len())
	}
}

func TestSyncIsMonotonicAndIdempotent(t *testing.T) {
	d := New()
	d.Insert(100, "events_100")

	rows := []Entry{{Value: 100, Name: "events_100_stale"}, {Value: 200, Name: "events_200"}}
	d.Sync(rows)

	// existing entry must not be overwritten by Sync
	if name, _ := d.Get(100); name != "events_100" {
		t.Fatalf("Sync overwrote existing entry: Get(100) = %q", name)
	}
	if name, ok := d.Get(200); !ok || name != "events_200" {
		t.Fatalf("Sync did not add new entry: Get(200) = (%q, %v)", name, ok)
	}

	// a second identical Sync call must be a no-op
	before := d.All()
	d.Sync(rows)
	after := d.All()
	if len(before) != len(after) {
		t.Fatalf("Sync was not idempotent: before=%v after=%v", before, after)
	}
}
