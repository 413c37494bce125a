package shadow

import (
	"database/sql"
	"testing"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/directory"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/hostdb"
	"github.com/nuuskamummu/Sqlite3-partitioner/internal/schema"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := hostdb.Open(":memory:")
	if err != nil {
		t.Fatalf("hostdb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRootCreateAndConnect(t *testing.T) {
	db := openTestDB(t)
	lifetime := int64(604800)
	r := &Root{Base: "events", PartitionColumn: "created_at", IntervalSeconds: 3600, LifetimeSeconds: &lifetime}
	if err := CreateRoot(db, r); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}

	got, err := ConnectRoot(db, "events")
	if err != nil {
		t.Fatalf("ConnectRoot: %v", err)
	}
	if got.PartitionColumn != "created_at" || got.IntervalSeconds != 3600 {
		t.Fatalf("unexpected root: %+v", got)
	}
	if got.LifetimeSeconds == nil || *got.LifetimeSeconds != lifetime {
		t.Fatalf("unexpected lifetime: %+v", got.LifetimeSeconds)
	}
}

func TestRootWithoutLifetime(t *testing.T) {
	db := openTestDB(t)
	r := &Root{Base: "events", PartitionColumn: "created_at", IntervalSeconds: 3600}
	if err := CreateRoot(db, r); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	got, err := ConnectRoot(db, "events")
	if err != nil {
		t.Fatalf("ConnectRoot: %v", err)
	}
	if got.LifetimeSeconds != nil {
		t.Fatalf("expected nil lifetime, got %v", *got.LifetimeSeconds)
	}
}

func TestLookupCreateInsertSyncAndRange(t *testing.T) {
	db := openTestDB(t)
	lk, err := CreateLookup(db, "events")
	if err != nil {
		t.Fatalf("CreateLookup: %v", err)
	}

	if err := lk.Insert(db, "events_0", 0, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	expires := int64(1000)
	if err := lk.Insert(db, "events_3600", 3600, &expires); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if name, ok := lk.GetPartition(0); !ok || name != "events_0" {
		t.Fatalf("GetPartition(0) = (%q, %v)", name, ok)
	}

	// A second Lookup handle attached to the same table must pick up
	// both rows via Sync/Connect.
	other, err := ConnectLookup(db, "events")
	if err != nil {
		t.Fatalf("ConnectLookup: %v", err)
	}
	if name, ok := other.GetPartition(3600); !ok || name != "events_3600" {
		t.Fatalf("ConnectLookup did not sync: GetPartition(3600) = (%q, %v)", name, ok)
	}

	entries, err := lk.GetPartitionsByRange(db, directory.Bound{Kind: directory.Unbounded}, directory.Bound{Kind: directory.Unbounded})
	if err != nil {
		t.Fatalf("GetPartitionsByRange: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("GetPartitionsByRange returned %d entries, want 2", len(entries))
	}
	if entries[0].Value != 0 || entries[1].Value != 3600 {
		t.Fatalf("GetPartitionsByRange not ascending: %+v", entries)
	}
}

func TestLookupUniqueConstraints(t *testing.T) {
	db := openTestDB(t)
	lk, err := CreateLookup(db, "events")
	if err != nil {
		t.Fatalf("CreateLookup: %v", err)
	}
	if err := lk.Insert(db, "events_0", 0, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := lk.Insert(db, "events_0_dup", 0, nil); err == nil {
		t.Fatal("expected UNIQUE violation inserting duplicate partition_value")
	}
}

func TestTemplateCreateConnectAndCopy(t *testing.T) {
	db := openTestDB(t)
	cols := []schema.Column{
		{Name: "created_at", Type: schema.Integer, IsPartitionColumn: true},
		{Name: "payload", Type: schema.Text},
	}
	tmpl, err := CreateTemplate(db, "events", cols)
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if _, err := db.Exec("CREATE INDEX events_template_payload_idx ON events_template (payload)"); err != nil {
		t.Fatalf("creating index on template: %v", err)
	}

	if err := tmpl.Copy(db, "events_3600"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if _, err := db.Exec("INSERT INTO events_3600 (created_at, payload) VALUES (?, ?)", 3600, "hello"); err != nil {
		t.Fatalf("insert into cloned partition: %v", err)
	}

	// The replayed index is named <original index name>_<new table
	// name>, not the reverse, and must exist against the clone.
	var idxName string
	row := db.QueryRow("SELECT name FROM sqlite_schema WHERE type = 'index' AND tbl_name = 'events_3600'")
	if err := row.Scan(&idxName); err != nil {
		t.Fatalf("querying replayed index: %v", err)
	}
	if idxName != "events_template_payload_idx_events_3600" {
		t.Fatalf("replayed index name = %q, want %q", idxName, "events_template_payload_idx_events_3600")
	}

	// Calling Copy again for the same partition must be idempotent
	// (IF NOT EXISTS), matching the get_partition race-recovery path.
	if err := tmpl.Copy(db, "events_3600"); err != nil {
		t.Fatalf("second Copy: %v", err)
	}

	connected, err := ConnectTemplate(db, "events")
	if err != nil {
		t.Fatalf("ConnectTemplate: %v", err)
	}
	if len(connected.UserColumns()) != 2 {
		t.Fatalf("ConnectTemplate columns = %+v, want 2", connected.UserColumns())
	}
}

func TestDropShadowTable(t *testing.T) {
	db := openTestDB(t)
	r := &Root{Base: "events", PartitionColumn: "created_at", IntervalSeconds: 3600}
	if err := CreateRoot(db, r); err != nil {
		t.Fatalf("CreateRoot: %v", err)
	}
	if err := Drop(db, "events", r); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if _, err := ConnectRoot(db, "events"); err == nil {
		t.Fatal("expected error reading dropped root table")
	}
}
