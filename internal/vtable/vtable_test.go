package vtable

import (
	"database/sql"
	"testing"

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

func testColumns() []schema.Column {
	return []schema.Column{
		{Name: "created_at", Type: schema.Integer, IsPartitionColumn: true},
		{Name: "payload", Type: schema.Text},
	}
}

func TestCreateConnectAndDestroy(t *testing.T) {
	db := openTestDB(t)
	vt, err := Create(db, "events", testColumns(), "created_at", 3600, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	connected, err := Connect(db, "events")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if connected.Root.IntervalSeconds != 3600 {
		t.Fatalf("Connect: interval = %d, want 3600", connected.Root.IntervalSeconds)
	}

	if _, err := vt.Insert(0, []any{int64(0), "hello"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := vt.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := Connect(db, "events"); err == nil {
		t.Fatal("expected Connect to fail after Destroy")
	}
}

func TestGetPartitionCreatesOnMiss(t *testing.T) {
	db := openTestDB(t)
	vt, err := Create(db, "events", testColumns(), "created_at", 3600, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	name, err := vt.GetPartition(3600)
	if err != nil {
		t.Fatalf("GetPartition: %v", err)
	}
	if name != "events_3600" {
		t.Fatalf("GetPartition = %q, want events_3600", name)
	}

	// A second call for the same value must be idempotent, returning
	// the same name without erroring on the already-created table.
	again, err := vt.GetPartition(3600)
	if err != nil {
		t.Fatalf("second GetPartition: %v", err)
	}
	if again != name {
		t.Fatalf("second GetPartition = %q, want %q", again, name)
	}
}

func TestGetPartitionRespectsLifetime(t *testing.T) {
	db := openTestDB(t)
	lifetime := int64(86400)
	vt, err := Create(db, "events", testColumns(), "created_at", 3600, &lifetime)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := vt.GetPartition(3600); err != nil {
		t.Fatalf("GetPartition: %v", err)
	}

	var expiresAt sql.NullInt64
	row := db.QueryRow("SELECT expires_at FROM events_lookup WHERE partition_value = ?", 3600)
	if err := row.Scan(&expiresAt); err != nil {
		t.Fatalf("scanning expires_at: %v", err)
	}
	if !expiresAt.Valid || expiresAt.Int64 != lifetime+3600 {
		t.Fatalf("expires_at = %+v, want %d", expiresAt, lifetime+3600)
	}
}

func TestInsertCreatesPartitionAndReturnsRowID(t *testing.T) {
	db := openTestDB(t)
	vt, err := Create(db, "events", testColumns(), "created_at", 3600, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	id, err := vt.Insert(3600, []any{int64(3600), "hello"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == 0 {
		t.Fatal("Insert returned zero rowid")
	}

	var payload string
	row := db.QueryRow("SELECT payload FROM events_3600 WHERE rowid = ?", id)
	if err := row.Scan(&payload); err != nil {
		t.Fatalf("scanning inserted row: %v", err)
	}
	if payload != "hello" {
		t.Fatalf("payload = %q, want hello", payload)
	}
}

func TestCreateTableQuery(t *testing.T) {
	db := openTestDB(t)
	vt, err := Create(db, "events", testColumns(), "created_at", 3600, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := "CREATE TABLE events (created_at INTEGER, payload TEXT)"
	if got := vt.CreateTableQuery(); got != want {
		t.Fatalf("CreateTableQuery() = %q, want %q", got, want)
	}
}
