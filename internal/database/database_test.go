package database

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "stackbot.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestRecordDelivery(t *testing.T) {
	db := setupTestDB(t)

	inserted, err := RecordDelivery(db, "d-1", "status", "feature-x")
	if err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}
	if !inserted {
		t.Error("first RecordDelivery = false, want true")
	}

	inserted, err = RecordDelivery(db, "d-1", "status", "feature-x")
	if err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}
	if inserted {
		t.Error("duplicate RecordDelivery = true, want false")
	}

	inserted, err = RecordDelivery(db, "d-2", "pull_request.closed", "feature-x")
	if err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}
	if !inserted {
		t.Error("RecordDelivery(d-2) = false, want true")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM deliveries").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %v, want 2", count)
	}
}

func TestPruneDeliveries(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec("INSERT INTO deliveries (delivery_id, event, received_at) VALUES ('old', 'status', datetime('now', '-30 days'))"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := RecordDelivery(db, "fresh", "status", "main"); err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}

	pruned, err := PruneDeliveries(db, 7)
	if err != nil {
		t.Fatalf("PruneDeliveries failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %v, want 1", pruned)
	}

	inserted, err := RecordDelivery(db, "old", "status", "main")
	if err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}
	if !inserted {
		t.Error("RecordDelivery(old) after prune = false, want true")
	}
}
