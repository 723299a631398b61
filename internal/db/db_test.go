package db

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDB_OpenAndClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "state", "events.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	// Verify the directory and database file were created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if db.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
}

func TestDB_LogLivenessChange(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogLivenessChange(true, SourceProbe); err != nil {
		t.Fatalf("Failed to log liveness change: %v", err)
	}

	rows, err := db.conn.Query(`SELECT running, source FROM liveness_changes ORDER BY id DESC LIMIT 1`)
	if err != nil {
		t.Fatalf("Failed to query liveness changes: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("Expected at least one liveness change record")
	}

	var running bool
	var source string
	if err := rows.Scan(&running, &source); err != nil {
		t.Fatalf("Failed to scan row: %v", err)
	}
	if !running {
		t.Error("Expected running=true")
	}
	if source != SourceProbe {
		t.Errorf("Expected source='probe', got '%v'", source)
	}
}

func TestDB_RecentLivenessChanges(t *testing.T) {
	db := openTestDB(t)

	sequence := []bool{true, false, true}
	for _, running := range sequence {
		if err := db.LogLivenessChange(running, SourceProbe); err != nil {
			t.Fatalf("Failed to log liveness change: %v", err)
		}
	}

	changes, err := db.RecentLivenessChanges(2)
	if err != nil {
		t.Fatalf("Failed to get recent liveness changes: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("Expected 2 changes, got %d", len(changes))
	}

	// Newest first
	if !changes[0].Running || changes[1].Running {
		t.Errorf("Expected [true false], got [%v %v]", changes[0].Running, changes[1].Running)
	}
	if changes[0].ID <= changes[1].ID {
		t.Errorf("Expected descending IDs, got %d then %d", changes[0].ID, changes[1].ID)
	}
	if time.Since(changes[0].Timestamp) > time.Minute {
		t.Errorf("Timestamp looks wrong: %v", changes[0].Timestamp)
	}
}

func TestDB_LastLivenessChange(t *testing.T) {
	db := openTestDB(t)

	last, err := db.LastLivenessChange()
	if err != nil {
		t.Fatalf("LastLivenessChange() error = %v", err)
	}
	if last != nil {
		t.Fatalf("Expected nil on empty history, got %+v", last)
	}

	db.LogLivenessChange(true, SourceStartup)
	db.LogLivenessChange(false, SourceProbe)

	last, err = db.LastLivenessChange()
	if err != nil {
		t.Fatalf("LastLivenessChange() error = %v", err)
	}
	if last == nil || last.Running || last.Source != SourceProbe {
		t.Errorf("Unexpected last change: %+v", last)
	}
}

func TestDB_ControlEvents(t *testing.T) {
	db := openTestDB(t)

	if err := db.LogControlEvent("start", "launchd", ResultOK, ""); err != nil {
		t.Fatalf("Failed to log control event: %v", err)
	}
	if err := db.LogControlEvent("stop", "direct", ResultFailed, "supervisor stop: not running"); err != nil {
		t.Fatalf("Failed to log control event: %v", err)
	}

	events, err := db.RecentControlEvents(10)
	if err != nil {
		t.Fatalf("Failed to get recent control events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}

	stop := events[0]
	if stop.Action != "stop" || stop.Backend != "direct" || stop.Result != ResultFailed {
		t.Errorf("Unexpected newest event: %+v", stop)
	}
	if stop.Details != "supervisor stop: not running" {
		t.Errorf("Expected details to round-trip, got %q", stop.Details)
	}

	start := events[1]
	if start.Action != "start" || start.Backend != "launchd" || start.Result != ResultOK {
		t.Errorf("Unexpected oldest event: %+v", start)
	}
	if start.Details != "" {
		t.Errorf("Expected empty details, got %q", start.Details)
	}
}

func TestDB_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "events.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.LogControlEvent("start", "direct", ResultOK, "")
	if err := db.Flush(); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	db.Close()

	db, err = Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	events, err := db.RecentControlEvents(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event after reopen, got %d", len(events))
	}
}

func TestDB_ConcurrentWrites(t *testing.T) {
	db := openTestDB(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db.LogLivenessChange(i%2 == 0, SourceProbe)
		}(i)
	}
	wg.Wait()

	changes, err := db.RecentLivenessChanges(100)
	if err != nil {
		t.Fatal(err)
	}
	// Best effort under contention; most writes land
	if len(changes) == 0 {
		t.Error("Expected some liveness changes after concurrent writes")
	}
}

func TestDB_LogLivenessIfChanged(t *testing.T) {
	db := openTestDB(t)

	steps := []struct {
		running bool
		written bool
	}{
		{false, true},
		{false, false},
		{false, false},
		{true, true},
		{true, false},
		{false, true},
	}
	for i, step := range steps {
		written, err := db.LogLivenessIfChanged(step.running, SourceStartup)
		if err != nil {
			t.Fatalf("step %d: LogLivenessIfChanged failed: %v", i, err)
		}
		if written != step.written {
			t.Errorf("step %d: written = %v, want %v", i, written, step.written)
		}
	}

	changes, err := db.RecentLivenessChanges(10)
	if err != nil {
		t.Fatalf("Failed to read changes: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(changes))
	}
	for i := 1; i < len(changes); i++ {
		if changes[i].Running == changes[i-1].Running {
			t.Errorf("rows %d and %d record the same state", i-1, i)
		}
	}
}
