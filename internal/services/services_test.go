package services

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/chattalk/backend/internal/events"
	"github.com/chattalk/backend/internal/repo"
)

// newTestDB opens a throwaway SQLite database with the full schema migrated,
// foreign keys on, matching production.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// awaitKind drains sub until an event of the wanted kind arrives, failing the
// test after two seconds. Interleaved events of other kinds are skipped.
func awaitKind(t *testing.T, sub *events.Subscription, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-sub.C():
			if !open {
				t.Fatalf("subscription closed while waiting for %q", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", kind)
		}
	}
}

// expectNoEvent asserts that nothing is buffered on sub right now.
func expectNoEvent(t *testing.T, sub *events.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}
