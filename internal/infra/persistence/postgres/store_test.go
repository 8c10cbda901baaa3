package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"

	_ "modernc.org/sqlite"
)

// The snapshot SQL sticks to the dialect subset SQLite also understands, so
// the store can be exercised without a running Postgres server by rerouting
// sqlOpen at the embedded driver.
func openOverSQLite(t *testing.T) (string, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
	return path, restore
}

func TestSnapshotRoundTrip(t *testing.T) {
	_, restore := openOverSQLite(t)
	defer restore()
	ctx := context.Background()

	store, err := NewStore("ignored-dsn", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var sentenceID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateSentence(domain.Sentence{Title: "snapshotted"})
		sentenceID = s.ID
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore("ignored-dsn", nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	sentence, ok := reopened.GetSentence(sentenceID)
	if !ok || sentence.Title != "snapshotted" {
		t.Fatalf("sentence after reopen = %+v (found %v)", sentence, ok)
	}
}
