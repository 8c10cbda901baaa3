package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composer.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	var sentenceID, statementID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateSentence(domain.Sentence{Title: "persisted sentence"})
		if err != nil {
			return err
		}
		sentenceID = s.ID
		cs, err := tx.CreateConnectivityStatement(domain.ConnectivityStatement{
			SentenceID:         s.ID,
			KnowledgeStatement: "persisted statement",
		})
		if err != nil {
			return err
		}
		statementID = cs.ID
		return nil
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	sentence, ok := reopened.GetSentence(sentenceID)
	if !ok || sentence.Title != "persisted sentence" {
		t.Fatalf("sentence after reopen = %+v (found %v)", sentence, ok)
	}
	cs, ok := reopened.GetConnectivityStatement(statementID)
	if !ok || cs.KnowledgeStatement != "persisted statement" {
		t.Fatalf("statement after reopen = %+v (found %v)", cs, ok)
	}
	if cs.State != domain.CSDraft {
		t.Fatalf("state after reopen = %s", cs.State)
	}
}

func TestFailedTransactionIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "composer.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateSentence(domain.Sentence{Title: "doomed"}); err != nil {
			return err
		}
		_, err := tx.CreateConnectivityStatement(domain.ConnectivityStatement{SentenceID: "missing"})
		return err
	}); err == nil {
		t.Fatalf("expected failure for dangling sentence reference")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if sentences := reopened.ListSentences(); len(sentences) != 0 {
		t.Fatalf("failed transaction leaked to disk: %v", sentences)
	}
}
