package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// blockStateRule blocks any statement that ends up in the named state. Used to
// prove that blocking violations roll the whole transaction back.
type blockStateRule struct {
	state domain.CSState
}

func (blockStateRule) Name() string { return "block_state" }

func (r blockStateRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, cs := range view.ListConnectivityStatements() {
		if cs.State == r.state {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "block_state",
				Severity: domain.SeverityBlock,
				Message:  "state not allowed",
				Entity:   domain.EntityConnectivityStatement,
				EntityID: cs.ID,
			})
		}
	}
	return res, nil
}

func seedSentenceAndStatement(t *testing.T, store *Store) (string, string) {
	t.Helper()
	var sentenceID, statementID string
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		s, err := tx.CreateSentence(Sentence{Title: "seed"})
		if err != nil {
			return err
		}
		sentenceID = s.ID
		cs, err := tx.CreateConnectivityStatement(ConnectivityStatement{SentenceID: s.ID})
		if err != nil {
			return err
		}
		statementID = cs.ID
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return sentenceID, statementID
}

func TestCreateUserRejectsDuplicateLogin(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateUser(User{Login: "jdoe"}); err != nil {
			return err
		}
		_, err := tx.CreateUser(User{Login: "jdoe"})
		return err
	})
	var integrity domain.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
}

func TestCreateSentenceRejectsOversizedTitle(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateSentence(Sentence{Title: strings.Repeat("x", domain.MaxSentenceTitle+1)})
		return err
	})
	var integrity domain.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError for long title, got %v", err)
	}
}

func TestUpdateMutatorCannotChangeState(t *testing.T) {
	store := NewStore(nil)
	_, statementID := seedSentenceAndStatement(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateConnectivityStatement(statementID, func(cs *ConnectivityStatement) error {
			cs.State = domain.CSExported
			return nil
		})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "lifecycle engine") {
		t.Fatalf("state change through mutator must be rejected, got %v", err)
	}
}

func TestUpdateMutatorCannotClearExportFlag(t *testing.T) {
	store := NewStore(nil)
	_, statementID := seedSentenceAndStatement(t, store)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.SetStatementState(statementID, domain.CSExported); err != nil {
			return err
		}
		if _, err := tx.SetStatementState(statementID, domain.CSNPOApproved); err != nil {
			return err
		}
		updated, err := tx.UpdateConnectivityStatement(statementID, func(cs *ConnectivityStatement) error {
			cs.HasStatementBeenExported = false
			return nil
		})
		if err != nil {
			return err
		}
		if !updated.HasStatementBeenExported {
			t.Fatalf("export flag must stay set")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestDeleteStatementCascades(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	var targetID, pointerID string
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		s, err := tx.CreateSentence(Sentence{Title: "host"})
		if err != nil {
			return err
		}
		target, err := tx.CreateConnectivityStatement(ConnectivityStatement{SentenceID: s.ID})
		if err != nil {
			return err
		}
		targetID = target.ID
		pointer, err := tx.CreateConnectivityStatement(ConnectivityStatement{
			SentenceID:           s.ID,
			ForwardConnectionIDs: []string{target.ID},
		})
		if err != nil {
			return err
		}
		pointerID = pointer.ID
		rel, err := tx.CreateRelationship(Relationship{Title: "Role", Type: domain.RelationshipText})
		if err != nil {
			return err
		}
		if _, err := tx.CreateStatementTriple(StatementTriple{StatementID: target.ID, RelationshipID: rel.ID, Text: "x"}); err != nil {
			return err
		}
		if _, err := tx.CreateProvenance(Provenance{StatementID: target.ID, URI: "http://doi.org/1"}); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteConnectivityStatement(targetID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok := store.GetConnectivityStatement(targetID); ok {
		t.Fatalf("statement should be gone")
	}
	pointer, ok := store.GetConnectivityStatement(pointerID)
	if !ok {
		t.Fatalf("pointer statement lost")
	}
	if len(pointer.ForwardConnectionIDs) != 0 {
		t.Fatalf("forward reference should be pruned, got %v", pointer.ForwardConnectionIDs)
	}
	if err := store.View(ctx, func(v TransactionView) error {
		if triples := v.ListStatementTriples(); len(triples) != 0 {
			t.Fatalf("triples should cascade, got %v", triples)
		}
		if provs := v.ListProvenances(); len(provs) != 0 {
			t.Fatalf("provenances should cascade, got %v", provs)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestBlockingViolationRollsBack(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockStateRule{state: domain.CSExported})
	store := NewStore(engine)
	_, statementID := seedSentenceAndStatement(t, store)

	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.SetStatementState(statementID, domain.CSExported)
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("result should carry the blocking violation")
	}
	cs, ok := store.GetConnectivityStatement(statementID)
	if !ok || cs.State != domain.CSDraft {
		t.Fatalf("rollback must restore draft, got %+v", cs)
	}
	if cs.HasStatementBeenExported {
		t.Fatalf("rolled-back export must not leave the sticky flag")
	}
}

func TestFindStatementByReferencePrefersLive(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	const ref = "http://uri.interlex.org/composer/uris/ks/ext/9"

	var sentenceID, oldID, freshID string
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		s, err := tx.CreateSentence(Sentence{Title: "host"})
		if err != nil {
			return err
		}
		sentenceID = s.ID
		old, err := tx.CreateConnectivityStatement(ConnectivityStatement{SentenceID: s.ID, ReferenceURI: ref})
		if err != nil {
			return err
		}
		oldID = old.ID
		if _, err := tx.SetStatementState(old.ID, domain.CSDeprecated); err != nil {
			return err
		}

		got, ok := tx.FindStatementBySentenceAndReference(s.ID, ref)
		if !ok || got.ID != oldID {
			t.Fatalf("terminal-only lookup = %+v, %v", got, ok)
		}

		fresh, err := tx.CreateConnectivityStatement(ConnectivityStatement{SentenceID: s.ID, ReferenceURI: ref})
		if err != nil {
			return err
		}
		freshID = fresh.ID
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := store.View(ctx, func(v TransactionView) error {
		got, ok := v.FindStatementBySentenceAndReference(sentenceID, ref)
		if !ok {
			t.Fatalf("statement not found")
		}
		if got.ID != freshID {
			t.Fatalf("lookup = %s, want the live statement %s over deprecated %s", got.ID, freshID, oldID)
		}
		if _, ok := v.FindStatementBySentenceAndReference(sentenceID, ""); ok {
			t.Fatalf("empty reference must not match")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestExportImportStateRoundTrip(t *testing.T) {
	store := NewStore(nil)
	sentenceID, statementID := seedSentenceAndStatement(t, store)

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())

	if _, ok := restored.GetSentence(sentenceID); !ok {
		t.Fatalf("sentence missing after import")
	}
	cs, ok := restored.GetConnectivityStatement(statementID)
	if !ok {
		t.Fatalf("statement missing after import")
	}
	if cs.State != domain.CSDraft {
		t.Fatalf("state = %s", cs.State)
	}

	// the snapshot is a deep copy, mutating the source must not leak
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateConnectivityStatement(statementID, func(target *ConnectivityStatement) error {
			target.KnowledgeStatement = "mutated"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("mutate source: %v", err)
	}
	cs, _ = restored.GetConnectivityStatement(statementID)
	if cs.KnowledgeStatement == "mutated" {
		t.Fatalf("imported state must be isolated from the source store")
	}
}
