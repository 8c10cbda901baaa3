package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/internal/infra/persistence/memory"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func newTestStore() *memory.Store {
	return memory.NewStore(NewRulesEngine())
}

func seedActor(t *testing.T, tx Transaction) User {
	t.Helper()
	u, err := tx.CreateUser(User{Login: "jdoe", FirstName: "Jane", LastName: "Doe"})
	if err != nil {
		t.Fatalf("create actor: %v", err)
	}
	return u
}

func seedEntities(t *testing.T, tx Transaction, names ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		e, err := tx.CreateAnatomicalEntity(AnatomicalEntity{Name: name, OntologyURI: "http://purl.org/" + name})
		if err != nil {
			t.Fatalf("create entity %s: %v", name, err)
		}
		ids = append(ids, e.ID)
	}
	return ids
}

func seedStatement(t *testing.T, tx Transaction, state domain.CSState, origins, dests []string) ConnectivityStatement {
	t.Helper()
	sentence, err := tx.CreateSentence(Sentence{Title: "seed sentence"})
	if err != nil {
		t.Fatalf("create sentence: %v", err)
	}
	cs, err := tx.CreateConnectivityStatement(ConnectivityStatement{
		SentenceID:         sentence.ID,
		KnowledgeStatement: "seed statement",
		State:              state,
		OriginIDs:          origins,
		Destinations:       []Destination{{Type: domain.DestinationAxonT, AnatomicalEntityIDs: dests}},
	})
	if err != nil {
		t.Fatalf("create statement: %v", err)
	}
	return cs
}

func TestTransitionSentenceRecordsSystemNote(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		s, err := tx.CreateSentence(Sentence{Title: "vagal efferents"})
		if err != nil {
			t.Fatalf("create sentence: %v", err)
		}
		updated, err := TransitionSentence(tx, s.ID, domain.SentenceNeedsFurtherReview, actor)
		if err != nil {
			t.Fatalf("transition sentence: %v", err)
		}
		if updated.State != domain.SentenceNeedsFurtherReview {
			t.Fatalf("state = %s", updated.State)
		}
		notes := tx.ListNotesForSentence(s.ID)
		if len(notes) != 1 {
			t.Fatalf("expected one note, got %d", len(notes))
		}
		want := "User Jane Doe transitioned this record from open to needs_further_review"
		if notes[0].Text != want {
			t.Fatalf("note text = %q, want %q", notes[0].Text, want)
		}
		if notes[0].Type != domain.NoteTransition {
			t.Fatalf("note type = %s", notes[0].Type)
		}
		system, ok := tx.FindUserByLogin(domain.SystemUserLogin)
		if !ok || notes[0].UserID != system.ID {
			t.Fatalf("transition note must be system-authored")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestTransitionSentenceComposeNowRequiresStatements(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		s, err := tx.CreateSentence(Sentence{Title: "bare", State: domain.SentenceReadyToCompose})
		if err != nil {
			t.Fatalf("create sentence: %v", err)
		}
		_, err = TransitionSentence(tx, s.ID, domain.SentenceComposeNow, actor)
		var blocked domain.TransitionNotAllowedError
		if !errors.As(err, &blocked) {
			t.Fatalf("expected TransitionNotAllowedError, got %v", err)
		}
		if _, err := tx.CreateConnectivityStatement(ConnectivityStatement{SentenceID: s.ID}); err != nil {
			t.Fatalf("create statement: %v", err)
		}
		if _, err := TransitionSentence(tx, s.ID, domain.SentenceComposeNow, actor); err != nil {
			t.Fatalf("transition with statement attached: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestTransitionStatementGuardsEndpoints(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		ids := seedEntities(t, tx, "ganglion", "mucosa")
		empty := seedStatement(t, tx, domain.CSDraft, nil, nil)
		if _, err := TransitionStatement(tx, empty.ID, domain.CSComposeNow, actor, false); err == nil {
			t.Fatalf("statement without origins must not leave draft")
		}
		full := seedStatement(t, tx, domain.CSDraft, ids[:1], ids[1:])
		updated, err := TransitionStatement(tx, full.ID, domain.CSComposeNow, actor, false)
		if err != nil {
			t.Fatalf("transition with endpoints: %v", err)
		}
		if updated.State != domain.CSComposeNow {
			t.Fatalf("state = %s", updated.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestTransitionStatementSystemEdgeRejectsUsers(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		ids := seedEntities(t, tx, "nodose", "larynx")
		cs := seedStatement(t, tx, domain.CSNPOApproved, ids[:1], ids[1:])
		if _, err := TransitionStatement(tx, cs.ID, domain.CSExported, actor, false); err == nil {
			t.Fatalf("EXPORTED must be unreachable without the system flag")
		}
		if _, err := TransitionStatement(tx, cs.ID, domain.CSExported, actor, true); err != nil {
			t.Fatalf("system export transition: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestEnterExportedAssignsGapFreeIndices(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		ids := seedEntities(t, tx, "cord", "organ")
		pop, err := tx.CreatePopulationSet(PopulationSet{Name: "pelvic"})
		if err != nil {
			t.Fatalf("create population: %v", err)
		}
		first := seedStatement(t, tx, domain.CSNPOApproved, ids[:1], ids[1:])
		second := seedStatement(t, tx, domain.CSNPOApproved, ids[:1], ids[1:])
		for _, id := range []string{first.ID, second.ID} {
			if _, err := tx.UpdateConnectivityStatement(id, func(s *ConnectivityStatement) error {
				s.PopulationID = pop.ID
				return nil
			}); err != nil {
				t.Fatalf("attach population: %v", err)
			}
		}

		one, err := TransitionStatement(tx, first.ID, domain.CSExported, actor, true)
		if err != nil {
			t.Fatalf("export first: %v", err)
		}
		two, err := TransitionStatement(tx, second.ID, domain.CSExported, actor, true)
		if err != nil {
			t.Fatalf("export second: %v", err)
		}
		if one.PopulationIndex == nil || *one.PopulationIndex != 1 {
			t.Fatalf("first index = %v", one.PopulationIndex)
		}
		if two.PopulationIndex == nil || *two.PopulationIndex != 2 {
			t.Fatalf("second index = %v", two.PopulationIndex)
		}
		if one.ShortName != "neuron type pelvic 1" {
			t.Fatalf("short name = %q", one.ShortName)
		}
		if !strings.HasSuffix(one.ReferenceURI, "/pelvic/1") {
			t.Fatalf("reference uri = %q", one.ReferenceURI)
		}
		if !one.HasStatementBeenExported || !two.HasStatementBeenExported {
			t.Fatalf("export flag must be sticky")
		}
		popAfter, _ := tx.FindPopulationSet(pop.ID)
		if popAfter.LastUsedIndex != 2 {
			t.Fatalf("last used index = %d", popAfter.LastUsedIndex)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestExportRevertKeepsStickyFlag(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		ids := seedEntities(t, tx, "root", "target")
		cs := seedStatement(t, tx, domain.CSNPOApproved, ids[:1], ids[1:])
		if _, err := TransitionStatement(tx, cs.ID, domain.CSExported, actor, true); err != nil {
			t.Fatalf("export: %v", err)
		}
		reverted, err := TransitionStatement(tx, cs.ID, domain.CSNPOApproved, actor, true)
		if err != nil {
			t.Fatalf("revert: %v", err)
		}
		if reverted.State != domain.CSNPOApproved {
			t.Fatalf("state = %s", reverted.State)
		}
		if !reverted.HasStatementBeenExported {
			t.Fatalf("revert must preserve the export flag")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestInvalidateStatementAttachesAlertNote(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		cs := seedStatement(t, tx, domain.CSDraft, nil, nil)
		updated, err := InvalidateStatement(tx, cs.ID, []string{"unknown anatomical URI http://x"})
		if err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		if updated.State != domain.CSInvalid {
			t.Fatalf("state = %s", updated.State)
		}
		notes := tx.ListNotesForStatement(cs.ID)
		var alert *Note
		for i := range notes {
			if notes[i].Type == domain.NoteAlert {
				alert = &notes[i]
			}
		}
		if alert == nil {
			t.Fatalf("expected an alert note")
		}
		if !strings.Contains(alert.Text, "unknown anatomical URI http://x") {
			t.Fatalf("alert text = %q", alert.Text)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestTransitionBlockedLeavesStateUntouched(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	var statementID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		cs := seedStatement(t, tx, domain.CSDraft, nil, nil)
		statementID = cs.ID
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		actor := seedActor(t, tx)
		_, err := TransitionStatement(tx, statementID, domain.CSNPOApproved, actor, false)
		if err == nil {
			t.Fatalf("draft must not jump to npo_approved")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	cs, ok := store.GetConnectivityStatement(statementID)
	if !ok || cs.State != domain.CSDraft {
		t.Fatalf("blocked transition must leave state untouched, got %+v", cs)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if notes := tx.ListNotesForStatement(statementID); len(notes) != 0 {
			t.Fatalf("blocked transition must not leave notes, got %d", len(notes))
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
