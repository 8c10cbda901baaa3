package core

import (
	"context"
	"errors"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func mustChangePayload(t *testing.T, value any) domain.ChangePayload {
	t.Helper()
	payload, err := domain.NewChangePayloadFromValue(value)
	if err != nil {
		t.Fatalf("marshal change payload: %v", err)
	}
	return payload
}

func TestLifecycleRuleBlocksIllegalEdge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	rule := LifecycleTransitionRule()

	before := ConnectivityStatement{ID: "cs1", State: domain.CSDraft}
	after := ConnectivityStatement{ID: "cs1", State: domain.CSNPOApproved}

	_ = store.View(ctx, func(v domain.TransactionView) error {
		res, err := rule.Evaluate(ctx, v, []domain.Change{{
			Entity: domain.EntityConnectivityStatement,
			Action: domain.ActionUpdate,
			Before: mustChangePayload(t, before),
			After:  mustChangePayload(t, after),
		}})
		if err != nil {
			t.Fatalf("evaluate lifecycle rule: %v", err)
		}
		if len(res.Violations) == 0 {
			t.Fatalf("expected violation for draft -> npo_approved")
		}
		return nil
	})
}

func TestLifecycleRuleRestrictsStatementCreateStates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	rule := LifecycleTransitionRule()

	cases := []struct {
		state   domain.CSState
		blocked bool
	}{
		{domain.CSDraft, false},
		{domain.CSComposeNow, false},
		{domain.CSNPOApproved, true},
		{domain.CSExported, true},
	}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		for _, tc := range cases {
			created := ConnectivityStatement{ID: "cs1", State: tc.state}
			res, err := rule.Evaluate(ctx, v, []domain.Change{{
				Entity: domain.EntityConnectivityStatement,
				Action: domain.ActionCreate,
				After:  mustChangePayload(t, created),
			}})
			if err != nil {
				t.Fatalf("evaluate lifecycle rule: %v", err)
			}
			if got := len(res.Violations) > 0; got != tc.blocked {
				t.Fatalf("create in %s: blocked = %v, want %v", tc.state, got, tc.blocked)
			}
		}
		return nil
	})
}

func TestLifecycleRuleRejectsUnknownState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	rule := LifecycleTransitionRule()

	after := Sentence{ID: "s1", State: domain.SentenceState("warp")}
	_ = store.View(ctx, func(v domain.TransactionView) error {
		res, err := rule.Evaluate(ctx, v, []domain.Change{{
			Entity: domain.EntitySentence,
			Action: domain.ActionCreate,
			After:  mustChangePayload(t, after),
		}})
		if err != nil {
			t.Fatalf("evaluate lifecycle rule: %v", err)
		}
		if len(res.Violations) == 0 {
			t.Fatalf("expected violation for unknown sentence state")
		}
		return nil
	})
}

func TestPathIntegrityBlocksForeignFromEntities(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ids := seedEntities(t, tx, "origin", "hop", "end")
		_, err := tx.CreateConnectivityStatement(ConnectivityStatement{
			SentenceID: seedStatement(t, tx, domain.CSDraft, nil, nil).SentenceID,
			OriginIDs:  ids[:1],
			Vias: []Via{{
				Order:               0,
				Type:                domain.ViaAxon,
				AnatomicalEntityIDs: ids[1:2],
				FromEntityIDs:       []string{ids[2]}, // downstream id, not upstream
			}},
			Destinations: []Destination{{Type: domain.DestinationAxonT, AnatomicalEntityIDs: ids[2:]}},
		})
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPathIntegrityBlocksUnknownEntities(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		s, err := tx.CreateSentence(Sentence{Title: "s"})
		if err != nil {
			return err
		}
		_, err = tx.CreateConnectivityStatement(ConnectivityStatement{
			SentenceID:   s.ID,
			OriginIDs:    []string{"ghost"},
			Destinations: []Destination{{Type: domain.DestinationAxonT, AnatomicalEntityIDs: []string{"ghost"}}},
		})
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for unknown entity, got %v", err)
	}
}

func TestForwardConnectionBlocksDisjointEdge(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ids := seedEntities(t, tx, "a", "b", "c", "d")
		target := seedStatement(t, tx, domain.CSDraft, ids[2:3], ids[3:])
		source := seedStatement(t, tx, domain.CSDraft, ids[:1], ids[1:2])
		_, err := tx.UpdateConnectivityStatement(source.ID, func(s *ConnectivityStatement) error {
			s.ForwardConnectionIDs = []string{target.ID}
			return nil
		})
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for disjoint forward edge, got %v", err)
	}
}

func TestForwardConnectionAllowsSharedEntity(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		ids := seedEntities(t, tx, "a", "shared", "z")
		// target originates where the source terminates.
		target := seedStatement(t, tx, domain.CSDraft, ids[1:2], ids[2:])
		source := seedStatement(t, tx, domain.CSDraft, ids[:1], ids[1:2])
		_, err := tx.UpdateConnectivityStatement(source.ID, func(s *ConnectivityStatement) error {
			s.ForwardConnectionIDs = []string{target.ID}
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("valid forward edge must commit: %v", err)
	}
}

func TestEntityUniquenessBlocksDuplicateNames(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnatomicalEntity(AnatomicalEntity{Name: "Nodose Ganglion", OntologyURI: "http://purl.org/ng"})
		return err
	}); err != nil {
		t.Fatalf("seed entity: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAnatomicalEntity(AnatomicalEntity{Name: "NODOSE GANGLION", OntologyURI: "http://purl.org/ng2"})
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for duplicate upper(name), got %v", err)
	}
}

func TestEntityUniquenessBlocksMalformedPopulationName(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreatePopulationSet(PopulationSet{Name: "no spaces allowed"})
		return err
	})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for malformed population name, got %v", err)
	}
	if pops := listPopulations(ctx, store); len(pops) != 0 {
		t.Fatalf("rolled-back population still visible: %v", pops)
	}
}

func listPopulations(ctx context.Context, store PersistentStore) []PopulationSet {
	var pops []PopulationSet
	_ = store.View(ctx, func(v domain.TransactionView) error {
		pops = v.ListPopulationSets()
		return nil
	})
	return pops
}
