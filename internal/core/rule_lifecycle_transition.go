package core

import (
	"context"
	"fmt"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// LifecycleTransitionRule blocks state writes that do not follow a permitted
// edge of the sentence or statement machine. The lifecycle engine is the only
// sanctioned writer of state; this rule is the commit-time backstop.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	entity domain.EntityType
	label  string
	valid  map[string]struct{}
	// initial restricts the states a record may be created in. Nil means
	// any valid state is acceptable at creation.
	initial   map[string]struct{}
	edges     map[string]map[string]struct{}
	extractor func(payload domain.ChangePayload) (id string, state string, ok bool)
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntitySentence: {
		entity: domain.EntitySentence,
		label:  "sentence",
		valid: toSet(
			string(domain.SentenceOpen),
			string(domain.SentenceNeedsFurtherReview),
			string(domain.SentenceComposeLater),
			string(domain.SentenceReadyToCompose),
			string(domain.SentenceComposeNow),
			string(domain.SentenceCompleted),
			string(domain.SentenceExcluded),
		),
		edges: sentenceEdgeSet(),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			s, ok := domain.DecodeChangePayload[domain.Sentence](payload)
			if !ok {
				return "", "", false
			}
			return s.ID, string(s.State), true
		},
	},
	domain.EntityConnectivityStatement: {
		entity: domain.EntityConnectivityStatement,
		label:  "connectivity statement",
		valid: toSet(
			string(domain.CSDraft),
			string(domain.CSComposeNow),
			string(domain.CSInProgress),
			string(domain.CSToBeReviewed),
			string(domain.CSRevise),
			string(domain.CSRejected),
			string(domain.CSNPOApproved),
			string(domain.CSExported),
			string(domain.CSDeprecated),
			string(domain.CSInvalid),
		),
		// Statements enter the workflow at its head; every other state is
		// only reachable through the engine's edges, so on-enter hooks like
		// the population-index assignment cannot be skipped.
		initial: toSet(
			string(domain.CSDraft),
			string(domain.CSComposeNow),
		),
		edges: statementEdgeSet(),
		extractor: func(payload domain.ChangePayload) (string, string, bool) {
			s, ok := domain.DecodeChangePayload[domain.ConnectivityStatement](payload)
			if !ok {
				return "", "", false
			}
			return s.ID, string(s.State), true
		},
	},
}

func sentenceEdgeSet() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(sentenceTransitions))
	for from, edges := range sentenceTransitions {
		set := make(map[string]struct{}, len(edges))
		for _, e := range edges {
			set[string(e.to)] = struct{}{}
		}
		out[string(from)] = set
	}
	return out
}

func statementEdgeSet() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(statementTransitions))
	for from, edges := range statementTransitions {
		set := make(map[string]struct{}, len(edges))
		for _, e := range edges {
			set[string(e.to)] = struct{}{}
		}
		out[string(from)] = set
	}
	return out
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, afterState, hasAfter := machine.extractor(change.After)
		if hasAfter {
			if _, valid := machine.valid[afterState]; !valid {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "lifecycle_transition",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s %s is set to invalid state %s", machine.label, afterID, afterState),
					Entity:   machine.entity,
					EntityID: afterID,
				})
				continue
			}
			if change.Action == domain.ActionCreate && machine.initial != nil {
				if _, permitted := machine.initial[afterState]; !permitted {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     "lifecycle_transition",
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("%s %s cannot be created in state %s", machine.label, afterID, afterState),
						Entity:   machine.entity,
						EntityID: afterID,
					})
					continue
				}
			}
		}

		beforeID, beforeState, ok := machine.extractor(change.Before)
		if !ok {
			continue
		}
		if !hasAfter || afterState == beforeState {
			continue
		}
		if _, permitted := machine.edges[beforeState][afterState]; !permitted {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move %s %s from %s to %s", machine.label, beforeID, beforeState, afterState),
				Entity:   machine.entity,
				EntityID: afterID,
			})
		}
	}
	return res, nil
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
