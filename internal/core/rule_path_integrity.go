package core

import (
	"context"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// PathIntegrityRule blocks commits that leave a statement path malformed:
// duplicate via orders, empty hops, from_entities referencing entities not
// reachable upstream, or hop entities missing from the entity store.
func PathIntegrityRule() domain.Rule {
	return pathIntegrityRule{}
}

type pathIntegrityRule struct{}

func (pathIntegrityRule) Name() string { return "path_integrity" }

func (pathIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityConnectivityStatement || change.Action == domain.ActionDelete {
			continue
		}
		s, ok := domain.DecodeChangePayload[domain.ConnectivityStatement](change.After)
		if !ok {
			continue
		}
		// Empty paths are legal in DRAFT; the transition guards demand
		// endpoints. Orders and subset constraints hold at every state.
		orders := map[int]struct{}{}
		for _, v := range s.Vias {
			if _, dup := orders[v.Order]; dup {
				res.Violations = append(res.Violations, pathViolation(s.ID, "duplicate via order"))
				break
			}
			orders[v.Order] = struct{}{}
		}
		for _, v := range s.Vias {
			allowed := idSet(s.PathEntityIDs(v.Order))
			for _, from := range v.FromEntityIDs {
				if _, ok := allowed[from]; !ok {
					res.Violations = append(res.Violations, pathViolation(s.ID, "via from_entities outside upstream path"))
				}
			}
		}
		full := idSet(s.PathEntityIDs(-1))
		for _, d := range s.Destinations {
			for _, from := range d.FromEntityIDs {
				if _, ok := full[from]; !ok {
					res.Violations = append(res.Violations, pathViolation(s.ID, "destination from_entities outside path"))
				}
			}
		}
		for _, id := range pathReferencedEntityIDs(s) {
			if _, ok := view.FindAnatomicalEntity(id); !ok {
				res.Violations = append(res.Violations, pathViolation(s.ID, "unknown anatomical entity "+id))
			}
		}
	}
	return res, nil
}

func pathReferencedEntityIDs(s domain.ConnectivityStatement) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	add(s.OriginIDs)
	for _, v := range s.Vias {
		add(v.AnatomicalEntityIDs)
	}
	for _, d := range s.Destinations {
		add(d.AnatomicalEntityIDs)
	}
	return out
}

func pathViolation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "path_integrity",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityConnectivityStatement,
		EntityID: id,
	}
}
