package core

import (
	"context"
	"fmt"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// ForwardConnectionRule rejects commits that introduce a forward-connection
// edge s -> s' where no destination entity of s is an origin of s'. The
// graph may contain cycles; only the written statement's outgoing edges are
// inspected, never the transitive closure.
func ForwardConnectionRule() domain.Rule {
	return forwardConnectionRule{}
}

type forwardConnectionRule struct{}

func (forwardConnectionRule) Name() string { return "forward_connection" }

func (forwardConnectionRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityConnectivityStatement || change.Action == domain.ActionDelete {
			continue
		}
		s, ok := domain.DecodeChangePayload[domain.ConnectivityStatement](change.After)
		if !ok {
			continue
		}
		for _, targetID := range s.ForwardConnectionIDs {
			target, found := view.FindConnectivityStatement(targetID)
			if !found {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "forward_connection",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("statement %s forwards to unknown statement %s", s.ID, targetID),
					Entity:   domain.EntityConnectivityStatement,
					EntityID: s.ID,
				})
				continue
			}
			if !forwardEdgeValid(s, target) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "forward_connection",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("statement %s forwards to %s without a shared destination/origin entity", s.ID, targetID),
					Entity:   domain.EntityConnectivityStatement,
					EntityID: s.ID,
				})
			}
		}
	}
	return res, nil
}
