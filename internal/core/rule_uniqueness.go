package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// EntityUniquenessRule enforces the entity-store uniqueness constraints:
// upper(name) on anatomical entities, the (layer, region) pair on
// composites, layer-xor-region role exclusivity on meta records, the
// (pmid, pmcid) pair on provenances, and the population-set name shape.
func EntityUniquenessRule() domain.Rule {
	return entityUniquenessRule{}
}

type entityUniquenessRule struct{}

func (entityUniquenessRule) Name() string { return "entity_uniqueness" }

func (entityUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	touched := map[domain.EntityType]bool{}
	for _, change := range changes {
		touched[change.Entity] = true
	}

	if touched[domain.EntityAnatomicalEntity] {
		names := map[string]string{}
		pairs := map[string]string{}
		layers := map[string]struct{}{}
		regions := map[string]struct{}{}
		for _, e := range view.ListAnatomicalEntities() {
			upper := strings.ToUpper(e.Name)
			if prev, dup := names[upper]; dup && prev != e.ID {
				res.Violations = append(res.Violations, uniquenessViolation(domain.EntityAnatomicalEntity, e.ID,
					fmt.Sprintf("anatomical entity name %q is not unique", e.Name)))
			}
			names[upper] = e.ID
			if e.IsComposite() {
				pair := e.LayerID + "/" + e.RegionID
				if prev, dup := pairs[pair]; dup && prev != e.ID {
					res.Violations = append(res.Violations, uniquenessViolation(domain.EntityAnatomicalEntity, e.ID,
						"layer/region pair is not unique"))
				}
				pairs[pair] = e.ID
				layers[e.LayerID] = struct{}{}
				regions[e.RegionID] = struct{}{}
			}
		}
		for id := range layers {
			if _, both := regions[id]; both {
				res.Violations = append(res.Violations, uniquenessViolation(domain.EntityAnatomicalEntityMeta, id,
					"meta record used as both layer and region"))
			}
		}
	}

	if touched[domain.EntityProvenance] {
		pairs := map[string]string{}
		for _, p := range view.ListProvenances() {
			if p.PMID == "" && p.PMCID == "" {
				continue
			}
			key := p.PMID + "/" + p.PMCID
			if prev, dup := pairs[key]; dup && prev != p.ID {
				res.Violations = append(res.Violations, uniquenessViolation(domain.EntityProvenance, p.ID,
					fmt.Sprintf("provenance pmid/pmcid pair %s is not unique", key)))
			}
			pairs[key] = p.ID
		}
	}

	if touched[domain.EntityPopulationSet] {
		names := map[string]string{}
		for _, p := range view.ListPopulationSets() {
			if !domain.ValidPopulationName(p.Name) {
				res.Violations = append(res.Violations, uniquenessViolation(domain.EntityPopulationSet, p.ID,
					fmt.Sprintf("population set name %q is malformed", p.Name)))
			}
			if prev, dup := names[p.Name]; dup && prev != p.ID {
				res.Violations = append(res.Violations, uniquenessViolation(domain.EntityPopulationSet, p.ID,
					fmt.Sprintf("population set name %q is not unique", p.Name)))
			}
			names[p.Name] = p.ID
		}
	}

	return res, nil
}

func uniquenessViolation(entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "entity_uniqueness",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}
}
