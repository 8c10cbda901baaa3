package core

import (
	"sort"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// MergeStatementSchema injects the dynamic relationship fields into a
// statement form schema under "statement_triples". The merge is pure: it
// returns a new schema and never touches persistence. Fields appear in
// Relationship.Order sequence.
func MergeStatementSchema(schema map[string]any, relationships []Relationship) map[string]any {
	out := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		out[k] = v
	}

	sorted := append([]Relationship(nil), relationships...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	triples := make(map[string]any, len(sorted))
	order := make([]string, 0, len(sorted))
	for _, rel := range sorted {
		triples[rel.ID] = tripleFieldSchema(rel)
		order = append(order, rel.ID)
	}
	out["statement_triples"] = map[string]any{
		"type":       "object",
		"properties": triples,
		"ui_order":   order,
	}
	return out
}

func tripleFieldSchema(rel Relationship) map[string]any {
	switch rel.Type {
	case domain.RelationshipSingle:
		return map[string]any{"title": rel.Title, "type": []any{"string", nil}}
	case domain.RelationshipMulti:
		return map[string]any{
			"title": rel.Title,
			"type":  "array",
			"items": map[string]any{"type": "object"},
		}
	default:
		return map[string]any{"title": rel.Title, "type": "string"}
	}
}
