package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// CurieMaps carries the population maps used to stamp curie ids: full
// imports key by reference URI, label imports by population label.
type CurieMaps struct {
	FullImports  map[string]string `json:"full_imports"`
	LabelImports map[string]string `json:"label_imports"`
}

// LoadCurieMap reads a JSON object mapping keys to curie ids.
func LoadCurieMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read curie map: %w", err)
	}
	out := map[string]string{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode curie map: %w", err)
	}
	return out, nil
}

// IngestCurieIDs stamps CurieID on every statement missing one, resolving
// through the full-import map by reference URI first, then through the
// label-import map by population name. Returns the number of statements
// stamped. Statements that already carry a curie id are never rewritten.
func IngestCurieIDs(ctx context.Context, store domain.PersistentStore, maps CurieMaps) (int, error) {
	stamped := 0
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		stamped = 0
		view := tx.Snapshot()
		for _, cs := range view.ListConnectivityStatements() {
			if cs.CurieID != "" {
				continue
			}
			curie := ""
			if cs.ReferenceURI != "" {
				curie = maps.FullImports[cs.ReferenceURI]
			}
			if curie == "" && cs.PopulationID != "" {
				if pop, ok := view.FindPopulationSet(cs.PopulationID); ok {
					curie = maps.LabelImports[pop.Name]
				}
			}
			if curie == "" {
				continue
			}
			if _, err := tx.UpdateConnectivityStatement(cs.ID, func(s *domain.ConnectivityStatement) error {
				s.CurieID = curie
				return nil
			}); err != nil {
				return err
			}
			stamped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stamped, nil
}
