// Package export implements the export batch runner: a single transaction
// moving approved statements to EXPORTED with gap-free population indices,
// followed by CSV artifact emission to a blob store.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/MetaCell/sckan-composer-sub001/internal/core"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// csvHeader is the stable export column set. Renderers must not reorder it.
var csvHeader = []string{
	"composer_uri",
	"reference_uri",
	"curie_id",
	"short_name",
	"state",
	"laterality",
	"projection",
	"circuit_type",
	"sex",
	"species",
	"phenotype",
	"population",
	"population_index",
	"origins",
	"path",
	"destinations",
	"forward_connections",
	"provenance_uris",
	"knowledge_statement",
	"owner",
}

// EscapeNewlines protects free-text cells: backslashes are doubled and
// newlines become the literal two characters \n.
func EscapeNewlines(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

const multiValueSeparator = "; "

// RenderCSV renders the statements as the export CSV, resolving names
// through the supplied view.
func RenderCSV(view domain.TransactionView, statements []domain.ConnectivityStatement) ([]byte, error) {
	lookups := newLookupIndex(view)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, cs := range statements {
		if err := w.Write(lookups.row(cs)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type lookupIndex struct {
	view        domain.TransactionView
	speciesByID map[string]domain.Species
	sexesByID   map[string]domain.BiologicalSex
	phenosByID  map[string]domain.Phenotype
}

func newLookupIndex(view domain.TransactionView) lookupIndex {
	idx := lookupIndex{
		view:        view,
		speciesByID: map[string]domain.Species{},
		sexesByID:   map[string]domain.BiologicalSex{},
		phenosByID:  map[string]domain.Phenotype{},
	}
	for _, sp := range view.ListSpecies() {
		idx.speciesByID[sp.ID] = sp
	}
	for _, sx := range view.ListBiologicalSexes() {
		idx.sexesByID[sx.ID] = sx
	}
	for _, ph := range view.ListPhenotypes() {
		idx.phenosByID[ph.ID] = ph
	}
	return idx
}

func (l lookupIndex) row(cs domain.ConnectivityStatement) []string {
	populationName := ""
	if cs.PopulationID != "" {
		if pop, ok := l.view.FindPopulationSet(cs.PopulationID); ok {
			populationName = pop.Name
		}
	}
	populationIndex := ""
	if cs.PopulationIndex != nil {
		populationIndex = fmt.Sprintf("%d", *cs.PopulationIndex)
	}
	return []string{
		core.ComposerURI(cs.ID),
		cs.ReferenceURI,
		cs.CurieID,
		EscapeNewlines(cs.ShortName),
		string(cs.State),
		string(cs.Laterality),
		string(cs.Projection),
		string(cs.CircuitType),
		EscapeNewlines(l.sexName(cs.BiologicalSexID)),
		EscapeNewlines(l.speciesNames(cs.SpeciesIDs)),
		EscapeNewlines(l.phenotypeName(cs.PhenotypeID)),
		EscapeNewlines(populationName),
		populationIndex,
		EscapeNewlines(l.entityCells(cs.OriginIDs)),
		EscapeNewlines(l.pathCells(cs.Vias)),
		EscapeNewlines(l.destinationCells(cs.Destinations)),
		l.forwardConnectionCells(cs.ForwardConnectionIDs),
		strings.Join(cs.ProvenanceURIs, multiValueSeparator),
		EscapeNewlines(cs.KnowledgeStatement),
		EscapeNewlines(l.ownerName(cs.OwnerID)),
	}
}

func (l lookupIndex) speciesNames(ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if sp, ok := l.speciesByID[id]; ok {
			names = append(names, sp.Name)
		}
	}
	return strings.Join(names, multiValueSeparator)
}

func (l lookupIndex) sexName(id string) string {
	if sx, ok := l.sexesByID[id]; ok {
		return sx.Name
	}
	return ""
}

func (l lookupIndex) phenotypeName(id string) string {
	if ph, ok := l.phenosByID[id]; ok {
		return ph.Name
	}
	return ""
}

func (l lookupIndex) ownerName(id string) string {
	if id == "" {
		return ""
	}
	if u, ok := l.view.FindUser(id); ok {
		return strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	return ""
}

// entityCells renders "name (uri)" entries joined by the multi-value
// separator.
func (l lookupIndex) entityCells(ids []string) string {
	entries := make([]string, 0, len(ids))
	for _, id := range ids {
		if e, ok := l.view.FindAnatomicalEntity(id); ok {
			entries = append(entries, fmt.Sprintf("%s (%s)", e.Name, e.OntologyURI))
		}
	}
	return strings.Join(entries, multiValueSeparator)
}

// pathCells renders the ordered hops as "name (uri) [TYPE]" entries.
func (l lookupIndex) pathCells(vias []domain.Via) string {
	var entries []string
	for _, v := range vias {
		for _, id := range v.AnatomicalEntityIDs {
			if e, ok := l.view.FindAnatomicalEntity(id); ok {
				entries = append(entries, fmt.Sprintf("%s (%s) [%s]", e.Name, e.OntologyURI, v.Type))
			}
		}
	}
	return strings.Join(entries, multiValueSeparator)
}

func (l lookupIndex) destinationCells(destinations []domain.Destination) string {
	var entries []string
	for _, d := range destinations {
		for _, id := range d.AnatomicalEntityIDs {
			if e, ok := l.view.FindAnatomicalEntity(id); ok {
				entries = append(entries, fmt.Sprintf("%s (%s) [%s]", e.Name, e.OntologyURI, d.Type))
			}
		}
	}
	return strings.Join(entries, multiValueSeparator)
}

func (l lookupIndex) forwardConnectionCells(ids []string) string {
	uris := make([]string, 0, len(ids))
	for _, id := range ids {
		uris = append(uris, core.ComposerURI(id))
	}
	return strings.Join(uris, multiValueSeparator)
}
