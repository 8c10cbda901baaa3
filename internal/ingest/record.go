// Package ingest implements the idempotent neurondm import pipeline: sentence
// materialization, anatomical entity resolution, statement upsert keyed by
// (sentence, reference URI), path reconstruction, and forward-connection
// reconciliation. Each record runs in its own transaction.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
)

// EntityRef references an anatomical entity by ontology URI. A layer/region
// pair denotes a composite (intersection) entity.
type EntityRef struct {
	URI       string `json:"uri,omitempty"`
	Name      string `json:"name,omitempty"`
	LayerURI  string `json:"layer_uri,omitempty"`
	RegionURI string `json:"region_uri,omitempty"`
}

// IsComposite reports whether the reference names a layer/region pair.
func (r EntityRef) IsComposite() bool {
	return r.LayerURI != "" && r.RegionURI != ""
}

func (r EntityRef) String() string {
	if r.IsComposite() {
		return r.LayerURI + "," + r.RegionURI
	}
	return r.URI
}

// ViaRecord is one ordered intermediate hop as exported by neurondm. Hop
// order is the slice position.
type ViaRecord struct {
	Type     string      `json:"type,omitempty"`
	Entities []EntityRef `json:"anatomical_entities"`
}

// DestinationRecord is one terminal hop.
type DestinationRecord struct {
	Type     string      `json:"type,omitempty"`
	Entities []EntityRef `json:"anatomical_entities"`
}

// StatementRecord is one knowledge statement from the external neuron-data
// package. ID is the statement's reference URI.
type StatementRecord struct {
	ID                 string              `json:"id"`
	Label              string              `json:"label"`
	DOI                string              `json:"doi,omitempty"`
	SentenceNumbers    []string            `json:"sentence_number,omitempty"`
	Origins            []EntityRef         `json:"origins"`
	Vias               []ViaRecord         `json:"vias,omitempty"`
	Destinations       []DestinationRecord `json:"destinations"`
	Species            []string            `json:"species,omitempty"`
	Sex                string              `json:"sex,omitempty"`
	CircuitType        string              `json:"circuit_type,omitempty"`
	Laterality         string              `json:"laterality,omitempty"`
	Projection         string              `json:"projection,omitempty"`
	Phenotype          string              `json:"phenotype,omitempty"`
	Population         string              `json:"population,omitempty"`
	ForwardConnections []string            `json:"forward_connection,omitempty"`
	ProvenanceURIs     []string            `json:"provenance,omitempty"`
	AlertURIs          []string            `json:"alert_uris,omitempty"`
}

// LoadRecords reads a JSON array of statement records from path.
func LoadRecords(path string) ([]StatementRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read statement records: %w", err)
	}
	var records []StatementRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode statement records: %w", err)
	}
	return records, nil
}
