// Package domain defines the persistent entities, lifecycle states, and rule
// evaluation primitives of the connectivity-statement curation core.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxSentenceTitle is the longest title a sentence may carry.
const MaxSentenceTitle = 185

// User identifies a curator. The well-known "system" user authors transition
// and ingestion notes.
type User struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemUserLogin is the login of the bootstrap identity that authors
// system-generated notes and transitions.
const SystemUserLogin = "system"

// AnatomicalEntityMeta is a layer or region definition that composite
// anatomical entities reference. A meta record may serve as a layer or as a
// region, never both.
type AnatomicalEntityMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OntologyURI string    `json:"ontology_uri"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AnatomicalEntity is a node of the connectivity path vocabulary. A simple
// entity carries its own ontology URI; a composite entity references a layer
// and a region meta record and derives its name and URI from the pair.
type AnatomicalEntity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OntologyURI string    `json:"ontology_uri"`
	Synonyms    []string  `json:"synonyms,omitempty"`
	LayerID     string    `json:"layer_id,omitempty"`
	RegionID    string    `json:"region_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsComposite reports whether the entity is a layer/region intersection.
func (e AnatomicalEntity) IsComposite() bool {
	return e.LayerID != "" && e.RegionID != ""
}

// CompositeName derives the display name of a layer/region intersection.
func CompositeName(layer, region AnatomicalEntityMeta) string {
	return fmt.Sprintf("%s in %s", layer.Name, region.Name)
}

// CompositeURI derives the ontology URI of a layer/region intersection.
func CompositeURI(layer, region AnatomicalEntityMeta) string {
	return layer.OntologyURI + "," + region.OntologyURI
}

// Species is a name-keyed lookup entity.
type Species struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OntologyURI string    `json:"ontology_uri,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BiologicalSex is a name-keyed lookup entity.
type BiologicalSex struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OntologyURI string    `json:"ontology_uri,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Phenotype is a name-keyed lookup entity.
type Phenotype struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PopulationSet groups statements sharing a population and hands out
// monotonically increasing indices on export. Names are stored lower-cased.
type PopulationSet struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LastUsedIndex int       `json:"last_used_index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tag is a free-form label attached to sentences.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provenance records a source reference for a statement. The (pmid, pmcid)
// pair is unique when both are set.
type Provenance struct {
	ID          string    `json:"id"`
	StatementID string    `json:"statement_id"`
	URI         string    `json:"uri"`
	PMID        string    `json:"pmid,omitempty"`
	PMCID       string    `json:"pmcid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Sentence is the upstream free-text source from which statements are
// composed. Sentences are never hard-deleted.
type Sentence struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Text        string        `json:"text"`
	DOI         string        `json:"doi,omitempty"`
	PMID        string        `json:"pmid,omitempty"`
	PMCID       string        `json:"pmcid,omitempty"`
	ExternalRef string        `json:"external_ref,omitempty"`
	BatchName   string        `json:"batch_name,omitempty"`
	State       SentenceState `json:"state"`
	TagIDs      []string      `json:"tag_ids,omitempty"`
	OwnerID     string        `json:"owner_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Via is an ordered intermediate hop of a connectivity path. Order is the
// zero-based position within the statement and unique per statement.
type Via struct {
	Order               int      `json:"order"`
	Type                ViaType  `json:"type"`
	AnatomicalEntityIDs []string `json:"anatomical_entity_ids"`
	FromEntityIDs       []string `json:"from_entity_ids,omitempty"`
}

// Destination is a terminal hop of a connectivity path.
type Destination struct {
	Type                DestinationType `json:"type"`
	AnatomicalEntityIDs []string        `json:"anatomical_entity_ids"`
	FromEntityIDs       []string        `json:"from_entity_ids,omitempty"`
}

// ConnectivityStatement asserts that a neural population connects its origins
// through an ordered path of vias to one or more destinations.
type ConnectivityStatement struct {
	ID                 string `json:"id"`
	SentenceID         string `json:"sentence_id"`
	KnowledgeStatement string `json:"knowledge_statement"`

	OriginIDs    []string      `json:"origin_ids,omitempty"`
	Vias         []Via         `json:"vias,omitempty"`
	Destinations []Destination `json:"destinations,omitempty"`

	SpeciesIDs      []string    `json:"species_ids,omitempty"`
	BiologicalSexID string      `json:"biological_sex_id,omitempty"`
	PhenotypeID     string      `json:"phenotype_id,omitempty"`
	Laterality      Laterality  `json:"laterality,omitempty"`
	Projection      Projection  `json:"projection,omitempty"`
	CircuitType     CircuitType `json:"circuit_type,omitempty"`

	PopulationID    string `json:"population_id,omitempty"`
	PopulationIndex *int   `json:"population_index,omitempty"`
	ShortName       string `json:"short_name,omitempty"`
	ReferenceURI    string `json:"reference_uri,omitempty"`
	CurieID         string `json:"curie_id,omitempty"`

	State CSState `json:"state"`
	// HasStatementBeenExported is sticky: once the statement has entered
	// EXPORTED or joined an export batch it never becomes false again.
	HasStatementBeenExported bool `json:"has_statement_been_exported"`

	ForwardConnectionIDs []string `json:"forward_connection_ids,omitempty"`
	ProvenanceURIs       []string `json:"provenance_uris,omitempty"`
	AlertURIs            []string `json:"alert_uris,omitempty"`
	OwnerID              string   `json:"owner_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPath reports whether the statement has at least one origin and one
// destination with entities attached.
func (s ConnectivityStatement) HasPath() bool {
	if len(s.OriginIDs) == 0 || len(s.Destinations) == 0 {
		return false
	}
	for _, d := range s.Destinations {
		if len(d.AnatomicalEntityIDs) > 0 {
			return true
		}
	}
	return false
}

// PathEntityIDs returns the ids of every entity reachable on the statement
// path before the given via order. Order -1 covers the full path.
func (s ConnectivityStatement) PathEntityIDs(beforeOrder int) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(s.OriginIDs)
	for _, v := range s.Vias {
		if beforeOrder >= 0 && v.Order >= beforeOrder {
			continue
		}
		add(v.AnatomicalEntityIDs)
	}
	return out
}

// ExportBatch is an immutable snapshot of statements transitioned to
// EXPORTED together with the rendered CSV artifact reference.
type ExportBatch struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	StatementIDs []string  `json:"statement_ids"`
	ArtifactKey  string    `json:"artifact_key,omitempty"`
	ArtifactURL  string    `json:"artifact_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Relationship defines a user-extensible typed relation rendered as a
// statement-form field. Order drives the UI sequence.
type Relationship struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Type      RelationshipType `json:"type"`
	Order     int              `json:"order"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TripleOption is one selected value of a MULTI triple.
type TripleOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// StatementTriple binds a statement to a relationship and a value whose
// shape follows the relationship type: Text for TEXT, Option for SINGLE,
// Options for MULTI.
type StatementTriple struct {
	ID             string         `json:"id"`
	StatementID    string         `json:"statement_id"`
	RelationshipID string         `json:"relationship_id"`
	Text           string         `json:"text,omitempty"`
	Option         *string        `json:"option,omitempty"`
	Options        []TripleOption `json:"options,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Note is attached to a sentence or a statement. Transition notes are always
// system-authored.
type Note struct {
	ID          string    `json:"id"`
	SentenceID  string    `json:"sentence_id,omitempty"`
	StatementID string    `json:"statement_id,omitempty"`
	UserID      string    `json:"user_id"`
	Type        NoteType  `json:"type"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Change captures one entity mutation inside a transaction for rule
// evaluation at commit time.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Violation is a single rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule findings for a transaction.
type Result struct {
	Violations []Violation
}

// Merge appends the other result's violations.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks the commit.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// NormalizePopulationName lower-cases a population-set name for storage.
func NormalizePopulationName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var populationNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{4,24}$`)

// ValidPopulationName reports whether the name, once normalized, satisfies
// the population-set naming pattern.
func ValidPopulationName(name string) bool {
	return populationNamePattern.MatchString(NormalizePopulationName(name))
}
