// Package memory provides the in-memory transactional implementation of the
// curation persistence contracts. Durable backends wrap it and persist its
// snapshots.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)
var _ domain.Transaction = (*transaction)(nil)

type (
	User                  = domain.User
	AnatomicalEntityMeta  = domain.AnatomicalEntityMeta
	AnatomicalEntity      = domain.AnatomicalEntity
	Species               = domain.Species
	BiologicalSex         = domain.BiologicalSex
	Phenotype             = domain.Phenotype
	PopulationSet         = domain.PopulationSet
	Tag                   = domain.Tag
	Provenance            = domain.Provenance
	Sentence              = domain.Sentence
	ConnectivityStatement = domain.ConnectivityStatement
	Note                  = domain.Note
	ExportBatch           = domain.ExportBatch
	Relationship          = domain.Relationship
	StatementTriple       = domain.StatementTriple
	Change                = domain.Change
	Result                = domain.Result
	RulesEngine           = domain.RulesEngine
	Transaction           = domain.Transaction
	TransactionView       = domain.TransactionView
	PersistentStore       = domain.PersistentStore
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

type memoryState struct {
	users         map[string]User
	metas         map[string]AnatomicalEntityMeta
	entities      map[string]AnatomicalEntity
	species       map[string]Species
	sexes         map[string]BiologicalSex
	phenotypes    map[string]Phenotype
	populations   map[string]PopulationSet
	tags          map[string]Tag
	provenances   map[string]Provenance
	sentences     map[string]Sentence
	statements    map[string]ConnectivityStatement
	notes         map[string]Note
	batches       map[string]ExportBatch
	relationships map[string]Relationship
	triples       map[string]StatementTriple
}

// Snapshot captures a point-in-time clone of the store state. Durable
// backends serialize it as JSON buckets.
type Snapshot struct {
	Users         map[string]User                  `json:"users"`
	Metas         map[string]AnatomicalEntityMeta  `json:"anatomical_entity_metas"`
	Entities      map[string]AnatomicalEntity      `json:"anatomical_entities"`
	Species       map[string]Species               `json:"species"`
	Sexes         map[string]BiologicalSex         `json:"biological_sexes"`
	Phenotypes    map[string]Phenotype             `json:"phenotypes"`
	Populations   map[string]PopulationSet         `json:"population_sets"`
	Tags          map[string]Tag                   `json:"tags"`
	Provenances   map[string]Provenance            `json:"provenances"`
	Sentences     map[string]Sentence              `json:"sentences"`
	Statements    map[string]ConnectivityStatement `json:"connectivity_statements"`
	Notes         map[string]Note                  `json:"notes"`
	Batches       map[string]ExportBatch           `json:"export_batches"`
	Relationships map[string]Relationship          `json:"relationships"`
	Triples       map[string]StatementTriple       `json:"statement_triples"`
}

func newMemoryState() memoryState {
	return memoryState{
		users:         make(map[string]User),
		metas:         make(map[string]AnatomicalEntityMeta),
		entities:      make(map[string]AnatomicalEntity),
		species:       make(map[string]Species),
		sexes:         make(map[string]BiologicalSex),
		phenotypes:    make(map[string]Phenotype),
		populations:   make(map[string]PopulationSet),
		tags:          make(map[string]Tag),
		provenances:   make(map[string]Provenance),
		sentences:     make(map[string]Sentence),
		statements:    make(map[string]ConnectivityStatement),
		notes:         make(map[string]Note),
		batches:       make(map[string]ExportBatch),
		relationships: make(map[string]Relationship),
		triples:       make(map[string]StatementTriple),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.metas {
		cloned.metas[k] = v
	}
	for k, v := range s.entities {
		cloned.entities[k] = cloneEntity(v)
	}
	for k, v := range s.species {
		cloned.species[k] = v
	}
	for k, v := range s.sexes {
		cloned.sexes[k] = v
	}
	for k, v := range s.phenotypes {
		cloned.phenotypes[k] = v
	}
	for k, v := range s.populations {
		cloned.populations[k] = v
	}
	for k, v := range s.tags {
		cloned.tags[k] = v
	}
	for k, v := range s.provenances {
		cloned.provenances[k] = v
	}
	for k, v := range s.sentences {
		cloned.sentences[k] = cloneSentence(v)
	}
	for k, v := range s.statements {
		cloned.statements[k] = cloneStatement(v)
	}
	for k, v := range s.notes {
		cloned.notes[k] = v
	}
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.relationships {
		cloned.relationships[k] = v
	}
	for k, v := range s.triples {
		cloned.triples[k] = cloneTriple(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Users:         cloned.users,
		Metas:         cloned.metas,
		Entities:      cloned.entities,
		Species:       cloned.species,
		Sexes:         cloned.sexes,
		Phenotypes:    cloned.phenotypes,
		Populations:   cloned.populations,
		Tags:          cloned.tags,
		Provenances:   cloned.provenances,
		Sentences:     cloned.sentences,
		Statements:    cloned.statements,
		Notes:         cloned.notes,
		Batches:       cloned.batches,
		Relationships: cloned.relationships,
		Triples:       cloned.triples,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Metas {
		state.metas[k] = v
	}
	for k, v := range s.Entities {
		state.entities[k] = cloneEntity(v)
	}
	for k, v := range s.Species {
		state.species[k] = v
	}
	for k, v := range s.Sexes {
		state.sexes[k] = v
	}
	for k, v := range s.Phenotypes {
		state.phenotypes[k] = v
	}
	for k, v := range s.Populations {
		state.populations[k] = v
	}
	for k, v := range s.Tags {
		state.tags[k] = v
	}
	for k, v := range s.Provenances {
		state.provenances[k] = v
	}
	for k, v := range s.Sentences {
		state.sentences[k] = cloneSentence(v)
	}
	for k, v := range s.Statements {
		state.statements[k] = cloneStatement(v)
	}
	for k, v := range s.Notes {
		state.notes[k] = v
	}
	for k, v := range s.Batches {
		state.batches[k] = cloneBatch(v)
	}
	for k, v := range s.Relationships {
		state.relationships[k] = v
	}
	for k, v := range s.Triples {
		state.triples[k] = cloneTriple(v)
	}
	return state
}

func cloneEntity(e AnatomicalEntity) AnatomicalEntity {
	cp := e
	cp.Synonyms = append([]string(nil), e.Synonyms...)
	return cp
}

func cloneSentence(s Sentence) Sentence {
	cp := s
	cp.TagIDs = append([]string(nil), s.TagIDs...)
	return cp
}

func cloneStatement(s ConnectivityStatement) ConnectivityStatement {
	cp := s
	cp.OriginIDs = append([]string(nil), s.OriginIDs...)
	cp.SpeciesIDs = append([]string(nil), s.SpeciesIDs...)
	cp.ForwardConnectionIDs = append([]string(nil), s.ForwardConnectionIDs...)
	cp.ProvenanceURIs = append([]string(nil), s.ProvenanceURIs...)
	cp.AlertURIs = append([]string(nil), s.AlertURIs...)
	if s.PopulationIndex != nil {
		idx := *s.PopulationIndex
		cp.PopulationIndex = &idx
	}
	if len(s.Vias) > 0 {
		cp.Vias = make([]domain.Via, len(s.Vias))
		for i, v := range s.Vias {
			cv := v
			cv.AnatomicalEntityIDs = append([]string(nil), v.AnatomicalEntityIDs...)
			cv.FromEntityIDs = append([]string(nil), v.FromEntityIDs...)
			cp.Vias[i] = cv
		}
	}
	if len(s.Destinations) > 0 {
		cp.Destinations = make([]domain.Destination, len(s.Destinations))
		for i, d := range s.Destinations {
			cd := d
			cd.AnatomicalEntityIDs = append([]string(nil), d.AnatomicalEntityIDs...)
			cd.FromEntityIDs = append([]string(nil), d.FromEntityIDs...)
			cp.Destinations[i] = cd
		}
	}
	return cp
}

func cloneBatch(b ExportBatch) ExportBatch {
	cp := b
	cp.StatementIDs = append([]string(nil), b.StatementIDs...)
	return cp
}

func cloneTriple(t StatementTriple) StatementTriple {
	cp := t
	if t.Option != nil {
		opt := *t.Option
		cp.Option = &opt
	}
	cp.Options = append([]domain.TripleOption(nil), t.Options...)
	return cp
}

// Store provides an in-memory transactional store for the curation domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Rules run at commit; blocking violations roll the copy back.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.ValidationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// GetConnectivityStatement retrieves a statement from committed state.
func (s *Store) GetConnectivityStatement(id string) (ConnectivityStatement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.state.statements[id]
	if !ok {
		return ConnectivityStatement{}, false
	}
	return cloneStatement(cs), true
}

// ListConnectivityStatements returns all statements ordered by id.
func (s *Store) ListConnectivityStatements() []ConnectivityStatement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStatements(&s.state)
}

// GetSentence retrieves a sentence from committed state.
func (s *Store) GetSentence(id string) (Sentence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sentence, ok := s.state.sentences[id]
	if !ok {
		return Sentence{}, false
	}
	return cloneSentence(sentence), true
}

// ListSentences returns all sentences ordered by id.
func (s *Store) ListSentences() []Sentence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSentences(&s.state)
}

// ListRelationships returns all relationship definitions ordered by id.
func (s *Store) ListRelationships() []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRelationships(&s.state)
}

// ListExportBatches returns all export batches ordered by id.
func (s *Store) ListExportBatches() []ExportBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExportBatch, 0, len(s.state.batches))
	for _, b := range s.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listStatements(state *memoryState) []ConnectivityStatement {
	out := make([]ConnectivityStatement, 0, len(state.statements))
	for _, cs := range state.statements {
		out = append(out, cloneStatement(cs))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listSentences(state *memoryState) []Sentence {
	out := make([]Sentence, 0, len(state.sentences))
	for _, s := range state.sentences {
		out = append(out, cloneSentence(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func listRelationships(state *memoryState) []Relationship {
	out := make([]Relationship, 0, len(state.relationships))
	for _, r := range state.relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
