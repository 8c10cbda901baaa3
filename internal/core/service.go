package core

import (
	"context"
	"fmt"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// Service exposes the transactional curation operations on top of a
// persistent store. Every operation runs inside a single transaction and is
// instrumented through the configured logger, metrics recorder, tracer, and
// audit recorder.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// Option customises service construction.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithTracer attaches a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithAuditRecorder attaches an audit recorder.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(s *Service) { s.audit = audit }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  systemClock{},
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// begin starts instrumentation for one operation. The returned finish
// function must be called exactly once.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(entityID, actorID string, err error)) {
	started := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, op)
	}
	finish := func(entityID, actorID string, err error) {
		duration := time.Since(started)
		if span != nil {
			span.End(err)
		}
		if s.metrics != nil {
			s.metrics.Observe(ctx, op, err == nil, duration)
		}
		if s.audit != nil {
			entry := AuditEntry{
				Operation:  op,
				Status:     AuditStatusSuccess,
				EntityID:   entityID,
				ActorID:    actorID,
				OccurredAt: s.clock.Now(),
			}
			if err != nil {
				entry.Status = AuditStatusError
				entry.Error = err.Error()
			}
			s.audit.Record(ctx, entry)
		}
		if err != nil {
			s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		} else {
			s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
		}
	}
	return ctx, finish
}

// CreateUser persists a curator identity.
func (s *Service) CreateUser(ctx context.Context, user User) (User, Result, error) {
	ctx, finish := s.begin(ctx, "create_user")
	var created User
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateUser(user)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// FindUserByLogin resolves a curator by login.
func (s *Service) FindUserByLogin(ctx context.Context, login string) (User, bool) {
	var u User
	var found bool
	_ = s.store.View(ctx, func(view TransactionView) error {
		u, found = view.FindUserByLogin(login)
		return nil
	})
	return u, found
}

// EnsureSystemUser resolves the well-known system identity, creating it on
// first use.
func (s *Service) EnsureSystemUser(ctx context.Context) (User, error) {
	ctx, finish := s.begin(ctx, "ensure_system_user")
	var system User
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		system, err = EnsureSystemUser(tx)
		return err
	})
	finish(system.ID, "", err)
	return system, err
}

// CreateAnatomicalEntityMeta persists a layer or region definition.
func (s *Service) CreateAnatomicalEntityMeta(ctx context.Context, meta AnatomicalEntityMeta) (AnatomicalEntityMeta, Result, error) {
	ctx, finish := s.begin(ctx, "create_anatomical_entity_meta")
	var created AnatomicalEntityMeta
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateAnatomicalEntityMeta(meta)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreateAnatomicalEntity persists a path vocabulary entity. When layer and
// region references are set, the name and ontology URI are derived from the
// referenced meta records and any supplied values are ignored.
func (s *Service) CreateAnatomicalEntity(ctx context.Context, entity AnatomicalEntity) (AnatomicalEntity, Result, error) {
	ctx, finish := s.begin(ctx, "create_anatomical_entity")
	var created AnatomicalEntity
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if entity.IsComposite() {
			layer, ok := tx.FindAnatomicalEntityMeta(entity.LayerID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityAnatomicalEntityMeta, ID: entity.LayerID}
			}
			region, ok := tx.FindAnatomicalEntityMeta(entity.RegionID)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntityAnatomicalEntityMeta, ID: entity.RegionID}
			}
			entity.Name = domain.CompositeName(layer, region)
			entity.OntologyURI = domain.CompositeURI(layer, region)
		}
		var err error
		created, err = tx.CreateAnatomicalEntity(entity)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// UpdateAnatomicalEntity mutates an anatomical entity.
func (s *Service) UpdateAnatomicalEntity(ctx context.Context, id string, mutator func(*AnatomicalEntity) error) (AnatomicalEntity, Result, error) {
	ctx, finish := s.begin(ctx, "update_anatomical_entity")
	var updated AnatomicalEntity
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateAnatomicalEntity(id, mutator)
		return err
	})
	finish(id, "", err)
	return updated, res, err
}

// DeleteAnatomicalEntity removes an entity from the vocabulary and, in the
// same transaction, prunes it from every statement path that references it.
// Downstream from_entities sets are re-normalized so no statement is left
// pointing at an unreachable entity.
func (s *Service) DeleteAnatomicalEntity(ctx context.Context, id string) (Result, error) {
	ctx, finish := s.begin(ctx, "delete_anatomical_entity")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		for _, cs := range view.ListConnectivityStatements() {
			referenced := false
			for _, eid := range pathReferencedEntityIDs(cs) {
				if eid == id {
					referenced = true
					break
				}
			}
			if !referenced {
				continue
			}
			if _, err := tx.UpdateConnectivityStatement(cs.ID, func(target *ConnectivityStatement) error {
				target.DropPathEntity(id)
				return nil
			}); err != nil {
				return err
			}
		}
		return tx.DeleteAnatomicalEntity(id)
	})
	finish(id, "", err)
	return res, err
}

// CreateSpecies persists a species lookup record.
func (s *Service) CreateSpecies(ctx context.Context, sp Species) (Species, Result, error) {
	ctx, finish := s.begin(ctx, "create_species")
	var created Species
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateSpecies(sp)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreateBiologicalSex persists a biological-sex lookup record.
func (s *Service) CreateBiologicalSex(ctx context.Context, sex BiologicalSex) (BiologicalSex, Result, error) {
	ctx, finish := s.begin(ctx, "create_biological_sex")
	var created BiologicalSex
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateBiologicalSex(sex)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreatePhenotype persists a phenotype lookup record.
func (s *Service) CreatePhenotype(ctx context.Context, p Phenotype) (Phenotype, Result, error) {
	ctx, finish := s.begin(ctx, "create_phenotype")
	var created Phenotype
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePhenotype(p)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreateTag persists a tag.
func (s *Service) CreateTag(ctx context.Context, tag Tag) (Tag, Result, error) {
	ctx, finish := s.begin(ctx, "create_tag")
	var created Tag
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateTag(tag)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreatePopulationSet persists a population set. Names are lower-cased
// before storage.
func (s *Service) CreatePopulationSet(ctx context.Context, pop PopulationSet) (PopulationSet, Result, error) {
	ctx, finish := s.begin(ctx, "create_population_set")
	pop.Name = domain.NormalizePopulationName(pop.Name)
	var created PopulationSet
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePopulationSet(pop)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreateProvenance attaches a source reference to a statement.
func (s *Service) CreateProvenance(ctx context.Context, prov Provenance) (Provenance, Result, error) {
	ctx, finish := s.begin(ctx, "create_provenance")
	var created Provenance
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindConnectivityStatement(prov.StatementID); !ok {
			return domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: prov.StatementID}
		}
		var err error
		created, err = tx.CreateProvenance(prov)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// CreateSentence persists a new sentence in the OPEN state.
func (s *Service) CreateSentence(ctx context.Context, sentence Sentence) (Sentence, Result, error) {
	ctx, finish := s.begin(ctx, "create_sentence")
	var created Sentence
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateSentence(sentence)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// UpdateSentence mutates a sentence. State changes must go through
// TransitionSentence.
func (s *Service) UpdateSentence(ctx context.Context, id string, mutator func(*Sentence) error) (Sentence, Result, error) {
	ctx, finish := s.begin(ctx, "update_sentence")
	var updated Sentence
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateSentence(id, mutator)
		return err
	})
	finish(id, "", err)
	return updated, res, err
}

// TransitionSentence moves a sentence along a permitted lifecycle edge on
// behalf of the given curator.
func (s *Service) TransitionSentence(ctx context.Context, id string, to SentenceState, actorID string) (Sentence, Result, error) {
	ctx, finish := s.begin(ctx, "transition_sentence")
	var updated Sentence
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		actor, ok := tx.FindUser(actorID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: actorID}
		}
		var err error
		updated, err = TransitionSentence(tx, id, to, actor)
		return err
	})
	finish(id, actorID, err)
	return updated, res, err
}

// AddSentenceNote attaches a plain note to a sentence.
func (s *Service) AddSentenceNote(ctx context.Context, sentenceID, userID, text string) (Note, Result, error) {
	ctx, finish := s.begin(ctx, "add_sentence_note")
	var created Note
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindSentence(sentenceID); !ok {
			return domain.NotFoundError{Entity: domain.EntitySentence, ID: sentenceID}
		}
		var err error
		created, err = tx.CreateNote(Note{
			SentenceID: sentenceID,
			UserID:     userID,
			Type:       domain.NotePlain,
			Text:       text,
		})
		return err
	})
	finish(created.ID, userID, err)
	return created, res, err
}

// CreateConnectivityStatement persists a new statement in the DRAFT state.
// The path is normalized before the write.
func (s *Service) CreateConnectivityStatement(ctx context.Context, cs ConnectivityStatement) (ConnectivityStatement, Result, error) {
	ctx, finish := s.begin(ctx, "create_connectivity_statement")
	var created ConnectivityStatement
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindSentence(cs.SentenceID); !ok {
			return domain.NotFoundError{Entity: domain.EntitySentence, ID: cs.SentenceID}
		}
		var err error
		created, err = tx.CreateConnectivityStatement(cs)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// UpdateConnectivityStatement mutates a statement. State changes must go
// through TransitionStatement.
func (s *Service) UpdateConnectivityStatement(ctx context.Context, id string, mutator func(*ConnectivityStatement) error) (ConnectivityStatement, Result, error) {
	ctx, finish := s.begin(ctx, "update_connectivity_statement")
	var updated ConnectivityStatement
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateConnectivityStatement(id, mutator)
		return err
	})
	finish(id, "", err)
	return updated, res, err
}

// DeleteConnectivityStatement removes a statement that has never been
// exported. Exported statements are immutable history and must be deprecated
// instead.
func (s *Service) DeleteConnectivityStatement(ctx context.Context, id string) (Result, error) {
	ctx, finish := s.begin(ctx, "delete_connectivity_statement")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		cs, ok := tx.FindConnectivityStatement(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: id}
		}
		if cs.HasStatementBeenExported {
			return fmt.Errorf("statement %s has been exported and cannot be deleted", id)
		}
		return tx.DeleteConnectivityStatement(id)
	})
	finish(id, "", err)
	return res, err
}

// TransitionStatement moves a statement along a permitted lifecycle edge on
// behalf of the given curator. System-only edges are rejected here; pipelines
// use the lifecycle engine directly.
func (s *Service) TransitionStatement(ctx context.Context, id string, to CSState, actorID string) (ConnectivityStatement, Result, error) {
	ctx, finish := s.begin(ctx, "transition_statement")
	var updated ConnectivityStatement
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		actor, ok := tx.FindUser(actorID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: actorID}
		}
		var err error
		updated, err = TransitionStatement(tx, id, to, actor, false)
		return err
	})
	finish(id, actorID, err)
	return updated, res, err
}

// AssignStatementOwner sets the owning curator of a statement.
func (s *Service) AssignStatementOwner(ctx context.Context, id, ownerID string) (ConnectivityStatement, Result, error) {
	ctx, finish := s.begin(ctx, "assign_statement_owner")
	var updated ConnectivityStatement
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindUser(ownerID); !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: ownerID}
		}
		var err error
		updated, err = tx.UpdateConnectivityStatement(id, func(cs *ConnectivityStatement) error {
			cs.OwnerID = ownerID
			return nil
		})
		return err
	})
	finish(id, ownerID, err)
	return updated, res, err
}

// AddStatementNote attaches a plain note to a statement.
func (s *Service) AddStatementNote(ctx context.Context, statementID, userID, text string) (Note, Result, error) {
	ctx, finish := s.begin(ctx, "add_statement_note")
	var created Note
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindConnectivityStatement(statementID); !ok {
			return domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: statementID}
		}
		var err error
		created, err = tx.CreateNote(Note{
			StatementID: statementID,
			UserID:      userID,
			Type:        domain.NotePlain,
			Text:        text,
		})
		return err
	})
	finish(created.ID, userID, err)
	return created, res, err
}

// ListStatementNotes returns the notes attached to a statement.
func (s *Service) ListStatementNotes(ctx context.Context, statementID string) ([]Note, error) {
	var notes []Note
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, n := range view.ListNotes() {
			if n.StatementID == statementID {
				notes = append(notes, n)
			}
		}
		return nil
	})
	return notes, err
}

// ListSentenceNotes returns the notes attached to a sentence.
func (s *Service) ListSentenceNotes(ctx context.Context, sentenceID string) ([]Note, error) {
	var notes []Note
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, n := range view.ListNotes() {
			if n.SentenceID == sentenceID {
				notes = append(notes, n)
			}
		}
		return nil
	})
	return notes, err
}

// CreateRelationship persists a dynamic relationship definition.
func (s *Service) CreateRelationship(ctx context.Context, rel Relationship) (Relationship, Result, error) {
	ctx, finish := s.begin(ctx, "create_relationship")
	var created Relationship
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateRelationship(rel)
		return err
	})
	finish(created.ID, "", err)
	return created, res, err
}

// UpdateRelationship mutates a relationship definition.
func (s *Service) UpdateRelationship(ctx context.Context, id string, mutator func(*Relationship) error) (Relationship, Result, error) {
	ctx, finish := s.begin(ctx, "update_relationship")
	var updated Relationship
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateRelationship(id, mutator)
		return err
	})
	finish(id, "", err)
	return updated, res, err
}

// DeleteRelationship removes a relationship definition together with every
// triple bound to it.
func (s *Service) DeleteRelationship(ctx context.Context, id string) (Result, error) {
	ctx, finish := s.begin(ctx, "delete_relationship")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		view := tx.Snapshot()
		for _, triple := range view.ListStatementTriples() {
			if triple.RelationshipID != id {
				continue
			}
			if err := tx.DeleteStatementTriple(triple.ID); err != nil {
				return err
			}
		}
		return tx.DeleteRelationship(id)
	})
	finish(id, "", err)
	return res, err
}

// SetStatementTriple upserts the triple binding a statement to a
// relationship. The value shape must match the relationship type: Text for
// TEXT, Option for SINGLE, Options for MULTI.
func (s *Service) SetStatementTriple(ctx context.Context, triple StatementTriple) (StatementTriple, Result, error) {
	ctx, finish := s.begin(ctx, "set_statement_triple")
	var stored StatementTriple
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindConnectivityStatement(triple.StatementID); !ok {
			return domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: triple.StatementID}
		}
		view := tx.Snapshot()
		var rel Relationship
		found := false
		for _, r := range view.ListRelationships() {
			if r.ID == triple.RelationshipID {
				rel = r
				found = true
				break
			}
		}
		if !found {
			return domain.NotFoundError{Entity: domain.EntityRelationship, ID: triple.RelationshipID}
		}
		if err := validateTripleShape(rel, triple); err != nil {
			return err
		}
		for _, existing := range tx.ListTriplesForStatement(triple.StatementID) {
			if existing.RelationshipID != triple.RelationshipID {
				continue
			}
			var err error
			stored, err = tx.UpdateStatementTriple(existing.ID, func(t *StatementTriple) error {
				t.Text = triple.Text
				t.Option = triple.Option
				t.Options = triple.Options
				return nil
			})
			return err
		}
		var err error
		stored, err = tx.CreateStatementTriple(triple)
		return err
	})
	finish(stored.ID, "", err)
	return stored, res, err
}

func validateTripleShape(rel Relationship, triple StatementTriple) error {
	switch rel.Type {
	case domain.RelationshipText:
		if triple.Option != nil || len(triple.Options) > 0 {
			return domain.IntegrityError{Entity: domain.EntityStatementTriple,
				Message: fmt.Sprintf("relationship %s takes free text", rel.ID)}
		}
	case domain.RelationshipSingle:
		if triple.Text != "" || len(triple.Options) > 0 {
			return domain.IntegrityError{Entity: domain.EntityStatementTriple,
				Message: fmt.Sprintf("relationship %s takes a single option", rel.ID)}
		}
	case domain.RelationshipMulti:
		if triple.Text != "" || triple.Option != nil {
			return domain.IntegrityError{Entity: domain.EntityStatementTriple,
				Message: fmt.Sprintf("relationship %s takes an option list", rel.ID)}
		}
	}
	return nil
}

// StatementFormSchema merges the configured relationships into the base
// statement form schema.
func (s *Service) StatementFormSchema(ctx context.Context, base map[string]any) (map[string]any, error) {
	var rels []Relationship
	err := s.store.View(ctx, func(view TransactionView) error {
		rels = view.ListRelationships()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return MergeStatementSchema(base, rels), nil
}

// GetSentence fetches a sentence by id.
func (s *Service) GetSentence(id string) (Sentence, bool) {
	return s.store.GetSentence(id)
}

// GetConnectivityStatement fetches a statement by id.
func (s *Service) GetConnectivityStatement(id string) (ConnectivityStatement, bool) {
	return s.store.GetConnectivityStatement(id)
}

// ListConnectivityStatements returns every statement.
func (s *Service) ListConnectivityStatements() []ConnectivityStatement {
	return s.store.ListConnectivityStatements()
}

// ListSentences returns every sentence.
func (s *Service) ListSentences() []Sentence {
	return s.store.ListSentences()
}

// ListRelationships returns every relationship definition.
func (s *Service) ListRelationships() []Relationship {
	return s.store.ListRelationships()
}
