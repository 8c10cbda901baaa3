package domain

import "context"

// Transaction exposes the domain operations a persistence implementation must
// support within an atomic scope. Updates take mutator functions so the store
// controls cloning and timestamping.
type Transaction interface {
	Snapshot() TransactionView

	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	FindUser(id string) (User, bool)
	FindUserByLogin(login string) (User, bool)

	CreateAnatomicalEntityMeta(AnatomicalEntityMeta) (AnatomicalEntityMeta, error)
	FindAnatomicalEntityMeta(id string) (AnatomicalEntityMeta, bool)
	FindAnatomicalEntityMetaByName(name string) (AnatomicalEntityMeta, bool)

	CreateAnatomicalEntity(AnatomicalEntity) (AnatomicalEntity, error)
	UpdateAnatomicalEntity(id string, mutator func(*AnatomicalEntity) error) (AnatomicalEntity, error)
	DeleteAnatomicalEntity(id string) error
	FindAnatomicalEntity(id string) (AnatomicalEntity, bool)
	FindAnatomicalEntityByName(name string) (AnatomicalEntity, bool)
	FindAnatomicalEntityByURI(uri string) (AnatomicalEntity, bool)

	CreateSpecies(Species) (Species, error)
	FindSpeciesByName(name string) (Species, bool)
	CreateBiologicalSex(BiologicalSex) (BiologicalSex, error)
	FindBiologicalSexByName(name string) (BiologicalSex, bool)
	CreatePhenotype(Phenotype) (Phenotype, error)
	FindPhenotypeByName(name string) (Phenotype, bool)
	CreateTag(Tag) (Tag, error)
	FindTagByName(name string) (Tag, bool)

	CreatePopulationSet(PopulationSet) (PopulationSet, error)
	UpdatePopulationSet(id string, mutator func(*PopulationSet) error) (PopulationSet, error)
	FindPopulationSet(id string) (PopulationSet, bool)
	FindPopulationSetByName(name string) (PopulationSet, bool)

	CreateProvenance(Provenance) (Provenance, error)

	CreateSentence(Sentence) (Sentence, error)
	UpdateSentence(id string, mutator func(*Sentence) error) (Sentence, error)
	FindSentence(id string) (Sentence, bool)
	FindSentenceByDOI(doi string) (Sentence, bool)
	// SetSentenceState writes a sentence state directly. Reserved for the
	// lifecycle engine; regular updates must not touch State.
	SetSentenceState(id string, state SentenceState) (Sentence, error)

	CreateConnectivityStatement(ConnectivityStatement) (ConnectivityStatement, error)
	UpdateConnectivityStatement(id string, mutator func(*ConnectivityStatement) error) (ConnectivityStatement, error)
	DeleteConnectivityStatement(id string) error
	FindConnectivityStatement(id string) (ConnectivityStatement, bool)
	// FindStatementBySentenceAndReference resolves the statement carrying
	// the reference URI on the sentence, preferring a live statement over
	// superseded terminal ones.
	FindStatementBySentenceAndReference(sentenceID, referenceURI string) (ConnectivityStatement, bool)
	ListStatementsBySentence(sentenceID string) []ConnectivityStatement
	ListStatementsByState(state CSState) []ConnectivityStatement
	// SetStatementState writes a statement state directly. Reserved for the
	// lifecycle engine; regular updates must not touch State.
	SetStatementState(id string, state CSState) (ConnectivityStatement, error)

	CreateNote(Note) (Note, error)
	ListNotesForSentence(sentenceID string) []Note
	ListNotesForStatement(statementID string) []Note

	CreateExportBatch(ExportBatch) (ExportBatch, error)
	SetExportBatchArtifact(id, key, url string) (ExportBatch, error)

	CreateRelationship(Relationship) (Relationship, error)
	UpdateRelationship(id string, mutator func(*Relationship) error) (Relationship, error)
	DeleteRelationship(id string) error
	CreateStatementTriple(StatementTriple) (StatementTriple, error)
	UpdateStatementTriple(id string, mutator func(*StatementTriple) error) (StatementTriple, error)
	DeleteStatementTriple(id string) error
	ListTriplesForStatement(statementID string) []StatementTriple
}

// TransactionView provides read-only access to snapshot data for rules and
// service reads.
type TransactionView interface {
	RuleView

	ListUsers() []User
	FindUser(id string) (User, bool)
	FindUserByLogin(login string) (User, bool)
	ListSpecies() []Species
	ListBiologicalSexes() []BiologicalSex
	ListPhenotypes() []Phenotype
	ListTags() []Tag
	FindPopulationSet(id string) (PopulationSet, bool)
	ListRelationships() []Relationship
	ListStatementTriples() []StatementTriple
	ListNotes() []Note
	ListExportBatches() []ExportBatch
	FindExportBatch(id string) (ExportBatch, bool)
	FindAnatomicalEntityMeta(id string) (AnatomicalEntityMeta, bool)
	// FindStatementBySentenceAndReference resolves the statement carrying
	// the reference URI on the sentence, preferring a live statement over
	// superseded terminal ones.
	FindStatementBySentenceAndReference(sentenceID, referenceURI string) (ConnectivityStatement, bool)
	ListStatementsBySentence(sentenceID string) []ConnectivityStatement
	ListStatementsByState(state CSState) []ConnectivityStatement
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetConnectivityStatement(id string) (ConnectivityStatement, bool)
	ListConnectivityStatements() []ConnectivityStatement
	GetSentence(id string) (Sentence, bool)
	ListSentences() []Sentence
	ListRelationships() []Relationship
	ListExportBatches() []ExportBatch
}
