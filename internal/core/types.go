package core

import "github.com/MetaCell/sckan-composer-sub001/pkg/domain"

type (
	User                  = domain.User
	AnatomicalEntity      = domain.AnatomicalEntity
	AnatomicalEntityMeta  = domain.AnatomicalEntityMeta
	Species               = domain.Species
	BiologicalSex         = domain.BiologicalSex
	Phenotype             = domain.Phenotype
	PopulationSet         = domain.PopulationSet
	Tag                   = domain.Tag
	Provenance            = domain.Provenance
	Sentence              = domain.Sentence
	ConnectivityStatement = domain.ConnectivityStatement
	Via                   = domain.Via
	Destination           = domain.Destination
	Note                  = domain.Note
	ExportBatch           = domain.ExportBatch
	Relationship          = domain.Relationship
	StatementTriple       = domain.StatementTriple
	Change                = domain.Change
	Violation             = domain.Violation
	Result                = domain.Result
	Rule                  = domain.Rule
	RulesEngine           = domain.RulesEngine
	Transaction           = domain.Transaction
	TransactionView       = domain.TransactionView
	PersistentStore       = domain.PersistentStore
	SentenceState         = domain.SentenceState
	CSState               = domain.CSState
)

// NewRulesEngine constructs a rules engine preloaded with the curation rules
// every store must enforce at commit time.
func NewRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleTransitionRule())
	engine.Register(PathIntegrityRule())
	engine.Register(ForwardConnectionRule())
	engine.Register(EntityUniquenessRule())
	return engine
}
