package domain

// SentenceState enumerates the curation workflow states of a sentence.
type SentenceState string

// Canonical sentence states. Transitions between them are governed by the
// lifecycle engine; EXCLUDED and COMPLETED have no user-reachable exits.
const (
	SentenceOpen               SentenceState = "open"
	SentenceNeedsFurtherReview SentenceState = "needs_further_review"
	SentenceComposeLater       SentenceState = "compose_later"
	SentenceReadyToCompose     SentenceState = "ready_to_compose"
	SentenceComposeNow         SentenceState = "compose_now"
	SentenceCompleted          SentenceState = "completed"
	SentenceExcluded           SentenceState = "excluded"
)

// CSState enumerates the curation workflow states of a connectivity statement.
type CSState string

// Canonical connectivity-statement states. DEPRECATED and INVALID are
// terminal; EXPORTED is entered only through the export pipeline.
const (
	CSDraft        CSState = "draft"
	CSComposeNow   CSState = "compose_now"
	CSInProgress   CSState = "in_progress"
	CSToBeReviewed CSState = "to_be_reviewed"
	CSRevise       CSState = "revise"
	CSRejected     CSState = "rejected"
	CSNPOApproved  CSState = "npo_approved"
	CSExported     CSState = "exported"
	CSDeprecated   CSState = "deprecated"
	CSInvalid      CSState = "invalid"
)

// ViaType identifies the kind of projection segment an intermediate hop covers.
type ViaType string

const (
	ViaAxon        ViaType = "AXON"
	ViaDendrite    ViaType = "DENDRITE"
	ViaSensoryAxon ViaType = "SENSORY_AXON"
)

// DestinationType identifies the kind of terminal projection segment.
type DestinationType string

const (
	DestinationAxonSE    DestinationType = "AXON-SE"
	DestinationAxonT     DestinationType = "AXON-T"
	DestinationAxonST    DestinationType = "AXON-ST"
	DestinationAfferentT DestinationType = "AFFERENT-T"
	DestinationUnknown   DestinationType = "UNKNOWN"
)

// Laterality describes the side of the body a statement applies to.
type Laterality string

const (
	LateralityLeft  Laterality = "LEFT"
	LateralityRight Laterality = "RIGHT"
)

// Projection describes the crossing behaviour of the projection.
type Projection string

const (
	ProjectionIpsi    Projection = "IPSI"
	ProjectionContrat Projection = "CONTRAT"
	ProjectionBi      Projection = "BI"
)

// CircuitType classifies the role of the neuron population in its circuit.
type CircuitType string

const (
	CircuitSensory    CircuitType = "SENSORY"
	CircuitMotor      CircuitType = "MOTOR"
	CircuitIntrinsic  CircuitType = "INTRINSIC"
	CircuitProjection CircuitType = "PROJECTION"
	CircuitAnaxonic   CircuitType = "ANAXONIC"
)

// NoteType distinguishes curator notes from system-authored ones.
type NoteType string

const (
	NotePlain NoteType = "plain"
	// NoteAlert flags a defect a curator must look at.
	NoteAlert NoteType = "alert"
	// NoteTransition records a lifecycle state change. Always system-authored.
	NoteTransition NoteType = "transition"
)

// RelationshipType selects the value shape of statement triples bound to a
// relationship definition.
type RelationshipType string

const (
	RelationshipText   RelationshipType = "text"
	RelationshipSingle RelationshipType = "single"
	RelationshipMulti  RelationshipType = "multi"
)

// EntityType identifies the kind of record stored in a persistence bucket.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	EntityUser                  EntityType = "user"
	EntityAnatomicalEntity      EntityType = "anatomical_entity"
	EntityAnatomicalEntityMeta  EntityType = "anatomical_entity_meta"
	EntitySpecies               EntityType = "species"
	EntityBiologicalSex         EntityType = "biological_sex"
	EntityPhenotype             EntityType = "phenotype"
	EntityPopulationSet         EntityType = "population_set"
	EntityTag                   EntityType = "tag"
	EntityProvenance            EntityType = "provenance"
	EntitySentence              EntityType = "sentence"
	EntityConnectivityStatement EntityType = "connectivity_statement"
	EntityNote                  EntityType = "note"
	EntityExportBatch           EntityType = "export_batch"
	EntityRelationship          EntityType = "relationship"
	EntityStatementTriple       EntityType = "statement_triple"
)

// Action identifies the kind of mutation captured in a Change record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)
