package ingest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/internal/core"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// Pipeline ingests neurondm statement records. Re-running the pipeline over
// unchanged input produces no new statements and no new transition notes.
type Pipeline struct {
	store          domain.PersistentStore
	logger         core.Logger
	nowFn          func() time.Time
	anomalyLog     *AnomalyLog
	ingestedLog    *IngestedLog
	updateUpstream bool
	updateEntities bool
}

// Option customises pipeline construction.
type Option func(*Pipeline)

// WithLogger overrides the pipeline logger.
func WithLogger(logger core.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the pipeline clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.nowFn = now
		}
	}
}

// WithAnomalyLog attaches a CSV anomaly sink.
func WithAnomalyLog(log *AnomalyLog) Option {
	return func(p *Pipeline) { p.anomalyLog = log }
}

// WithIngestedLog attaches a CSV success sink.
func WithIngestedLog(log *IngestedLog) Option {
	return func(p *Pipeline) { p.ingestedLog = log }
}

// WithUpdateUpstream demotes approved or exported forward targets to
// IN_PROGRESS when the ingested statement's path shape changed.
func WithUpdateUpstream(enabled bool) Option {
	return func(p *Pipeline) { p.updateUpstream = enabled }
}

// WithUpdateAnatomicalEntities rewrites simple entities whose name parses as
// "{layer} in {region}" into layer/region composites when the metas exist.
func WithUpdateAnatomicalEntities(enabled bool) Option {
	return func(p *Pipeline) { p.updateEntities = enabled }
}

// NewPipeline constructs an ingestion pipeline over the supplied store.
func NewPipeline(store domain.PersistentStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: core.NopLogger(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Summary aggregates the outcome of one pipeline run.
type Summary struct {
	Processed   int
	Created     int
	Updated     int
	Unchanged   int
	Invalidated int
	Failed      int
	Anomalies   int
}

// Run ingests every record, one transaction per record. A failing record is
// logged and counted; it never aborts the run.
func (p *Pipeline) Run(ctx context.Context, records []StatementRecord) (Summary, error) {
	var summary Summary
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		out, anomalies, err := p.ingestRecord(ctx, rec)
		summary.Processed++
		summary.Anomalies += len(anomalies)
		if logErr := p.anomalyLog.Append(anomalies...); logErr != nil {
			p.logger.Error("anomaly log append failed", "error", logErr)
		}
		if err != nil {
			summary.Failed++
			p.logger.Error("record ingestion failed", "reference_uri", rec.ID, "error", err)
			continue
		}
		switch {
		case out.invalidated:
			summary.Invalidated++
		case out.created:
			summary.Created++
		case out.updated:
			summary.Updated++
		default:
			summary.Unchanged++
		}
		if !out.invalidated {
			if logErr := p.ingestedLog.Append(out.statementID, rec.ID); logErr != nil {
				p.logger.Error("ingested log append failed", "error", logErr)
			}
		}
		p.logger.Debug("record ingested", "reference_uri", rec.ID,
			"statement_id", out.statementID, "anomalies", len(anomalies))
	}
	return summary, nil
}

type recordOutcome struct {
	statementID string
	created     bool
	updated     bool
	invalidated bool
}

func (p *Pipeline) ingestRecord(ctx context.Context, rec StatementRecord) (recordOutcome, []domain.IngestionAnomaly, error) {
	if rec.ID == "" {
		return recordOutcome{}, []domain.IngestionAnomaly{{Message: "record has no reference URI"}}, fmt.Errorf("record has no reference URI")
	}
	var out recordOutcome
	var anomalies []domain.IngestionAnomaly
	_, err := p.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		out = recordOutcome{}
		anomalies = nil
		var hardReasons []string
		anomaly := func(entityID, msg string) {
			anomalies = append(anomalies, domain.IngestionAnomaly{
				StatementID: rec.ID, EntityID: entityID, Message: msg,
			})
		}
		hard := func(entityID, msg string) {
			anomaly(entityID, msg)
			hardReasons = append(hardReasons, msg)
		}

		sentence, err := p.materializeSentence(tx, rec, anomaly)
		if err != nil {
			return err
		}

		resolver := newEntityResolver(tx)
		originIDs := resolver.resolveSet(rec.Origins, hard)
		if len(originIDs) == 0 {
			hardReasons = append(hardReasons, "statement has no resolvable origins")
		}

		vias := make([]domain.Via, 0, len(rec.Vias))
		prev := originIDs
		for i, v := range rec.Vias {
			ids := resolver.resolveSet(v.Entities, hard)
			vt, known := viaTypeOf(v.Type)
			if !known {
				anomaly("", fmt.Sprintf("unknown via type %q", v.Type))
			}
			vias = append(vias, domain.Via{
				Order:               i,
				Type:                vt,
				AnatomicalEntityIDs: ids,
				FromEntityIDs:       prev,
			})
			if len(ids) > 0 {
				prev = ids
			}
		}

		destinations := make([]domain.Destination, 0, len(rec.Destinations))
		resolvedDest := false
		for _, d := range rec.Destinations {
			ids := resolver.resolveSet(d.Entities, hard)
			dt, known := destinationTypeOf(d.Type)
			if !known {
				anomaly("", fmt.Sprintf("unknown destination type %q", d.Type))
			}
			destinations = append(destinations, domain.Destination{
				Type:                dt,
				AnatomicalEntityIDs: ids,
				FromEntityIDs:       prev,
			})
			if len(ids) > 0 {
				resolvedDest = true
			}
		}
		if !resolvedDest {
			hardReasons = append(hardReasons, "statement has no resolvable destinations")
		}

		speciesIDs := p.resolveSpecies(tx, rec.Species)
		sexID := p.resolveSex(tx, rec.Sex)
		phenotypeID := p.resolvePhenotype(tx, rec.Phenotype)
		populationID := p.resolvePopulation(tx, rec.Population, anomaly)
		laterality, projection, circuit := attributeValues(rec, anomaly)

		prior, exists := tx.FindStatementBySentenceAndReference(sentence.ID, rec.ID)
		wasExported := exists && prior.State == domain.CSExported
		if wasExported {
			if err := p.deprecateExported(tx, prior.ID); err != nil {
				return err
			}
			prior.State = domain.CSDeprecated
		}
		terminalPrior := exists &&
			(prior.State == domain.CSDeprecated || prior.State == domain.CSInvalid)

		content := domain.ConnectivityStatement{
			SentenceID:         sentence.ID,
			ReferenceURI:       rec.ID,
			KnowledgeStatement: rec.Label,
			OriginIDs:          originIDs,
			Vias:               vias,
			Destinations:       destinations,
			SpeciesIDs:         speciesIDs,
			BiologicalSexID:    sexID,
			PhenotypeID:        phenotypeID,
			Laterality:         laterality,
			Projection:         projection,
			CircuitType:        circuit,
			PopulationID:       populationID,
			ProvenanceURIs:     rec.ProvenanceURIs,
			AlertURIs:          rec.AlertURIs,
		}
		content.NormalizePath()
		content.ForwardConnectionIDs = p.reconcileForwardConnections(tx, rec, content, anomaly)

		var cs domain.ConnectivityStatement
		pathChanged := false
		switch {
		case !exists:
			cs, err = tx.CreateConnectivityStatement(content)
			if err != nil {
				return err
			}
			out.created = true
		case !wasExported && statementContentEqual(prior, content):
			// Unchanged input: leave the stored statement untouched, even a
			// terminal one.
			cs = prior
		case terminalPrior:
			// A superseded or terminal prior stays as history; the reference
			// continues with a fresh statement.
			cs, err = tx.CreateConnectivityStatement(content)
			if err != nil {
				return err
			}
			out.created = true
		default:
			pathChanged = !pathEqual(prior, content)
			cs, err = tx.UpdateConnectivityStatement(prior.ID, func(s *domain.ConnectivityStatement) error {
				applyIngestedFields(s, content)
				return nil
			})
			if err != nil {
				return err
			}
			out.updated = true
		}
		out.statementID = cs.ID

		if len(hardReasons) > 0 {
			if cs.State != domain.CSInvalid && cs.State != domain.CSDeprecated {
				if _, err := core.InvalidateStatement(tx, cs.ID, hardReasons); err != nil {
					return err
				}
			}
			out.invalidated = true
		}

		if p.updateUpstream && pathChanged {
			if err := p.demoteForwardTargets(tx, cs); err != nil {
				return err
			}
		}
		if p.updateEntities {
			for _, id := range resolver.simpleIDs {
				p.upgradeToComposite(tx, id, anomaly)
			}
		}
		return nil
	})
	if err != nil {
		return recordOutcome{}, anomalies, err
	}
	return out, anomalies, nil
}

// materializeSentence resolves the owning sentence: by an already-ingested
// statement with the same reference URI, by case-insensitive DOI, or by
// creating a new COMPOSE_NOW sentence stamped with the ingestion batch.
func (p *Pipeline) materializeSentence(tx domain.Transaction, rec StatementRecord, anomaly func(entityID, msg string)) (domain.Sentence, error) {
	for _, cs := range tx.Snapshot().ListConnectivityStatements() {
		if cs.ReferenceURI == rec.ID {
			if s, ok := tx.FindSentence(cs.SentenceID); ok {
				return s, nil
			}
		}
	}
	if s, ok := tx.FindSentenceByDOI(rec.DOI); ok {
		return s, nil
	}
	if len(rec.SentenceNumbers) > 1 {
		anomaly("", fmt.Sprintf("record carries %d sentence numbers, using the first", len(rec.SentenceNumbers)))
	}
	now := p.nowFn().UTC().Format("2006-01-02 15:04:05")
	title := rec.Label + " created from neurondm on " + now
	if len(title) > domain.MaxSentenceTitle {
		title = title[:domain.MaxSentenceTitle]
	}
	s := domain.Sentence{
		Title:     title,
		Text:      rec.Label,
		DOI:       rec.DOI,
		BatchName: "neurondm-" + now,
		State:     domain.SentenceComposeNow,
	}
	if len(rec.SentenceNumbers) > 0 {
		s.ExternalRef = rec.SentenceNumbers[0]
	}
	return tx.CreateSentence(s)
}

// deprecateExported supersedes an exported prior statement: DEPRECATED
// through the engine plus an alert note.
func (p *Pipeline) deprecateExported(tx domain.Transaction, id string) error {
	system, err := core.EnsureSystemUser(tx)
	if err != nil {
		return err
	}
	if _, err := core.TransitionStatement(tx, id, domain.CSDeprecated, system, true); err != nil {
		return err
	}
	_, err = tx.CreateNote(domain.Note{
		StatementID: id,
		UserID:      system.ID,
		Type:        domain.NoteAlert,
		Text:        "Overwritten by manual ingestion",
	})
	return err
}

// reconcileForwardConnections maps forward-connection URIs to statement ids,
// dropping edges whose target is unknown or shares no destination/origin
// entity. Dropped edges are anomalies, never record failures.
func (p *Pipeline) reconcileForwardConnections(tx domain.Transaction, rec StatementRecord, candidate domain.ConnectivityStatement, anomaly func(entityID, msg string)) []string {
	if len(rec.ForwardConnections) == 0 {
		return nil
	}
	byReference := map[string]domain.ConnectivityStatement{}
	for _, cs := range tx.Snapshot().ListConnectivityStatements() {
		if cs.ReferenceURI != "" {
			byReference[cs.ReferenceURI] = cs
		}
	}
	var ids []string
	for _, uri := range rec.ForwardConnections {
		target, ok := byReference[uri]
		if !ok {
			anomaly("", fmt.Sprintf("forward connection %s does not resolve to a statement", uri))
			continue
		}
		if target.ReferenceURI == rec.ID {
			anomaly("", "forward connection references the statement itself")
			continue
		}
		if !core.ForwardEdgeValid(candidate, target) {
			anomaly(target.ID, fmt.Sprintf("forward connection %s shares no destination/origin entity", uri))
			continue
		}
		ids = append(ids, target.ID)
	}
	return ids
}

// demoteForwardTargets moves approved or exported forward targets back to
// IN_PROGRESS after an upstream path change, with an explanatory note.
func (p *Pipeline) demoteForwardTargets(tx domain.Transaction, cs domain.ConnectivityStatement) error {
	system, err := core.EnsureSystemUser(tx)
	if err != nil {
		return err
	}
	for _, targetID := range cs.ForwardConnectionIDs {
		target, ok := tx.FindConnectivityStatement(targetID)
		if !ok {
			continue
		}
		if target.State != domain.CSNPOApproved && target.State != domain.CSExported {
			continue
		}
		if _, err := core.TransitionStatement(tx, targetID, domain.CSInProgress, system, true); err != nil {
			return err
		}
		note := fmt.Sprintf("Statement demoted to %s: upstream statement %s changed its path during ingestion",
			domain.CSInProgress, cs.ID)
		if _, err := tx.CreateNote(domain.Note{
			StatementID: targetID,
			UserID:      system.ID,
			Type:        domain.NoteAlert,
			Text:        note,
		}); err != nil {
			return err
		}
	}
	return nil
}

// upgradeToComposite rewrites a simple entity named "{layer} in {region}"
// into a layer/region composite when both metas exist and neither the
// composite URI nor the derived name collides.
func (p *Pipeline) upgradeToComposite(tx domain.Transaction, id string, anomaly func(entityID, msg string)) {
	e, ok := tx.FindAnatomicalEntity(id)
	if !ok || e.IsComposite() {
		return
	}
	idx := strings.Index(strings.ToLower(e.Name), " in ")
	if idx < 0 {
		return
	}
	layer, okL := tx.FindAnatomicalEntityMetaByName(strings.TrimSpace(e.Name[:idx]))
	region, okR := tx.FindAnatomicalEntityMetaByName(strings.TrimSpace(e.Name[idx+len(" in "):]))
	if !okL || !okR {
		return
	}
	uri := domain.CompositeURI(layer, region)
	if _, exists := tx.FindAnatomicalEntityByURI(uri); exists {
		anomaly(id, fmt.Sprintf("composite for %q already exists, entity left untouched", e.Name))
		return
	}
	_, err := tx.UpdateAnatomicalEntity(id, func(ae *domain.AnatomicalEntity) error {
		ae.LayerID = layer.ID
		ae.RegionID = region.ID
		ae.Name = domain.CompositeName(layer, region)
		ae.OntologyURI = uri
		return nil
	})
	if err != nil {
		anomaly(id, fmt.Sprintf("composite upgrade failed: %v", err))
	}
}

func (p *Pipeline) resolveSpecies(tx domain.Transaction, names []string) []string {
	var ids []string
	for _, name := range names {
		if name == "" {
			continue
		}
		sp, ok := tx.FindSpeciesByName(name)
		if !ok {
			created, err := tx.CreateSpecies(domain.Species{Name: name})
			if err != nil {
				continue
			}
			sp = created
		}
		ids = append(ids, sp.ID)
	}
	return ids
}

func (p *Pipeline) resolveSex(tx domain.Transaction, name string) string {
	if name == "" {
		return ""
	}
	sex, ok := tx.FindBiologicalSexByName(name)
	if !ok {
		created, err := tx.CreateBiologicalSex(domain.BiologicalSex{Name: name})
		if err != nil {
			return ""
		}
		sex = created
	}
	return sex.ID
}

func (p *Pipeline) resolvePhenotype(tx domain.Transaction, name string) string {
	if name == "" {
		return ""
	}
	ph, ok := tx.FindPhenotypeByName(name)
	if !ok {
		created, err := tx.CreatePhenotype(domain.Phenotype{Name: name})
		if err != nil {
			return ""
		}
		ph = created
	}
	return ph.ID
}

func (p *Pipeline) resolvePopulation(tx domain.Transaction, name string, anomaly func(entityID, msg string)) string {
	if name == "" {
		return ""
	}
	if pop, ok := tx.FindPopulationSetByName(name); ok {
		return pop.ID
	}
	if !domain.ValidPopulationName(name) {
		anomaly("", fmt.Sprintf("population name %q is malformed, statement left without population", name))
		return ""
	}
	pop, err := tx.CreatePopulationSet(domain.PopulationSet{Name: name})
	if err != nil {
		anomaly("", fmt.Sprintf("population %q could not be created: %v", name, err))
		return ""
	}
	return pop.ID
}

// entityResolver maps ontology URIs to anatomical entity ids within one
// transaction, creating layer/region composites on demand.
type entityResolver struct {
	tx         domain.Transaction
	metasByURI map[string]domain.AnatomicalEntityMeta
	simpleIDs  []string
	seenSimple map[string]struct{}
}

func newEntityResolver(tx domain.Transaction) *entityResolver {
	metas := map[string]domain.AnatomicalEntityMeta{}
	for _, m := range tx.Snapshot().ListAnatomicalEntityMetas() {
		metas[m.OntologyURI] = m
	}
	return &entityResolver{tx: tx, metasByURI: metas, seenSimple: map[string]struct{}{}}
}

// resolveSet resolves references in order, deduplicating ids. Unresolvable
// references are hard anomalies.
func (r *entityResolver) resolveSet(refs []EntityRef, hard func(entityID, msg string)) []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, ref := range refs {
		id, ok := r.resolve(ref, hard)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (r *entityResolver) resolve(ref EntityRef, hard func(entityID, msg string)) (string, bool) {
	if ref.IsComposite() {
		layer, okL := r.metasByURI[ref.LayerURI]
		region, okR := r.metasByURI[ref.RegionURI]
		if !okL {
			hard("", fmt.Sprintf("unknown layer URI %s", ref.LayerURI))
			return "", false
		}
		if !okR {
			hard("", fmt.Sprintf("unknown region URI %s", ref.RegionURI))
			return "", false
		}
		uri := domain.CompositeURI(layer, region)
		if e, ok := r.tx.FindAnatomicalEntityByURI(uri); ok {
			return e.ID, true
		}
		e, err := r.tx.CreateAnatomicalEntity(domain.AnatomicalEntity{
			Name:        domain.CompositeName(layer, region),
			OntologyURI: uri,
			LayerID:     layer.ID,
			RegionID:    region.ID,
		})
		if err != nil {
			hard("", fmt.Sprintf("composite %s could not be created: %v", uri, err))
			return "", false
		}
		return e.ID, true
	}
	if ref.URI == "" {
		hard("", "anatomical reference has no URI")
		return "", false
	}
	e, ok := r.tx.FindAnatomicalEntityByURI(ref.URI)
	if !ok {
		hard("", fmt.Sprintf("unknown anatomical URI %s", ref.URI))
		return "", false
	}
	if _, dup := r.seenSimple[e.ID]; !dup {
		r.seenSimple[e.ID] = struct{}{}
		r.simpleIDs = append(r.simpleIDs, e.ID)
	}
	return e.ID, true
}

func viaTypeOf(s string) (domain.ViaType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(domain.ViaAxon):
		return domain.ViaAxon, true
	case string(domain.ViaDendrite):
		return domain.ViaDendrite, true
	case string(domain.ViaSensoryAxon):
		return domain.ViaSensoryAxon, true
	default:
		return domain.ViaAxon, false
	}
}

func destinationTypeOf(s string) (domain.DestinationType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(domain.DestinationUnknown):
		return domain.DestinationUnknown, true
	case string(domain.DestinationAxonSE):
		return domain.DestinationAxonSE, true
	case string(domain.DestinationAxonT):
		return domain.DestinationAxonT, true
	case string(domain.DestinationAxonST):
		return domain.DestinationAxonST, true
	case string(domain.DestinationAfferentT):
		return domain.DestinationAfferentT, true
	default:
		return domain.DestinationUnknown, false
	}
}

func attributeValues(rec StatementRecord, anomaly func(entityID, msg string)) (domain.Laterality, domain.Projection, domain.CircuitType) {
	var lat domain.Laterality
	switch strings.ToUpper(strings.TrimSpace(rec.Laterality)) {
	case "":
	case string(domain.LateralityLeft):
		lat = domain.LateralityLeft
	case string(domain.LateralityRight):
		lat = domain.LateralityRight
	default:
		anomaly("", fmt.Sprintf("unknown laterality %q", rec.Laterality))
	}
	var proj domain.Projection
	switch strings.ToUpper(strings.TrimSpace(rec.Projection)) {
	case "":
	case string(domain.ProjectionIpsi):
		proj = domain.ProjectionIpsi
	case string(domain.ProjectionContrat):
		proj = domain.ProjectionContrat
	case string(domain.ProjectionBi):
		proj = domain.ProjectionBi
	default:
		anomaly("", fmt.Sprintf("unknown projection %q", rec.Projection))
	}
	var circuit domain.CircuitType
	switch strings.ToUpper(strings.TrimSpace(rec.CircuitType)) {
	case "":
	case string(domain.CircuitSensory):
		circuit = domain.CircuitSensory
	case string(domain.CircuitMotor):
		circuit = domain.CircuitMotor
	case string(domain.CircuitIntrinsic):
		circuit = domain.CircuitIntrinsic
	case string(domain.CircuitProjection):
		circuit = domain.CircuitProjection
	case string(domain.CircuitAnaxonic):
		circuit = domain.CircuitAnaxonic
	default:
		anomaly("", fmt.Sprintf("unknown circuit type %q", rec.CircuitType))
	}
	return lat, proj, circuit
}

// applyIngestedFields copies the ingestion-owned fields onto the stored
// statement. Curation-owned fields (state, owner, population index, triples)
// are never touched.
func applyIngestedFields(dst *domain.ConnectivityStatement, src domain.ConnectivityStatement) {
	dst.KnowledgeStatement = src.KnowledgeStatement
	dst.OriginIDs = src.OriginIDs
	dst.Vias = src.Vias
	dst.Destinations = src.Destinations
	dst.SpeciesIDs = src.SpeciesIDs
	dst.BiologicalSexID = src.BiologicalSexID
	dst.PhenotypeID = src.PhenotypeID
	dst.Laterality = src.Laterality
	dst.Projection = src.Projection
	dst.CircuitType = src.CircuitType
	dst.ProvenanceURIs = src.ProvenanceURIs
	dst.AlertURIs = src.AlertURIs
	if src.PopulationID != "" {
		dst.PopulationID = src.PopulationID
	}
	dst.ForwardConnectionIDs = src.ForwardConnectionIDs
}

// statementContentEqual reports whether applying the ingestion-owned fields
// of desired onto prior would change nothing, in which case the stored
// statement stays untouched.
func statementContentEqual(prior, desired domain.ConnectivityStatement) bool {
	applied := prior
	applyIngestedFields(&applied, desired)
	return reflect.DeepEqual(applied, prior)
}

func pathEqual(a, b domain.ConnectivityStatement) bool {
	return reflect.DeepEqual(a.OriginIDs, b.OriginIDs) &&
		reflect.DeepEqual(a.Vias, b.Vias) &&
		reflect.DeepEqual(a.Destinations, b.Destinations)
}
