package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// transaction is a mutation set applied to a cloned store state. Writes are
// recorded as Change entries for rule evaluation at commit.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, before, after any) {
	change := Change{
		Entity: entity,
		Action: action,
		Before: domain.UndefinedChangePayload(),
		After:  domain.UndefinedChangePayload(),
	}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		mustApply("encode change payload", err)
		change.Before = payload
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		mustApply("encode change payload", err)
		change.After = payload
	}
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Users -----------------------------------------------------------------

func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = tx.store.newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, fmt.Errorf("user %q already exists", u.ID)
	}
	if u.Login == "" {
		return User{}, fmt.Errorf("user requires a login")
	}
	for _, existing := range tx.state.users {
		if existing.Login == u.Login {
			return User{}, domain.IntegrityError{Entity: domain.EntityUser,
				Message: fmt.Sprintf("login %q already taken", u.Login)}
		}
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.recordChange(domain.EntityUser, domain.ActionCreate, nil, u)
	return u, nil
}

func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.users[id] = current
	tx.recordChange(domain.EntityUser, domain.ActionUpdate, before, current)
	return current, nil
}

func (tx *transaction) FindUser(id string) (User, bool) {
	u, ok := tx.state.users[id]
	return u, ok
}

func (tx *transaction) FindUserByLogin(login string) (User, bool) {
	for _, u := range tx.state.users {
		if u.Login == login {
			return u, true
		}
	}
	return User{}, false
}

// Anatomical entity metas -----------------------------------------------

func (tx *transaction) CreateAnatomicalEntityMeta(m AnatomicalEntityMeta) (AnatomicalEntityMeta, error) {
	if m.ID == "" {
		m.ID = tx.store.newID()
	}
	if _, exists := tx.state.metas[m.ID]; exists {
		return AnatomicalEntityMeta{}, fmt.Errorf("anatomical entity meta %q already exists", m.ID)
	}
	if m.Name == "" {
		return AnatomicalEntityMeta{}, fmt.Errorf("anatomical entity meta requires a name")
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.metas[m.ID] = m
	tx.recordChange(domain.EntityAnatomicalEntityMeta, domain.ActionCreate, nil, m)
	return m, nil
}

func (tx *transaction) FindAnatomicalEntityMeta(id string) (AnatomicalEntityMeta, bool) {
	m, ok := tx.state.metas[id]
	return m, ok
}

func (tx *transaction) FindAnatomicalEntityMetaByName(name string) (AnatomicalEntityMeta, bool) {
	for _, m := range tx.state.metas {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return AnatomicalEntityMeta{}, false
}

// Anatomical entities ---------------------------------------------------

func (tx *transaction) CreateAnatomicalEntity(e AnatomicalEntity) (AnatomicalEntity, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.entities[e.ID]; exists {
		return AnatomicalEntity{}, fmt.Errorf("anatomical entity %q already exists", e.ID)
	}
	if e.IsComposite() {
		if _, ok := tx.state.metas[e.LayerID]; !ok {
			return AnatomicalEntity{}, domain.NotFoundError{Entity: domain.EntityAnatomicalEntityMeta, ID: e.LayerID}
		}
		if _, ok := tx.state.metas[e.RegionID]; !ok {
			return AnatomicalEntity{}, domain.NotFoundError{Entity: domain.EntityAnatomicalEntityMeta, ID: e.RegionID}
		}
	}
	if e.Name == "" {
		return AnatomicalEntity{}, fmt.Errorf("anatomical entity requires a name")
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.entities[e.ID] = cloneEntity(e)
	tx.recordChange(domain.EntityAnatomicalEntity, domain.ActionCreate, nil, cloneEntity(e))
	return cloneEntity(e), nil
}

func (tx *transaction) UpdateAnatomicalEntity(id string, mutator func(*AnatomicalEntity) error) (AnatomicalEntity, error) {
	current, ok := tx.state.entities[id]
	if !ok {
		return AnatomicalEntity{}, domain.NotFoundError{Entity: domain.EntityAnatomicalEntity, ID: id}
	}
	before := cloneEntity(current)
	if err := mutator(&current); err != nil {
		return AnatomicalEntity{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.entities[id] = cloneEntity(current)
	tx.recordChange(domain.EntityAnatomicalEntity, domain.ActionUpdate, before, cloneEntity(current))
	return cloneEntity(current), nil
}

func (tx *transaction) DeleteAnatomicalEntity(id string) error {
	current, ok := tx.state.entities[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityAnatomicalEntity, ID: id}
	}
	delete(tx.state.entities, id)
	tx.recordChange(domain.EntityAnatomicalEntity, domain.ActionDelete, cloneEntity(current), nil)
	return nil
}

func (tx *transaction) FindAnatomicalEntity(id string) (AnatomicalEntity, bool) {
	e, ok := tx.state.entities[id]
	if !ok {
		return AnatomicalEntity{}, false
	}
	return cloneEntity(e), true
}

func (tx *transaction) FindAnatomicalEntityByName(name string) (AnatomicalEntity, bool) {
	for _, e := range tx.state.entities {
		if strings.EqualFold(e.Name, name) {
			return cloneEntity(e), true
		}
	}
	return AnatomicalEntity{}, false
}

func (tx *transaction) FindAnatomicalEntityByURI(uri string) (AnatomicalEntity, bool) {
	for _, e := range tx.state.entities {
		if e.OntologyURI == uri {
			return cloneEntity(e), true
		}
	}
	return AnatomicalEntity{}, false
}

// Lookup entities -------------------------------------------------------

func (tx *transaction) CreateSpecies(sp Species) (Species, error) {
	if sp.ID == "" {
		sp.ID = tx.store.newID()
	}
	if _, exists := tx.state.species[sp.ID]; exists {
		return Species{}, fmt.Errorf("species %q already exists", sp.ID)
	}
	for _, existing := range tx.state.species {
		if strings.EqualFold(existing.Name, sp.Name) {
			return Species{}, domain.IntegrityError{Entity: domain.EntitySpecies,
				Message: fmt.Sprintf("name %q already taken", sp.Name)}
		}
	}
	sp.CreatedAt = tx.now
	sp.UpdatedAt = tx.now
	tx.state.species[sp.ID] = sp
	tx.recordChange(domain.EntitySpecies, domain.ActionCreate, nil, sp)
	return sp, nil
}

func (tx *transaction) FindSpeciesByName(name string) (Species, bool) {
	for _, sp := range tx.state.species {
		if strings.EqualFold(sp.Name, name) {
			return sp, true
		}
	}
	return Species{}, false
}

func (tx *transaction) CreateBiologicalSex(sex BiologicalSex) (BiologicalSex, error) {
	if sex.ID == "" {
		sex.ID = tx.store.newID()
	}
	if _, exists := tx.state.sexes[sex.ID]; exists {
		return BiologicalSex{}, fmt.Errorf("biological sex %q already exists", sex.ID)
	}
	for _, existing := range tx.state.sexes {
		if strings.EqualFold(existing.Name, sex.Name) {
			return BiologicalSex{}, domain.IntegrityError{Entity: domain.EntityBiologicalSex,
				Message: fmt.Sprintf("name %q already taken", sex.Name)}
		}
	}
	sex.CreatedAt = tx.now
	sex.UpdatedAt = tx.now
	tx.state.sexes[sex.ID] = sex
	tx.recordChange(domain.EntityBiologicalSex, domain.ActionCreate, nil, sex)
	return sex, nil
}

func (tx *transaction) FindBiologicalSexByName(name string) (BiologicalSex, bool) {
	for _, sex := range tx.state.sexes {
		if strings.EqualFold(sex.Name, name) {
			return sex, true
		}
	}
	return BiologicalSex{}, false
}

func (tx *transaction) CreatePhenotype(p Phenotype) (Phenotype, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.phenotypes[p.ID]; exists {
		return Phenotype{}, fmt.Errorf("phenotype %q already exists", p.ID)
	}
	for _, existing := range tx.state.phenotypes {
		if strings.EqualFold(existing.Name, p.Name) {
			return Phenotype{}, domain.IntegrityError{Entity: domain.EntityPhenotype,
				Message: fmt.Sprintf("name %q already taken", p.Name)}
		}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.phenotypes[p.ID] = p
	tx.recordChange(domain.EntityPhenotype, domain.ActionCreate, nil, p)
	return p, nil
}

func (tx *transaction) FindPhenotypeByName(name string) (Phenotype, bool) {
	for _, p := range tx.state.phenotypes {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Phenotype{}, false
}

func (tx *transaction) CreateTag(t Tag) (Tag, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.tags[t.ID]; exists {
		return Tag{}, fmt.Errorf("tag %q already exists", t.ID)
	}
	for _, existing := range tx.state.tags {
		if strings.EqualFold(existing.Name, t.Name) {
			return Tag{}, domain.IntegrityError{Entity: domain.EntityTag,
				Message: fmt.Sprintf("name %q already taken", t.Name)}
		}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.tags[t.ID] = t
	tx.recordChange(domain.EntityTag, domain.ActionCreate, nil, t)
	return t, nil
}

func (tx *transaction) FindTagByName(name string) (Tag, bool) {
	for _, t := range tx.state.tags {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Tag{}, false
}

// Population sets -------------------------------------------------------

func (tx *transaction) CreatePopulationSet(p PopulationSet) (PopulationSet, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.populations[p.ID]; exists {
		return PopulationSet{}, fmt.Errorf("population set %q already exists", p.ID)
	}
	p.Name = domain.NormalizePopulationName(p.Name)
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.populations[p.ID] = p
	tx.recordChange(domain.EntityPopulationSet, domain.ActionCreate, nil, p)
	return p, nil
}

func (tx *transaction) UpdatePopulationSet(id string, mutator func(*PopulationSet) error) (PopulationSet, error) {
	current, ok := tx.state.populations[id]
	if !ok {
		return PopulationSet{}, domain.NotFoundError{Entity: domain.EntityPopulationSet, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return PopulationSet{}, err
	}
	current.ID = id
	current.Name = domain.NormalizePopulationName(current.Name)
	if current.LastUsedIndex < before.LastUsedIndex {
		return PopulationSet{}, domain.IntegrityError{Entity: domain.EntityPopulationSet,
			Message: "last used index cannot decrease"}
	}
	current.UpdatedAt = tx.now
	tx.state.populations[id] = current
	tx.recordChange(domain.EntityPopulationSet, domain.ActionUpdate, before, current)
	return current, nil
}

func (tx *transaction) FindPopulationSet(id string) (PopulationSet, bool) {
	p, ok := tx.state.populations[id]
	return p, ok
}

func (tx *transaction) FindPopulationSetByName(name string) (PopulationSet, bool) {
	name = domain.NormalizePopulationName(name)
	for _, p := range tx.state.populations {
		if p.Name == name {
			return p, true
		}
	}
	return PopulationSet{}, false
}

// Provenances -----------------------------------------------------------

func (tx *transaction) CreateProvenance(p Provenance) (Provenance, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.provenances[p.ID]; exists {
		return Provenance{}, fmt.Errorf("provenance %q already exists", p.ID)
	}
	if _, ok := tx.state.statements[p.StatementID]; !ok {
		return Provenance{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: p.StatementID}
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.provenances[p.ID] = p
	tx.recordChange(domain.EntityProvenance, domain.ActionCreate, nil, p)
	return p, nil
}

// Sentences -------------------------------------------------------------

func (tx *transaction) CreateSentence(s Sentence) (Sentence, error) {
	if s.ID == "" {
		s.ID = tx.store.newID()
	}
	if _, exists := tx.state.sentences[s.ID]; exists {
		return Sentence{}, fmt.Errorf("sentence %q already exists", s.ID)
	}
	if len(s.Title) > domain.MaxSentenceTitle {
		return Sentence{}, domain.IntegrityError{Entity: domain.EntitySentence,
			Message: fmt.Sprintf("title exceeds %d characters", domain.MaxSentenceTitle)}
	}
	if s.State == "" {
		s.State = domain.SentenceOpen
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.sentences[s.ID] = cloneSentence(s)
	tx.recordChange(domain.EntitySentence, domain.ActionCreate, nil, cloneSentence(s))
	return cloneSentence(s), nil
}

func (tx *transaction) UpdateSentence(id string, mutator func(*Sentence) error) (Sentence, error) {
	current, ok := tx.state.sentences[id]
	if !ok {
		return Sentence{}, domain.NotFoundError{Entity: domain.EntitySentence, ID: id}
	}
	before := cloneSentence(current)
	if err := mutator(&current); err != nil {
		return Sentence{}, err
	}
	if current.State != before.State {
		return Sentence{}, fmt.Errorf("sentence state changes must go through the lifecycle engine")
	}
	if len(current.Title) > domain.MaxSentenceTitle {
		return Sentence{}, domain.IntegrityError{Entity: domain.EntitySentence,
			Message: fmt.Sprintf("title exceeds %d characters", domain.MaxSentenceTitle)}
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.sentences[id] = cloneSentence(current)
	tx.recordChange(domain.EntitySentence, domain.ActionUpdate, before, cloneSentence(current))
	return cloneSentence(current), nil
}

func (tx *transaction) FindSentence(id string) (Sentence, bool) {
	s, ok := tx.state.sentences[id]
	if !ok {
		return Sentence{}, false
	}
	return cloneSentence(s), true
}

func (tx *transaction) FindSentenceByDOI(doi string) (Sentence, bool) {
	if doi == "" {
		return Sentence{}, false
	}
	for _, s := range tx.state.sentences {
		if strings.EqualFold(s.DOI, doi) {
			return cloneSentence(s), true
		}
	}
	return Sentence{}, false
}

func (tx *transaction) SetSentenceState(id string, state domain.SentenceState) (Sentence, error) {
	current, ok := tx.state.sentences[id]
	if !ok {
		return Sentence{}, domain.NotFoundError{Entity: domain.EntitySentence, ID: id}
	}
	before := cloneSentence(current)
	current.State = state
	current.UpdatedAt = tx.now
	tx.state.sentences[id] = cloneSentence(current)
	tx.recordChange(domain.EntitySentence, domain.ActionUpdate, before, cloneSentence(current))
	return cloneSentence(current), nil
}

// Connectivity statements ------------------------------------------------

func (tx *transaction) CreateConnectivityStatement(cs ConnectivityStatement) (ConnectivityStatement, error) {
	if cs.ID == "" {
		cs.ID = tx.store.newID()
	}
	if _, exists := tx.state.statements[cs.ID]; exists {
		return ConnectivityStatement{}, fmt.Errorf("connectivity statement %q already exists", cs.ID)
	}
	if _, ok := tx.state.sentences[cs.SentenceID]; !ok {
		return ConnectivityStatement{}, domain.NotFoundError{Entity: domain.EntitySentence, ID: cs.SentenceID}
	}
	if cs.State == "" {
		cs.State = domain.CSDraft
	}
	cs.NormalizePath()
	cs.CreatedAt = tx.now
	cs.UpdatedAt = tx.now
	tx.state.statements[cs.ID] = cloneStatement(cs)
	tx.recordChange(domain.EntityConnectivityStatement, domain.ActionCreate, nil, cloneStatement(cs))
	return cloneStatement(cs), nil
}

func (tx *transaction) UpdateConnectivityStatement(id string, mutator func(*ConnectivityStatement) error) (ConnectivityStatement, error) {
	current, ok := tx.state.statements[id]
	if !ok {
		return ConnectivityStatement{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: id}
	}
	before := cloneStatement(current)
	if err := mutator(&current); err != nil {
		return ConnectivityStatement{}, err
	}
	if current.State != before.State {
		return ConnectivityStatement{}, fmt.Errorf("statement state changes must go through the lifecycle engine")
	}
	// The export flag is sticky; mutators cannot clear it.
	if before.HasStatementBeenExported {
		current.HasStatementBeenExported = true
	}
	current.ID = id
	current.NormalizePath()
	current.UpdatedAt = tx.now
	tx.state.statements[id] = cloneStatement(current)
	tx.recordChange(domain.EntityConnectivityStatement, domain.ActionUpdate, before, cloneStatement(current))
	return cloneStatement(current), nil
}

func (tx *transaction) DeleteConnectivityStatement(id string) error {
	current, ok := tx.state.statements[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: id}
	}
	for tid, triple := range tx.state.triples {
		if triple.StatementID != id {
			continue
		}
		delete(tx.state.triples, tid)
		tx.recordChange(domain.EntityStatementTriple, domain.ActionDelete, cloneTriple(triple), nil)
	}
	for pid, prov := range tx.state.provenances {
		if prov.StatementID != id {
			continue
		}
		delete(tx.state.provenances, pid)
		tx.recordChange(domain.EntityProvenance, domain.ActionDelete, prov, nil)
	}
	for sid, other := range tx.state.statements {
		if sid == id {
			continue
		}
		pruned := cloneStatement(other)
		changed := false
		kept := pruned.ForwardConnectionIDs[:0]
		for _, fid := range pruned.ForwardConnectionIDs {
			if fid == id {
				changed = true
				continue
			}
			kept = append(kept, fid)
		}
		if !changed {
			continue
		}
		pruned.ForwardConnectionIDs = kept
		pruned.UpdatedAt = tx.now
		tx.state.statements[sid] = cloneStatement(pruned)
		tx.recordChange(domain.EntityConnectivityStatement, domain.ActionUpdate, cloneStatement(other), cloneStatement(pruned))
	}
	delete(tx.state.statements, id)
	tx.recordChange(domain.EntityConnectivityStatement, domain.ActionDelete, cloneStatement(current), nil)
	return nil
}

func (tx *transaction) FindConnectivityStatement(id string) (ConnectivityStatement, bool) {
	cs, ok := tx.state.statements[id]
	if !ok {
		return ConnectivityStatement{}, false
	}
	return cloneStatement(cs), true
}

func (tx *transaction) FindStatementBySentenceAndReference(sentenceID, referenceURI string) (ConnectivityStatement, bool) {
	return findByReference(tx.state.statements, sentenceID, referenceURI)
}

// findByReference picks the statement carrying the reference URI on the
// sentence, preferring a live statement over superseded terminal ones and
// the lower id among peers.
func findByReference(statements map[string]ConnectivityStatement, sentenceID, referenceURI string) (ConnectivityStatement, bool) {
	if referenceURI == "" {
		return ConnectivityStatement{}, false
	}
	var chosen ConnectivityStatement
	found := false
	for _, cs := range statements {
		if cs.SentenceID != sentenceID || cs.ReferenceURI != referenceURI {
			continue
		}
		if !found || betterReferenceMatch(cs, chosen) {
			chosen, found = cloneStatement(cs), true
		}
	}
	return chosen, found
}

func betterReferenceMatch(candidate, current ConnectivityStatement) bool {
	candTerminal := candidate.State == domain.CSDeprecated || candidate.State == domain.CSInvalid
	currTerminal := current.State == domain.CSDeprecated || current.State == domain.CSInvalid
	if candTerminal != currTerminal {
		return currTerminal
	}
	return candidate.ID < current.ID
}

func (tx *transaction) ListStatementsBySentence(sentenceID string) []ConnectivityStatement {
	var out []ConnectivityStatement
	for _, cs := range tx.state.statements {
		if cs.SentenceID == sentenceID {
			out = append(out, cloneStatement(cs))
		}
	}
	sortStatements(out)
	return out
}

func (tx *transaction) ListStatementsByState(state domain.CSState) []ConnectivityStatement {
	var out []ConnectivityStatement
	for _, cs := range tx.state.statements {
		if cs.State == state {
			out = append(out, cloneStatement(cs))
		}
	}
	sortStatements(out)
	return out
}

func (tx *transaction) SetStatementState(id string, state domain.CSState) (ConnectivityStatement, error) {
	current, ok := tx.state.statements[id]
	if !ok {
		return ConnectivityStatement{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: id}
	}
	before := cloneStatement(current)
	current.State = state
	if state == domain.CSExported {
		current.HasStatementBeenExported = true
	}
	current.UpdatedAt = tx.now
	tx.state.statements[id] = cloneStatement(current)
	tx.recordChange(domain.EntityConnectivityStatement, domain.ActionUpdate, before, cloneStatement(current))
	return cloneStatement(current), nil
}

// Notes -----------------------------------------------------------------

func (tx *transaction) CreateNote(n Note) (Note, error) {
	if n.ID == "" {
		n.ID = tx.store.newID()
	}
	if _, exists := tx.state.notes[n.ID]; exists {
		return Note{}, fmt.Errorf("note %q already exists", n.ID)
	}
	if n.SentenceID == "" && n.StatementID == "" {
		return Note{}, fmt.Errorf("note requires a sentence or statement reference")
	}
	if n.SentenceID != "" {
		if _, ok := tx.state.sentences[n.SentenceID]; !ok {
			return Note{}, domain.NotFoundError{Entity: domain.EntitySentence, ID: n.SentenceID}
		}
	}
	if n.StatementID != "" {
		if _, ok := tx.state.statements[n.StatementID]; !ok {
			return Note{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: n.StatementID}
		}
	}
	if n.Type == "" {
		n.Type = domain.NotePlain
	}
	n.CreatedAt = tx.now
	n.UpdatedAt = tx.now
	tx.state.notes[n.ID] = n
	tx.recordChange(domain.EntityNote, domain.ActionCreate, nil, n)
	return n, nil
}

func (tx *transaction) ListNotesForSentence(sentenceID string) []Note {
	var out []Note
	for _, n := range tx.state.notes {
		if n.SentenceID == sentenceID {
			out = append(out, n)
		}
	}
	sortNotes(out)
	return out
}

func (tx *transaction) ListNotesForStatement(statementID string) []Note {
	var out []Note
	for _, n := range tx.state.notes {
		if n.StatementID == statementID {
			out = append(out, n)
		}
	}
	sortNotes(out)
	return out
}

// Export batches --------------------------------------------------------

func (tx *transaction) CreateExportBatch(b ExportBatch) (ExportBatch, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return ExportBatch{}, fmt.Errorf("export batch %q already exists", b.ID)
	}
	if _, ok := tx.state.users[b.OwnerID]; !ok {
		return ExportBatch{}, domain.NotFoundError{Entity: domain.EntityUser, ID: b.OwnerID}
	}
	for _, sid := range b.StatementIDs {
		if _, ok := tx.state.statements[sid]; !ok {
			return ExportBatch{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: sid}
		}
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(domain.EntityExportBatch, domain.ActionCreate, nil, cloneBatch(b))
	return cloneBatch(b), nil
}

func (tx *transaction) SetExportBatchArtifact(id, key, url string) (ExportBatch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return ExportBatch{}, domain.NotFoundError{Entity: domain.EntityExportBatch, ID: id}
	}
	before := cloneBatch(current)
	current.ArtifactKey = key
	current.ArtifactURL = url
	current.UpdatedAt = tx.now
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(domain.EntityExportBatch, domain.ActionUpdate, before, cloneBatch(current))
	return cloneBatch(current), nil
}

// Relationships and triples ----------------------------------------------

func (tx *transaction) CreateRelationship(r Relationship) (Relationship, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.relationships[r.ID]; exists {
		return Relationship{}, fmt.Errorf("relationship %q already exists", r.ID)
	}
	if r.Title == "" {
		return Relationship{}, fmt.Errorf("relationship requires a title")
	}
	switch r.Type {
	case domain.RelationshipText, domain.RelationshipSingle, domain.RelationshipMulti:
	default:
		return Relationship{}, fmt.Errorf("unknown relationship type %q", r.Type)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.relationships[r.ID] = r
	tx.recordChange(domain.EntityRelationship, domain.ActionCreate, nil, r)
	return r, nil
}

func (tx *transaction) UpdateRelationship(id string, mutator func(*Relationship) error) (Relationship, error) {
	current, ok := tx.state.relationships[id]
	if !ok {
		return Relationship{}, domain.NotFoundError{Entity: domain.EntityRelationship, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Relationship{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.relationships[id] = current
	tx.recordChange(domain.EntityRelationship, domain.ActionUpdate, before, current)
	return current, nil
}

func (tx *transaction) DeleteRelationship(id string) error {
	current, ok := tx.state.relationships[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRelationship, ID: id}
	}
	for tid, triple := range tx.state.triples {
		if triple.RelationshipID == id {
			return fmt.Errorf("relationship %q still referenced by triple %q", id, tid)
		}
	}
	delete(tx.state.relationships, id)
	tx.recordChange(domain.EntityRelationship, domain.ActionDelete, current, nil)
	return nil
}

func (tx *transaction) CreateStatementTriple(t StatementTriple) (StatementTriple, error) {
	if t.ID == "" {
		t.ID = tx.store.newID()
	}
	if _, exists := tx.state.triples[t.ID]; exists {
		return StatementTriple{}, fmt.Errorf("statement triple %q already exists", t.ID)
	}
	if _, ok := tx.state.statements[t.StatementID]; !ok {
		return StatementTriple{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: t.StatementID}
	}
	if _, ok := tx.state.relationships[t.RelationshipID]; !ok {
		return StatementTriple{}, domain.NotFoundError{Entity: domain.EntityRelationship, ID: t.RelationshipID}
	}
	for _, existing := range tx.state.triples {
		if existing.StatementID == t.StatementID && existing.RelationshipID == t.RelationshipID {
			return StatementTriple{}, domain.IntegrityError{Entity: domain.EntityStatementTriple,
				Message: fmt.Sprintf("statement %s already bound to relationship %s", t.StatementID, t.RelationshipID)}
		}
	}
	t.CreatedAt = tx.now
	t.UpdatedAt = tx.now
	tx.state.triples[t.ID] = cloneTriple(t)
	tx.recordChange(domain.EntityStatementTriple, domain.ActionCreate, nil, cloneTriple(t))
	return cloneTriple(t), nil
}

func (tx *transaction) UpdateStatementTriple(id string, mutator func(*StatementTriple) error) (StatementTriple, error) {
	current, ok := tx.state.triples[id]
	if !ok {
		return StatementTriple{}, domain.NotFoundError{Entity: domain.EntityStatementTriple, ID: id}
	}
	before := cloneTriple(current)
	if err := mutator(&current); err != nil {
		return StatementTriple{}, err
	}
	current.ID = id
	current.StatementID = before.StatementID
	current.RelationshipID = before.RelationshipID
	current.UpdatedAt = tx.now
	tx.state.triples[id] = cloneTriple(current)
	tx.recordChange(domain.EntityStatementTriple, domain.ActionUpdate, before, cloneTriple(current))
	return cloneTriple(current), nil
}

func (tx *transaction) DeleteStatementTriple(id string) error {
	current, ok := tx.state.triples[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStatementTriple, ID: id}
	}
	delete(tx.state.triples, id)
	tx.recordChange(domain.EntityStatementTriple, domain.ActionDelete, cloneTriple(current), nil)
	return nil
}

func (tx *transaction) ListTriplesForStatement(statementID string) []StatementTriple {
	var out []StatementTriple
	for _, t := range tx.state.triples {
		if t.StatementID == statementID {
			out = append(out, cloneTriple(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortStatements(out []ConnectivityStatement) {
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
}

func sortNotes(out []Note) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
