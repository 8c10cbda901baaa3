package memory

import (
	"sort"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

var _ domain.TransactionView = transactionView{}

// transactionView exposes a read-only snapshot of the transactional state to
// rules and service reads.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListConnectivityStatements() []ConnectivityStatement {
	return listStatements(v.state)
}

func (v transactionView) FindConnectivityStatement(id string) (ConnectivityStatement, bool) {
	cs, ok := v.state.statements[id]
	if !ok {
		return ConnectivityStatement{}, false
	}
	return cloneStatement(cs), true
}

func (v transactionView) ListSentences() []Sentence {
	return listSentences(v.state)
}

func (v transactionView) FindSentence(id string) (Sentence, bool) {
	s, ok := v.state.sentences[id]
	if !ok {
		return Sentence{}, false
	}
	return cloneSentence(s), true
}

func (v transactionView) ListAnatomicalEntities() []AnatomicalEntity {
	out := make([]AnatomicalEntity, 0, len(v.state.entities))
	for _, e := range v.state.entities {
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindAnatomicalEntity(id string) (AnatomicalEntity, bool) {
	e, ok := v.state.entities[id]
	if !ok {
		return AnatomicalEntity{}, false
	}
	return cloneEntity(e), true
}

func (v transactionView) ListAnatomicalEntityMetas() []AnatomicalEntityMeta {
	out := make([]AnatomicalEntityMeta, 0, len(v.state.metas))
	for _, m := range v.state.metas {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindAnatomicalEntityMeta(id string) (AnatomicalEntityMeta, bool) {
	m, ok := v.state.metas[id]
	return m, ok
}

func (v transactionView) ListPopulationSets() []PopulationSet {
	out := make([]PopulationSet, 0, len(v.state.populations))
	for _, p := range v.state.populations {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindPopulationSet(id string) (PopulationSet, bool) {
	p, ok := v.state.populations[id]
	return p, ok
}

func (v transactionView) ListProvenances() []Provenance {
	out := make([]Provenance, 0, len(v.state.provenances))
	for _, p := range v.state.provenances {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	return u, ok
}

func (v transactionView) FindUserByLogin(login string) (User, bool) {
	for _, u := range v.state.users {
		if u.Login == login {
			return u, true
		}
	}
	return User{}, false
}

func (v transactionView) ListSpecies() []Species {
	out := make([]Species, 0, len(v.state.species))
	for _, sp := range v.state.species {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListBiologicalSexes() []BiologicalSex {
	out := make([]BiologicalSex, 0, len(v.state.sexes))
	for _, sex := range v.state.sexes {
		out = append(out, sex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListPhenotypes() []Phenotype {
	out := make([]Phenotype, 0, len(v.state.phenotypes))
	for _, p := range v.state.phenotypes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListTags() []Tag {
	out := make([]Tag, 0, len(v.state.tags))
	for _, t := range v.state.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListRelationships() []Relationship {
	return listRelationships(v.state)
}

func (v transactionView) ListStatementTriples() []StatementTriple {
	out := make([]StatementTriple, 0, len(v.state.triples))
	for _, t := range v.state.triples {
		out = append(out, cloneTriple(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) ListNotes() []Note {
	out := make([]Note, 0, len(v.state.notes))
	for _, n := range v.state.notes {
		out = append(out, n)
	}
	sortNotes(out)
	return out
}

func (v transactionView) ListExportBatches() []ExportBatch {
	out := make([]ExportBatch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (v transactionView) FindExportBatch(id string) (ExportBatch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return ExportBatch{}, false
	}
	return cloneBatch(b), true
}

func (v transactionView) FindStatementBySentenceAndReference(sentenceID, referenceURI string) (ConnectivityStatement, bool) {
	return findByReference(v.state.statements, sentenceID, referenceURI)
}

func (v transactionView) ListStatementsBySentence(sentenceID string) []ConnectivityStatement {
	var out []ConnectivityStatement
	for _, cs := range v.state.statements {
		if cs.SentenceID == sentenceID {
			out = append(out, cloneStatement(cs))
		}
	}
	sortStatements(out)
	return out
}

func (v transactionView) ListStatementsByState(state domain.CSState) []ConnectivityStatement {
	var out []ConnectivityStatement
	for _, cs := range v.state.statements {
		if cs.State == state {
			out = append(out, cloneStatement(cs))
		}
	}
	sortStatements(out)
	return out
}
