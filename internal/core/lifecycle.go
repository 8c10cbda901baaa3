package core

import (
	"fmt"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// The lifecycle engine is the only writer of Sentence.State and
// ConnectivityStatement.State. Transitions are table-driven: each edge
// carries an optional guard evaluated before any mutation and an optional
// on-enter hook applied after the state write, all inside the caller's
// transaction. A blocked transition returns TransitionNotAllowedError and
// leaves the record untouched.

type sentenceEdge struct {
	to    domain.SentenceState
	guard func(tx Transaction, s Sentence) error
}

type statementEdge struct {
	to domain.CSState
	// system edges are reachable only through pipelines acting as the
	// system identity, never through direct curator requests.
	system  bool
	guard   func(tx Transaction, s ConnectivityStatement) error
	onEnter func(tx Transaction, s *ConnectivityStatement) error
}

var sentenceTransitions = map[domain.SentenceState][]sentenceEdge{
	domain.SentenceOpen: {
		{to: domain.SentenceNeedsFurtherReview},
		{to: domain.SentenceComposeLater},
		{to: domain.SentenceReadyToCompose},
		{to: domain.SentenceExcluded},
	},
	domain.SentenceNeedsFurtherReview: {
		{to: domain.SentenceOpen},
		{to: domain.SentenceComposeLater},
		{to: domain.SentenceReadyToCompose},
		{to: domain.SentenceExcluded},
	},
	domain.SentenceComposeLater: {
		{to: domain.SentenceReadyToCompose},
		{to: domain.SentenceNeedsFurtherReview},
		{to: domain.SentenceExcluded},
	},
	domain.SentenceReadyToCompose: {
		{to: domain.SentenceComposeNow, guard: guardSentenceHasStatements},
		{to: domain.SentenceExcluded},
	},
	domain.SentenceComposeNow: {
		{to: domain.SentenceCompleted, guard: guardSentenceStatementsSettled},
		{to: domain.SentenceExcluded},
	},
	domain.SentenceCompleted: {
		{to: domain.SentenceExcluded},
	},
}

func guardSentenceHasStatements(tx Transaction, s Sentence) error {
	if len(tx.ListStatementsBySentence(s.ID)) == 0 {
		return fmt.Errorf("sentence has no connectivity statements")
	}
	return nil
}

// settledStatementStates are the statement states that allow a sentence to
// complete.
var settledStatementStates = map[domain.CSState]struct{}{
	domain.CSExported:    {},
	domain.CSNPOApproved: {},
	domain.CSDeprecated:  {},
	domain.CSInvalid:     {},
}

func guardSentenceStatementsSettled(tx Transaction, s Sentence) error {
	statements := tx.ListStatementsBySentence(s.ID)
	if len(statements) == 0 {
		return fmt.Errorf("sentence has no connectivity statements")
	}
	for _, cs := range statements {
		if _, ok := settledStatementStates[cs.State]; !ok {
			return fmt.Errorf("statement %s is still %s", cs.ID, cs.State)
		}
	}
	return nil
}

var statementTransitions = map[domain.CSState][]statementEdge{
	domain.CSDraft: {
		{to: domain.CSComposeNow, guard: guardStatementHasEndpoints},
		{to: domain.CSInvalid, system: true},
	},
	domain.CSComposeNow: {
		{to: domain.CSInProgress},
		{to: domain.CSInvalid, system: true},
	},
	domain.CSInProgress: {
		{to: domain.CSToBeReviewed, guard: guardStatementReviewable},
		{to: domain.CSInvalid, system: true},
	},
	domain.CSToBeReviewed: {
		{to: domain.CSRevise},
		{to: domain.CSRejected},
		{to: domain.CSNPOApproved},
		{to: domain.CSInvalid, system: true},
	},
	domain.CSRevise: {
		{to: domain.CSInProgress},
		{to: domain.CSInvalid, system: true},
	},
	domain.CSRejected: {
		{to: domain.CSInvalid, system: true},
	},
	domain.CSNPOApproved: {
		{to: domain.CSExported, system: true, onEnter: enterExported},
		{to: domain.CSInProgress, system: true},
		{to: domain.CSInvalid, system: true},
	},
	domain.CSExported: {
		{to: domain.CSDeprecated, system: true},
		{to: domain.CSNPOApproved, system: true},
		{to: domain.CSInProgress, system: true},
		{to: domain.CSInvalid, system: true},
	},
}

func guardStatementHasEndpoints(_ Transaction, s ConnectivityStatement) error {
	if len(s.OriginIDs) == 0 {
		return fmt.Errorf("statement has no origins")
	}
	if len(s.Destinations) == 0 {
		return fmt.Errorf("statement has no destinations")
	}
	return nil
}

func guardStatementReviewable(tx Transaction, s ConnectivityStatement) error {
	if err := ValidatePath(s); err != nil {
		return err
	}
	view := tx.Snapshot()
	for _, targetID := range s.ForwardConnectionIDs {
		target, ok := view.FindConnectivityStatement(targetID)
		if !ok {
			return fmt.Errorf("forward connection %s not found", targetID)
		}
		if !forwardEdgeValid(s, target) {
			return fmt.Errorf("forward connection %s shares no destination/origin entity", targetID)
		}
	}
	return nil
}

// enterExported assigns the population index, short name, and reference URI
// on first export, and makes the export flag sticky. The population-set
// counter bump happens in the same transaction as the state write, so
// concurrent exports cannot produce gaps or duplicates.
func enterExported(tx Transaction, s *ConnectivityStatement) error {
	s.HasStatementBeenExported = true
	if s.PopulationID == "" {
		return nil
	}
	if s.PopulationIndex == nil {
		var assigned int
		pop, err := tx.UpdatePopulationSet(s.PopulationID, func(p *PopulationSet) error {
			p.LastUsedIndex++
			assigned = p.LastUsedIndex
			return nil
		})
		if err != nil {
			return fmt.Errorf("assign population index: %w", err)
		}
		s.PopulationIndex = &assigned
		if s.ShortName == "" {
			s.ShortName = ShortName(pop, assigned)
		}
		if s.ReferenceURI == "" {
			s.ReferenceURI = ReferenceURI(pop, assigned)
		}
	}
	return nil
}

// TransitionSentence moves a sentence along a permitted edge on behalf of
// actor, recording a system-authored transition note.
func TransitionSentence(tx Transaction, id string, to domain.SentenceState, actor User) (Sentence, error) {
	s, ok := tx.FindSentence(id)
	if !ok {
		return Sentence{}, domain.NotFoundError{Entity: domain.EntitySentence, ID: id}
	}
	edge, ok := findSentenceEdge(s.State, to)
	if !ok {
		return Sentence{}, domain.TransitionNotAllowedError{
			Entity: domain.EntitySentence, ID: id,
			From: string(s.State), To: string(to),
		}
	}
	if edge.guard != nil {
		if err := edge.guard(tx, s); err != nil {
			return Sentence{}, domain.TransitionNotAllowedError{
				Entity: domain.EntitySentence, ID: id,
				From: string(s.State), To: string(to), Reason: err.Error(),
			}
		}
	}
	from := s.State
	updated, err := tx.SetSentenceState(id, to)
	if err != nil {
		return Sentence{}, err
	}
	if err := recordTransitionNote(tx, Note{SentenceID: id}, actor, string(from), string(to)); err != nil {
		return Sentence{}, err
	}
	return updated, nil
}

// TransitionStatement moves a connectivity statement along a permitted edge
// on behalf of actor. System-only edges require asSystem.
func TransitionStatement(tx Transaction, id string, to domain.CSState, actor User, asSystem bool) (ConnectivityStatement, error) {
	s, ok := tx.FindConnectivityStatement(id)
	if !ok {
		return ConnectivityStatement{}, domain.NotFoundError{Entity: domain.EntityConnectivityStatement, ID: id}
	}
	edge, ok := findStatementEdge(s.State, to)
	if !ok || (edge.system && !asSystem) {
		return ConnectivityStatement{}, domain.TransitionNotAllowedError{
			Entity: domain.EntityConnectivityStatement, ID: id,
			From: string(s.State), To: string(to),
		}
	}
	if edge.guard != nil {
		if err := edge.guard(tx, s); err != nil {
			return ConnectivityStatement{}, domain.TransitionNotAllowedError{
				Entity: domain.EntityConnectivityStatement, ID: id,
				From: string(s.State), To: string(to), Reason: err.Error(),
			}
		}
	}
	from := s.State
	updated, err := tx.SetStatementState(id, to)
	if err != nil {
		return ConnectivityStatement{}, err
	}
	if edge.onEnter != nil {
		updated, err = tx.UpdateConnectivityStatement(id, func(cs *ConnectivityStatement) error {
			return edge.onEnter(tx, cs)
		})
		if err != nil {
			return ConnectivityStatement{}, err
		}
	}
	if err := recordTransitionNote(tx, Note{StatementID: id}, actor, string(from), string(to)); err != nil {
		return ConnectivityStatement{}, err
	}
	return updated, nil
}

// InvalidateStatement transitions a statement to INVALID as the system user
// and attaches an alert note listing the reasons. Terminal statements are
// left untouched.
func InvalidateStatement(tx Transaction, id string, reasons []string) (ConnectivityStatement, error) {
	system, err := EnsureSystemUser(tx)
	if err != nil {
		return ConnectivityStatement{}, err
	}
	updated, err := TransitionStatement(tx, id, domain.CSInvalid, system, true)
	if err != nil {
		return ConnectivityStatement{}, err
	}
	text := "Statement invalidated"
	for _, r := range reasons {
		text += "\n- " + r
	}
	_, err = tx.CreateNote(Note{
		StatementID: id,
		UserID:      system.ID,
		Type:        domain.NoteAlert,
		Text:        text,
	})
	if err != nil {
		return ConnectivityStatement{}, err
	}
	return updated, nil
}

func findSentenceEdge(from, to domain.SentenceState) (sentenceEdge, bool) {
	for _, edge := range sentenceTransitions[from] {
		if edge.to == to {
			return edge, true
		}
	}
	return sentenceEdge{}, false
}

func findStatementEdge(from, to domain.CSState) (statementEdge, bool) {
	for _, edge := range statementTransitions[from] {
		if edge.to == to {
			return edge, true
		}
	}
	return statementEdge{}, false
}

func recordTransitionNote(tx Transaction, note Note, actor User, from, to string) error {
	system, err := EnsureSystemUser(tx)
	if err != nil {
		return err
	}
	note.UserID = system.ID
	note.Type = domain.NoteTransition
	note.Text = fmt.Sprintf("User %s %s transitioned this record from %s to %s",
		actor.FirstName, actor.LastName, from, to)
	_, err = tx.CreateNote(note)
	return err
}

// EnsureSystemUser resolves the well-known system identity, creating it on
// first use.
func EnsureSystemUser(tx Transaction) (User, error) {
	if u, ok := tx.FindUserByLogin(domain.SystemUserLogin); ok {
		return u, nil
	}
	return tx.CreateUser(User{
		Login:     domain.SystemUserLogin,
		FirstName: "System",
		LastName:  "User",
	})
}
