package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports an invariant violation detected at write time. The
// transaction that produced it is rolled back.
type ValidationError struct {
	Result Result
}

func (e ValidationError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		msgs = append(msgs, v.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// TransitionNotAllowedError is returned when the lifecycle engine rejects a
// state transition. No side effects are left behind.
type TransitionNotAllowedError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
	Reason string
}

func (e TransitionNotAllowedError) Error() string {
	msg := fmt.Sprintf("transition not allowed for %s %s: %s -> %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IntegrityError reports a uniqueness collision in the entity store.
type IntegrityError struct {
	Entity  EntityType
	Message string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on %s: %s", e.Entity, e.Message)
}

// IngestionAnomaly is a recoverable input defect observed while ingesting.
// It is logged and processing continues.
type IngestionAnomaly struct {
	StatementID string
	EntityID    string
	Message     string
}

func (a IngestionAnomaly) Error() string {
	if a.EntityID != "" {
		return fmt.Sprintf("ingestion anomaly on %s (%s): %s", a.StatementID, a.EntityID, a.Message)
	}
	return fmt.Sprintf("ingestion anomaly on %s: %s", a.StatementID, a.Message)
}
