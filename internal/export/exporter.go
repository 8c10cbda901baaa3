package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/internal/blob"
	"github.com/MetaCell/sckan-composer-sub001/internal/core"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// ErrNotStaff rejects export requests from non-staff users before any
// mutation happens.
var ErrNotStaff = errors.New("export requires a staff user")

// ErrNothingToExport reports an empty NPO_APPROVED selection.
var ErrNothingToExport = errors.New("no statements ready for export")

// Exporter runs export batches over the store and emits CSV artifacts.
type Exporter struct {
	store  domain.PersistentStore
	blobs  blob.Store
	logger core.Logger
	nowFn  func() time.Time
}

// Option customises exporter construction.
type Option func(*Exporter)

// WithLogger overrides the exporter logger.
func WithLogger(logger core.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the exporter clock.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithBlobStore attaches the artifact sink. Without one the CSV is only
// returned to the caller.
func WithBlobStore(store blob.Store) Option {
	return func(e *Exporter) { e.blobs = store }
}

// NewExporter constructs an exporter over the supplied store.
func NewExporter(store domain.PersistentStore, opts ...Option) *Exporter {
	e := &Exporter{
		store:  store,
		logger: core.NopLogger(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes a completed export.
type Result struct {
	BatchID      string
	StatementIDs []string
	CSV          []byte
	ArtifactKey  string
	ArtifactURL  string
}

// Run exports every NPO_APPROVED statement in id order inside one
// transaction, then renders the CSV and stores the artifact. If any
// transition fails the transaction rolls back and no partial batch is
// observable; the CSV is only written after a successful commit.
func (e *Exporter) Run(ctx context.Context, userID string) (Result, error) {
	user, ok := e.findUser(ctx, userID)
	if !ok {
		return Result{}, domain.NotFoundError{Entity: domain.EntityUser, ID: userID}
	}
	if !user.IsStaff {
		return Result{}, fmt.Errorf("user %s: %w", userID, ErrNotStaff)
	}

	var batch domain.ExportBatch
	var exported []domain.ConnectivityStatement
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		exported = nil
		statements := tx.ListStatementsByState(domain.CSNPOApproved)
		if len(statements) == 0 {
			return ErrNothingToExport
		}
		ids := make([]string, 0, len(statements))
		for _, cs := range statements {
			updated, err := core.TransitionStatement(tx, cs.ID, domain.CSExported, user, true)
			if err != nil {
				return err
			}
			exported = append(exported, updated)
			ids = append(ids, updated.ID)
		}
		var err error
		batch, err = tx.CreateExportBatch(domain.ExportBatch{OwnerID: user.ID, StatementIDs: ids})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	var data []byte
	if viewErr := e.store.View(ctx, func(view domain.TransactionView) error {
		var renderErr error
		data, renderErr = RenderCSV(view, exported)
		return renderErr
	}); viewErr != nil {
		return Result{}, viewErr
	}

	result := Result{BatchID: batch.ID, StatementIDs: batch.StatementIDs, CSV: data}
	if e.blobs != nil {
		key := fmt.Sprintf("exports/export_batch_%s_%s.csv",
			e.nowFn().UTC().Format("20060102T150405Z"), batch.ID)
		info, putErr := e.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: "text/csv",
			Metadata:    map[string]string{"export_batch_id": batch.ID},
		})
		if putErr != nil {
			return result, fmt.Errorf("store export artifact: %w", putErr)
		}
		result.ArtifactKey = info.Key
		result.ArtifactURL = info.URL
		if _, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.SetExportBatchArtifact(batch.ID, info.Key, info.URL)
			return err
		}); err != nil {
			return result, err
		}
	}
	e.logger.Info("export batch completed",
		"batch_id", batch.ID, "statements", len(batch.StatementIDs), "artifact_key", result.ArtifactKey)
	return result, nil
}

func (e *Exporter) findUser(ctx context.Context, userID string) (domain.User, bool) {
	var user domain.User
	found := false
	_ = e.store.View(ctx, func(view domain.TransactionView) error {
		user, found = view.FindUser(userID)
		return nil
	})
	return user, found
}
