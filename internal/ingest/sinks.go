package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

// csvAppender appends rows to an append-only CSV file, writing the header
// when the file is created.
type csvAppender struct {
	mu     sync.Mutex
	path   string
	header []string
}

func newCSVAppender(path string, header []string) *csvAppender {
	return &csvAppender{path: path, header: header}
}

func (a *csvAppender) append(rows ...[]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, err := os.Stat(a.path)
	fresh := err != nil || info.Size() == 0
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.path, err)
	}
	defer func() { _ = f.Close() }()
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(a.header); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// AnomalyLog records ingestion anomalies as CSV rows
// (statement_id, entity_id, message, timestamp).
type AnomalyLog struct {
	appender *csvAppender
	nowFn    func() time.Time
}

// NewAnomalyLog opens (or creates) an anomaly log at path.
func NewAnomalyLog(path string) *AnomalyLog {
	return &AnomalyLog{
		appender: newCSVAppender(path, []string{"statement_id", "entity_id", "message", "timestamp"}),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Append writes one row per anomaly.
func (l *AnomalyLog) Append(anomalies ...domain.IngestionAnomaly) error {
	if l == nil || len(anomalies) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(anomalies))
	stamp := l.nowFn().Format(time.RFC3339)
	for _, a := range anomalies {
		rows = append(rows, []string{a.StatementID, a.EntityID, a.Message, stamp})
	}
	return l.appender.append(rows...)
}

// IngestedLog records successfully processed statement ids.
type IngestedLog struct {
	appender *csvAppender
	nowFn    func() time.Time
}

// NewIngestedLog opens (or creates) a success log at path.
func NewIngestedLog(path string) *IngestedLog {
	return &IngestedLog{
		appender: newCSVAppender(path, []string{"statement_id", "reference_uri", "timestamp"}),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Append writes one success row.
func (l *IngestedLog) Append(statementID, referenceURI string) error {
	if l == nil {
		return nil
	}
	return l.appender.append([]string{statementID, referenceURI, l.nowFn().Format(time.RFC3339)})
}
