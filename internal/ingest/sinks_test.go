package ingest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestAnomalyLogWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies.csv")
	log := NewAnomalyLog(path)
	log.nowFn = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := log.Append(domain.IngestionAnomaly{StatementID: "cs-1", EntityID: "ent-1", Message: "unknown anatomical URI"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Append(domain.IngestionAnomaly{StatementID: "cs-2", Message: "dropped forward connection"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows := readCSVFile(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "statement_id" || rows[0][3] != "timestamp" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "cs-1" || rows[1][1] != "ent-1" || rows[1][2] != "unknown anatomical URI" {
		t.Fatalf("row = %v", rows[1])
	}
	if rows[1][3] != "2025-03-01T12:00:00Z" {
		t.Fatalf("timestamp = %q", rows[1][3])
	}
	if rows[2][0] != "cs-2" || rows[2][1] != "" {
		t.Fatalf("row = %v", rows[2])
	}
}

func TestAnomalyLogSkipsEmptyBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies.csv")
	if err := NewAnomalyLog(path).Append(); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty append must not create the file, stat = %v", err)
	}
}

func TestIngestedLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingested.csv")
	log := NewIngestedLog(path)
	log.nowFn = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	for _, id := range []string{"cs-1", "cs-2"} {
		if err := log.Append(id, "http://uri.interlex.org/composer/uris/ks/ext/"+id); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	rows := readCSVFile(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][1] != "reference_uri" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[2][0] != "cs-2" || rows[2][2] != "2025-03-01T12:00:00Z" {
		t.Fatalf("row = %v", rows[2])
	}
}
