package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/internal/core"
	blobmem "github.com/MetaCell/sckan-composer-sub001/internal/infra/blob/memory"
	"github.com/MetaCell/sckan-composer-sub001/internal/infra/persistence/memory"
	"github.com/MetaCell/sckan-composer-sub001/pkg/domain"
)

func newExportStore(t *testing.T) (*memory.Store, domain.User) {
	t.Helper()
	store := memory.NewStore(core.NewRulesEngine())
	var staff domain.User
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		staff, err = tx.CreateUser(domain.User{ID: "user-staff", Login: "carol", FirstName: "Carol", LastName: "Diaz", IsStaff: true})
		if err != nil {
			return err
		}
		if _, err := tx.CreateUser(domain.User{ID: "user-reader", Login: "rex", FirstName: "Rex", LastName: "Ito"}); err != nil {
			return err
		}
		if _, err := tx.CreateAnatomicalEntity(domain.AnatomicalEntity{ID: "ent-gang", Name: "nodose ganglion", OntologyURI: "http://purl.obolibrary.org/obo/UBERON_0005363"}); err != nil {
			return err
		}
		if _, err := tx.CreateAnatomicalEntity(domain.AnatomicalEntity{ID: "ent-organ", Name: "stomach wall", OntologyURI: "http://purl.obolibrary.org/obo/UBERON_0000945"}); err != nil {
			return err
		}
		if _, err := tx.CreatePopulationSet(domain.PopulationSet{ID: "pop-1", Name: "pelvic_set"}); err != nil {
			return err
		}
		if _, err := tx.CreateSpecies(domain.Species{ID: "sp-1", Name: "Mus musculus"}); err != nil {
			return err
		}
		if _, err := tx.CreateBiologicalSex(domain.BiologicalSex{ID: "sex-1", Name: "male"}); err != nil {
			return err
		}
		if _, err := tx.CreatePhenotype(domain.Phenotype{ID: "ph-1", Name: "parasympathetic"}); err != nil {
			return err
		}
		if _, err := tx.CreateSentence(domain.Sentence{ID: "sent-1", Title: "Nodose ganglion projects to the stomach"}); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store, staff
}

func seedApprovedStatement(t *testing.T, store *memory.Store, id, knowledge string) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		cs, err := tx.CreateConnectivityStatement(domain.ConnectivityStatement{
			ID:                 id,
			SentenceID:         "sent-1",
			KnowledgeStatement: knowledge,
			OriginIDs:          []string{"ent-gang"},
			Destinations: []domain.Destination{{
				Type:                "AXON-T",
				AnatomicalEntityIDs: []string{"ent-organ"},
				FromEntityIDs:       []string{"ent-gang"},
			}},
			SpeciesIDs:      []string{"sp-1"},
			BiologicalSexID: "sex-1",
			PhenotypeID:     "ph-1",
			PopulationID:    "pop-1",
			CurieID:         "SCKAN:" + id,
			ProvenanceURIs:  []string{"https://doi.org/10.1000/demo"},
			OwnerID:         "user-staff",
		})
		if err != nil {
			return err
		}
		staff, ok := tx.FindUser("user-staff")
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: "user-staff"}
		}
		for _, to := range []domain.CSState{
			domain.CSComposeNow,
			domain.CSInProgress,
			domain.CSToBeReviewed,
			domain.CSNPOApproved,
		} {
			if _, err := core.TransitionStatement(tx, cs.ID, to, staff, false); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("seed statement %s: %v", id, err)
	}
}

func exportClock() func() time.Time {
	return func() time.Time { return time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC) }
}

func TestRunRejectsNonStaff(t *testing.T) {
	store, _ := newExportStore(t)
	seedApprovedStatement(t, store, "cs-a", "statement a")

	_, err := NewExporter(store).Run(context.Background(), "user-reader")
	if !errors.Is(err, ErrNotStaff) {
		t.Fatalf("expected ErrNotStaff, got %v", err)
	}
	for _, cs := range store.ListConnectivityStatements() {
		if cs.State != domain.CSNPOApproved {
			t.Fatalf("statement %s mutated to %s", cs.ID, cs.State)
		}
	}
}

func TestRunRejectsUnknownUser(t *testing.T) {
	store, _ := newExportStore(t)
	_, err := NewExporter(store).Run(context.Background(), "nobody")
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRunRejectsEmptySelection(t *testing.T) {
	store, staff := newExportStore(t)
	_, err := NewExporter(store).Run(context.Background(), staff.ID)
	if !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}
	if batches := store.ListExportBatches(); len(batches) != 0 {
		t.Fatalf("batches = %+v", batches)
	}
}

func TestRunExportsApprovedStatements(t *testing.T) {
	store, staff := newExportStore(t)
	seedApprovedStatement(t, store, "cs-a", "statement a")
	seedApprovedStatement(t, store, "cs-b", "statement b\nsecond line")

	blobs := blobmem.New()
	exporter := NewExporter(store, WithBlobStore(blobs), WithClock(exportClock()))
	res, err := exporter.Run(context.Background(), staff.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.BatchID == "" {
		t.Fatalf("batch id missing")
	}
	if len(res.StatementIDs) != 2 || res.StatementIDs[0] != "cs-a" || res.StatementIDs[1] != "cs-b" {
		t.Fatalf("statement ids = %v", res.StatementIDs)
	}

	for i, id := range res.StatementIDs {
		cs, ok := store.GetConnectivityStatement(id)
		if !ok {
			t.Fatalf("statement %s missing", id)
		}
		if cs.State != domain.CSExported || !cs.HasStatementBeenExported {
			t.Fatalf("statement %s = %s exported=%v", id, cs.State, cs.HasStatementBeenExported)
		}
		if cs.PopulationIndex == nil || *cs.PopulationIndex != i+1 {
			t.Fatalf("statement %s index = %v", id, cs.PopulationIndex)
		}
	}
	first, _ := store.GetConnectivityStatement("cs-a")
	if first.ShortName != "neuron type pelvic_set 1" {
		t.Fatalf("short name = %q", first.ShortName)
	}
	if first.ReferenceURI != "https://uri.interlex.org/composer/uris/set/pelvic_set/1" {
		t.Fatalf("reference uri = %q", first.ReferenceURI)
	}

	wantKey := "exports/export_batch_20250512T090000Z_" + res.BatchID + ".csv"
	if res.ArtifactKey != wantKey {
		t.Fatalf("artifact key = %q, want %q", res.ArtifactKey, wantKey)
	}
	batches := store.ListExportBatches()
	if len(batches) != 1 || batches[0].ID != res.BatchID {
		t.Fatalf("batches = %+v", batches)
	}
	if batches[0].OwnerID != staff.ID || batches[0].ArtifactKey != wantKey {
		t.Fatalf("batch = %+v", batches[0])
	}

	_, rc, err := blobs.Get(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("artifact get: %v", err)
	}
	stored, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !bytes.Equal(stored, res.CSV) {
		t.Fatalf("stored artifact differs from returned CSV")
	}

	rows, err := csv.NewReader(bytes.NewReader(res.CSV)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	header := rows[0]
	if len(header) != 20 || header[0] != "composer_uri" || header[3] != "short_name" || header[12] != "population_index" || header[19] != "owner" {
		t.Fatalf("header = %v", header)
	}

	rowA := rows[1]
	if rowA[0] != core.ComposerURI("cs-a") {
		t.Fatalf("composer uri = %q", rowA[0])
	}
	if rowA[1] != "https://uri.interlex.org/composer/uris/set/pelvic_set/1" {
		t.Fatalf("reference uri cell = %q", rowA[1])
	}
	if rowA[2] != "SCKAN:cs-a" || rowA[3] != "neuron type pelvic_set 1" {
		t.Fatalf("curie/short name = %q %q", rowA[2], rowA[3])
	}
	if rowA[4] != "exported" {
		t.Fatalf("state cell = %q", rowA[4])
	}
	if rowA[8] != "male" || rowA[9] != "Mus musculus" || rowA[10] != "parasympathetic" {
		t.Fatalf("lookup cells = %q %q %q", rowA[8], rowA[9], rowA[10])
	}
	if rowA[11] != "pelvic_set" || rowA[12] != "1" {
		t.Fatalf("population cells = %q %q", rowA[11], rowA[12])
	}
	if rowA[13] != "nodose ganglion (http://purl.obolibrary.org/obo/UBERON_0005363)" {
		t.Fatalf("origins cell = %q", rowA[13])
	}
	if rowA[15] != "stomach wall (http://purl.obolibrary.org/obo/UBERON_0000945) [AXON-T]" {
		t.Fatalf("destinations cell = %q", rowA[15])
	}
	if rowA[17] != "https://doi.org/10.1000/demo" {
		t.Fatalf("provenance cell = %q", rowA[17])
	}
	if rowA[19] != "Carol Diaz" {
		t.Fatalf("owner cell = %q", rowA[19])
	}

	rowB := rows[2]
	if rowB[18] != `statement b\nsecond line` {
		t.Fatalf("knowledge cell = %q", rowB[18])
	}
}

func TestEscapeNewlines(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\nb", `a\nb`},
		{`a\b`, `a\\b`},
		{"a\\\nb", `a\\\nb`},
	}
	for _, tc := range cases {
		if got := EscapeNewlines(tc.in); got != tc.want {
			t.Fatalf("EscapeNewlines(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
