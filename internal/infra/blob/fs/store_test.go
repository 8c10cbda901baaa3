package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	body := "composer_uri,reference_uri\n"

	info, err := store.Put(ctx, "exports/batch1.csv", strings.NewReader(body), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"export_batch_id": "b1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256([]byte(body))
	if info.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("etag = %q", info.ETag)
	}
	if info.Size != int64(len(body)) {
		t.Fatalf("size = %d", info.Size)
	}

	got, rc, err := store.Get(ctx, "exports/batch1.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != body {
		t.Fatalf("content = %q", data)
	}
	if got.ContentType != "text/csv" || got.Metadata["export_batch_id"] != "b1" {
		t.Fatalf("metadata = %+v", got)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "a.csv", strings.NewReader("one"), core.PutOptions{}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, "a.csv", strings.NewReader("two"), core.PutOptions{}); err == nil {
		t.Fatalf("second put must fail")
	}
}

func TestSanitizeKeyRejectsEscapes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"", "../outside", "/abs/path"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q must be rejected", key)
		}
	}
}

func TestListFiltersByPrefixAndSkipsSidecars(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"exports/b.csv", "exports/a.csv", "other/c.csv"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "exports/a.csv" || infos[1].Key != "exports/b.csv" {
		t.Fatalf("list = %+v", infos)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "gone.csv", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	removed, err := store.Delete(ctx, "gone.csv")
	if err != nil || !removed {
		t.Fatalf("delete = %v, %v", removed, err)
	}
	removed, err = store.Delete(ctx, "gone.csv")
	if err != nil || removed {
		t.Fatalf("second delete = %v, %v", removed, err)
	}
	if _, err := store.Head(ctx, "gone.csv"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("head after delete = %v", err)
	}
}

func TestPresignURLGetOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Put(ctx, "signed.csv", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "signed.csv", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if url != "http://local.blob/signed.csv" {
		t.Fatalf("url = %q", url)
	}
	if _, err := store.PresignURL(ctx, "signed.csv", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}
