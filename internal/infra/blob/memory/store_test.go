package memory

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/MetaCell/sckan-composer-sub001/internal/blob/core"
)

func TestPutGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Put(ctx, "k1", strings.NewReader("payload"), core.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k1", strings.NewReader("again"), core.PutOptions{}); err == nil {
		t.Fatalf("duplicate put must fail")
	}

	info, rc, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" || info.ContentType != "text/plain" {
		t.Fatalf("get = %q %+v", data, info)
	}

	removed, err := store.Delete(ctx, "k1")
	if err != nil || !removed {
		t.Fatalf("delete = %v, %v", removed, err)
	}
	if _, _, err := store.Get(ctx, "k1"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("get after delete = %v", err)
	}
}

func TestListOrdersByKey(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, key := range []string{"b/2", "a/1", "b/1"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "b/1" || infos[1].Key != "b/2" {
		t.Fatalf("list = %+v", infos)
	}
}

func TestPresignUnsupported(t *testing.T) {
	store := New()
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
