// Package memory implements an in-memory blob store used by tests.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/internal/blob/core"
)

type entry struct {
	info core.Info
	data []byte
}

// Store holds blobs in a process-local map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var _ core.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Driver reports the memory driver.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a new blob. Fails if the key exists.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	if key == "" {
		return core.Info{}, fmt.Errorf("blob key required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(data)
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     copyMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	s.entries[key] = entry{info: info, data: data}
	return info, nil
}

// Get returns a blob's metadata and contents.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, nil, err
	}
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, os.ErrNotExist)
	}
	return e.info, io.NopCloser(bytes.NewReader(e.data)), nil
}

// Head returns a blob's metadata.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, os.ErrNotExist)
	}
	return e.info, nil
}

// Delete removes a blob if present.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// List returns stored blobs under prefix ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []core.Info
	for key, e := range s.entries {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL is not supported by the in-memory driver.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
