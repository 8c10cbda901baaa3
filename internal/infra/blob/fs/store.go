// Package fs implements a filesystem-backed blob store for export artifacts.
// Metadata is kept in a .meta sidecar file next to each blob.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MetaCell/sckan-composer-sub001/internal/blob/core"
)

const (
	metaSuffix  = ".meta"
	defaultRoot = "./artifacts"
)

// Store keeps blobs as plain files under a root directory.
type Store struct {
	root string
}

var _ core.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root (default ./artifacts).
func New(root string) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// Driver reports the filesystem driver.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func sanitizeKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("blob key required")
	}
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return clean, nil
}

func (s *Store) paths(key string) (blobPath, metaPath string, err error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	blobPath = filepath.Join(s.root, clean)
	return blobPath, blobPath + metaSuffix, nil
}

// Put writes a new blob. The write is staged to a temp file and renamed into
// place so readers never observe partial content.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	blobPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(blobPath); err == nil {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	} else if !errors.Is(err, os.ErrNotExist) {
		return core.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(blobPath), ".put-*")
	if err != nil {
		return core.Info{}, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return core.Info{}, err
	}
	now := time.Now().UTC()
	meta := metaFile{
		ContentType: opts.ContentType,
		Metadata:    copyMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(hasher.Sum(nil)),
		Size:        size,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmpName, blobPath); err != nil {
		_ = os.Remove(metaPath)
		return core.Info{}, err
	}
	return s.info(key, meta), nil
}

// Get opens a blob for reading along with its metadata.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	blobPath, _, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(blobPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, f, nil
}

// Head returns metadata for a blob without opening it.
func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	if err := ctx.Err(); err != nil {
		return core.Info{}, err
	}
	blobPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(blobPath); err != nil {
		return core.Info{}, err
	}
	meta, err := readMeta(metaPath)
	if err != nil {
		return core.Info{}, err
	}
	return s.info(key, meta), nil
}

// Delete removes a blob and its sidecar. Missing blobs are not an error.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	blobPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(blobPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root and returns blobs under prefix ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		meta, err := readMeta(path + metaSuffix)
		if err != nil {
			return err
		}
		infos = append(infos, s.info(key, meta))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a stable local URL; only GET is supported.
func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if opts.Method != "" && opts.Method != "GET" {
		return "", core.ErrUnsupported
	}
	if _, err := s.Head(ctx, key); err != nil {
		return "", err
	}
	return localURL(key), nil
}

func (s *Store) info(key string, meta metaFile) core.Info {
	return core.Info{
		Key:          filepath.ToSlash(key),
		Size:         meta.Size,
		ContentType:  meta.ContentType,
		ETag:         meta.ETag,
		Metadata:     copyMetadata(meta.Metadata),
		LastModified: meta.UpdatedAt,
		URL:          localURL(key),
	}
}

func localURL(key string) string {
	return "http://local.blob/" + filepath.ToSlash(key)
}

func writeMeta(path string, meta metaFile) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readMeta(path string) (metaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metaFile{}, err
	}
	var meta metaFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return metaFile{}, fmt.Errorf("decode blob metadata: %w", err)
	}
	return meta, nil
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
