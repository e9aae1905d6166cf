package blobStore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore holds original uploads. The core only keeps the returned uri.
type BlobStore interface {
	Put(ctx context.Context, data []byte, pathHint string) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
}

var ErrOutsideRoot = errors.New("blob uri outside of store root")

// FileBlobStore writes blobs under a root directory and hands out file:// uris.
type FileBlobStore struct {
	root string
}

func NewFileBlobStore(root string) (*FileBlobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileBlobStore{root: abs}, nil
}

// PathHint builds the storage layout used for uploads: one folder per jurisdiction.
func PathHint(jurisdictionId, documentId, fileName string) string {
	return filepath.Join("jurisdictions", sanitize(jurisdictionId), documentId+"-"+sanitize(filepath.Base(fileName)))
}

func (s *FileBlobStore) Put(ctx context.Context, data []byte, pathHint string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, filepath.Clean("/"+pathHint))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	// write then rename so a crashed upload never leaves a truncated blob behind
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String(), nil
}

func (s *FileBlobStore) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *FileBlobStore) Delete(ctx context.Context, uri string) error {
	path, err := s.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileBlobStore) resolve(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "", fmt.Errorf("unsupported blob uri %q", uri)
	}
	path := filepath.FromSlash(u.Path)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrOutsideRoot
	}
	return path, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
