package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FSStore keeps blobs as plain files under a root directory. Intended for
// local development and tests; the key's path segments become directories.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("blob fs mkdir error: %w", err)
	}

	// Write to a temp file in the same directory, then rename, so readers
	// never observe a partially written blob.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("blob fs temp file error: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("blob fs write error: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("blob fs close error: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("blob fs rename error: %w", err)
	}

	return nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob fs read error: %w", err)
	}

	return data, nil
}

// SignedURL returns a file:// URL. The fs driver has no access control, so
// the URL is valid for as long as the file exists.
func (s *FSStore) SignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("blob fs stat error: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("blob fs abs path error: %w", err)
	}

	return "file://" + filepath.ToSlash(abs), nil
}
