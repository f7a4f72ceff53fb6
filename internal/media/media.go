package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store keeps uploaded files under root. Returned paths are relative to
// root and use forward slashes.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Store{root: root}, nil
}

// Save copies r into dir under a unique name that keeps the original
// file extension.
func (s *Store) Save(ctx context.Context, dir, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := path.Join(cleanDir(dir), uuid.NewString()+strings.ToLower(path.Ext(path.Base(filepath.ToSlash(filename)))))
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("close media file: %w", err)
	}
	return rel, nil
}

// Remove deletes a stored file; a file that is already gone is not an error.
func (s *Store) Remove(rel string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(path.Join("/", rel))))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// cleanDir keeps dir inside the media root.
func cleanDir(dir string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(dir)), "/")
}
