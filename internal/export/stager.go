package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	AttachmentName = "orders-export.json"
	ContentType    = "application/json"
)

type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// BufferStager serves the payload straight from memory.
type BufferStager struct{}

func (BufferStager) Stage(_ context.Context, _ int64, payload []byte) (*Attachment, error) {
	return &Attachment{
		Filename:    AttachmentName,
		ContentType: ContentType,
		Size:        int64(len(payload)),
		Body:        io.NopCloser(bytes.NewReader(payload)),
	}, nil
}

// FileStager writes each export to its own file under dir and removes the
// file once the body is closed. Concurrent exports for the same user never
// share a path.
type FileStager struct {
	dir string
}

func NewFileStager(dir string) (*FileStager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &FileStager{dir: dir}, nil
}

func (s *FileStager) Stage(ctx context.Context, userID int64, payload []byte) (*Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("orders-export-%d-%s.json", userID, uuid.NewString())
	final := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("publish staging file: %w", err)
	}

	f, err := os.Open(final)
	if err != nil {
		_ = os.Remove(final)
		return nil, fmt.Errorf("open staging file: %w", err)
	}
	return &Attachment{
		Filename:    AttachmentName,
		ContentType: ContentType,
		Size:        int64(len(payload)),
		Body:        &stagedFile{File: f, path: final},
	}, nil
}

type stagedFile struct {
	*os.File
	path string
}

func (f *stagedFile) Close() error {
	return errors.Join(f.File.Close(), os.Remove(f.path))
}
