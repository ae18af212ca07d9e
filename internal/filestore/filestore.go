// Package filestore archives completed intakes as reviewable file bundles:
// one folder per submission holding a text summary plus every uploaded
// attachment, grouped by topic. Bundles land on local disk or in a GCS bucket.
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Storage writes archive objects under slash-separated paths.
type Storage interface {
	// Save writes one object, replacing any prior content at path.
	Save(ctx context.Context, path string, r io.Reader) error
}

// Fetcher downloads the content behind a transport file reference.
type Fetcher interface {
	FetchFile(ctx context.Context, ref models.FileRef) (io.ReadCloser, error)
}

// LocalStorage stores archive objects under a root directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a disk-backed Storage rooted at dir.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive root %s: %w", dir, err)
	}
	return &LocalStorage{root: dir}, nil
}

func (s *LocalStorage) Save(ctx context.Context, path string, r io.Reader) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// sanitizeComponent makes a string safe as a single path component.
func sanitizeComponent(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	s = replacer.Replace(s)
	if s == "" {
		s = "unnamed"
	}
	return s
}
