package external

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"social-brand-analyzer/pkg/models"

	"github.com/rs/zerolog/log"
)

// ReferenceUpload is one uploaded reference image
type ReferenceUpload struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// ReferenceStore interface for reference image storage
type ReferenceStore interface {
	Save(ctx context.Context, analysisID, brand, model string, files []ReferenceUpload) ([]string, error)
	Remove(analysisID string) error
	Contains(path string) bool
}

// LocalReferenceStore keeps reference images on the local filesystem under
// <root>/reference/<analysis>/<brand>/<model>/ref_<n>.<ext>
type LocalReferenceStore struct {
	root string
	mu   sync.Mutex
}

// NewLocalReferenceStore creates a store rooted at dir
func NewLocalReferenceStore(dir string) *LocalReferenceStore {
	return &LocalReferenceStore{root: dir}
}

// Save writes up to three image files and returns their paths. Files that
// are not images are skipped.
func (s *LocalReferenceStore) Save(ctx context.Context, analysisID, brand, model string, files []ReferenceUpload) ([]string, error) {
	dir, err := s.modelDir(analysisID, brand, model)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reference directory: %w", err)
	}

	if len(files) > models.MaxReferenceImagesPerModel {
		files = files[:models.MaxReferenceImagesPerModel]
	}

	paths := make([]string, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		if !strings.HasPrefix(file.ContentType, "image/") {
			log.Debug().Str("filename", file.Filename).Str("content_type", file.ContentType).Msg("skipping non-image reference upload")
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("ref_%d.%s", i+1, fileExtension(file.Filename)))
		if err := writeFile(path, file.Data); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}

	log.Debug().
		Str("analysis_id", analysisID).
		Str("brand", brand).
		Str("model", model).
		Int("count", len(paths)).
		Msg("stored reference images")

	return paths, nil
}

// Remove deletes every reference image of an analysis
func (s *LocalReferenceStore) Remove(analysisID string) error {
	id, err := safeComponent(analysisID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.root, "reference", id)); err != nil {
		return fmt.Errorf("failed to remove reference images: %w", err)
	}
	return nil
}

// Contains reports whether path lies inside the store's reference tree
func (s *LocalReferenceStore) Contains(path string) bool {
	base, err := filepath.Abs(filepath.Join(s.root, "reference"))
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *LocalReferenceStore) modelDir(analysisID, brand, model string) (string, error) {
	parts := []string{s.root, "reference"}
	for _, component := range []string{analysisID, brand, model} {
		safe, err := safeComponent(component)
		if err != nil {
			return "", err
		}
		parts = append(parts, safe)
	}
	return filepath.Join(parts...), nil
}

// safeComponent makes a user-supplied name usable as a single path element.
func safeComponent(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("invalid path component %q", name)
	}
	return name, nil
}

func fileExtension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return "jpg"
	}

	ext := strings.ToLower(filename[i+1:])
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "jpg"
		}
	}
	return ext
}

func writeFile(path string, data io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
