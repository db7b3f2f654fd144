package tasks

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/desertthunder/gphotos-backup/internal/models"
)

const partialSuffix = ".partial"

// MediaStore writes downloaded bytes into the flat download location at the root of a filesystem.
type MediaStore struct {
	fs billy.Filesystem
}

// NewMediaStore creates a store rooted at fs.
func NewMediaStore(fs billy.Filesystem) *MediaStore {
	return &MediaStore{fs: fs}
}

// Filesystem returns the backing filesystem.
func (s *MediaStore) Filesystem() billy.Filesystem {
	return s.fs
}

// Save writes data to filename. The bytes land in a partial file first and are renamed into place,
// so an interrupted write never leaves a truncated file under the final name.
func (s *MediaStore) Save(filename string, data []byte) error {
	if err := models.ValidateFilename(filename); err != nil {
		return fmt.Errorf("refusing to write: %w", err)
	}

	partial := filename + partialSuffix
	if err := util.WriteFile(s.fs, partial, data, 0644); err != nil {
		s.fs.Remove(partial)
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := s.fs.Rename(partial, filename); err != nil {
		s.fs.Remove(partial)
		return fmt.Errorf("failed to move %s into place: %w", filename, err)
	}
	return nil
}

// Exists reports whether name exists on fs. Links are followed.
func exists(fs billy.Filesystem, name string) (bool, error) {
	_, err := fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", name, err)
	}
}
