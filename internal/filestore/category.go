package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sitelog/internal/blogerr"
)

// CategoryDescriptor is the content of category.json.
// Keys this package does not know about are kept in Extra and written back untouched.
type CategoryDescriptor struct {
	Name        string
	Description string
	Order       *int
	Extra       map[string]json.RawMessage
}

// UnmarshalJSON decodes the known keys and keeps the rest.
func (d *CategoryDescriptor) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	if err := takeField(fields, "name", &d.Name); err != nil {
		return err
	}
	if err := takeField(fields, "description", &d.Description); err != nil {
		return err
	}
	if err := takeField(fields, "order", &d.Order); err != nil {
		return err
	}
	d.Extra = fields
	return nil
}

// MarshalJSON writes the known keys on top of any preserved extras.
func (d CategoryDescriptor) MarshalJSON() ([]byte, error) {
	out := cloneExtra(d.Extra)
	if err := putField(out, "name", d.Name); err != nil {
		return nil, err
	}
	if err := putField(out, "description", d.Description); err != nil {
		return nil, err
	}
	if d.Order != nil {
		if err := putField(out, "order", *d.Order); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// ReadCategoryDescriptor loads <root>/<slug>/category.json.
func (s *FileStore) ReadCategoryDescriptor(slug string) (CategoryDescriptor, error) {
	dir, err := s.categoryDir(slug)
	if err != nil {
		return CategoryDescriptor{}, err
	}

	var descriptor CategoryDescriptor
	if err := readJSON(filepath.Join(dir, CategoryDescriptorFile), &descriptor); err != nil {
		return CategoryDescriptor{}, err
	}
	return descriptor, nil
}

// WriteCategoryDescriptor creates the category directory when needed and writes category.json.
func (s *FileStore) WriteCategoryDescriptor(slug string, descriptor CategoryDescriptor) error {
	dir, err := s.categoryDir(slug)
	if err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, CategoryDescriptorFile), descriptor)
}

// CategoryExists reports whether the category directory is present.
func (s *FileStore) CategoryExists(slug string) (bool, error) {
	dir, err := s.categoryDir(slug)
	if err != nil {
		return false, err
	}
	return exists(dir)
}

// RenameCategoryDir moves a category directory. The destination must not exist.
func (s *FileStore) RenameCategoryDir(oldSlug, newSlug string) error {
	oldDir, err := s.categoryDir(oldSlug)
	if err != nil {
		return err
	}
	newDir, err := s.categoryDir(newSlug)
	if err != nil {
		return err
	}
	if oldSlug == newSlug {
		return nil
	}

	found, err := exists(oldDir)
	if err != nil {
		return err
	}
	if !found {
		return blogerr.NotFound("category directory %s", oldSlug)
	}

	taken, err := exists(newDir)
	if err != nil {
		return err
	}
	if taken {
		return blogerr.Conflict("category directory %s", newSlug)
	}

	if err := os.Rename(oldDir, newDir); err != nil {
		return blogerr.IO(err, "rename category %s to %s", oldSlug, newSlug)
	}
	return nil
}

// DeleteCategoryDir removes the category tree. Missing directories are not an error.
func (s *FileStore) DeleteCategoryDir(slug string) error {
	dir, err := s.categoryDir(slug)
	if err != nil {
		return err
	}
	return removeAll(dir)
}

// ListCategoryDirs returns category slugs found under the root, excluding dotfiles and plain files.
func (s *FileStore) ListCategoryDirs() ([]string, error) {
	return listDirs(s.root)
}
