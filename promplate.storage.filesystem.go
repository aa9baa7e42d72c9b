package promplate

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FilesystemStorage stores each template version as a JSON file.
//
// Directory structure:
//
//	<root>/
//	  <template-name>/
//	    v1.json
//	    v2.json
type FilesystemStorage struct {
	mu     sync.RWMutex
	root   string
	closed bool
}

// FilesystemStorageDriver opens FilesystemStorage instances.
type FilesystemStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverFilesystem, &FilesystemStorageDriver{})
}

// Open creates a FilesystemStorage. The connection string is the root directory.
func (d *FilesystemStorageDriver) Open(connectionString string) (TemplateStorage, error) {
	return NewFilesystemStorage(connectionString)
}

// NewFilesystemStorage creates a storage rooted at root, creating the directory if needed.
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, NewStorageError(ErrMsgStorageRoot, "", nil)
	}
	if err := os.MkdirAll(root, FilesystemDirPermissions); err != nil {
		return nil, NewStorageError(ErrMsgStorageFailed, "", err)
	}
	return &FilesystemStorage{root: root}, nil
}

// Root returns the storage directory.
func (s *FilesystemStorage) Root() string { return s.root }

// Get retrieves the latest version of a template by name.
func (s *FilesystemStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, err := s.versions(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, NewTemplateNotFoundError(name)
	}
	return s.load(name, versions[0])
}

// GetVersion retrieves a specific version of a template.
func (s *FilesystemStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}
	return s.load(name, version)
}

// Save writes a new version file for the template.
func (s *FilesystemStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTemplateName(tmpl.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	dir := filepath.Join(s.root, tmpl.Name)
	if err := os.MkdirAll(dir, FilesystemDirPermissions); err != nil {
		return NewStorageError(ErrMsgStorageFailed, tmpl.Name, err)
	}

	versions, err := s.versions(tmpl.Name)
	if err != nil {
		return err
	}
	nextVersion := 1
	if len(versions) > 0 {
		nextVersion = versions[0] + 1
	}

	stored := newStoredVersion(tmpl, nextVersion, time.Now())
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return NewStorageError(ErrMsgStorageFailed, tmpl.Name, err)
	}
	if err := os.WriteFile(s.file(tmpl.Name, nextVersion), data, FilesystemFilePermissions); err != nil {
		return NewStorageError(ErrMsgStorageFailed, tmpl.Name, err)
	}

	writeBack(tmpl, stored)
	return nil
}

// Delete removes the template directory with all versions.
func (s *FilesystemStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTemplateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewTemplateNotFoundError(name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return NewStorageError(ErrMsgStorageFailed, name, err)
	}
	return nil
}

// List returns templates matching the query.
func (s *FilesystemStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}
	if query == nil {
		query = &TemplateQuery{}
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, NewStorageError(ErrMsgStorageFailed, "", err)
	}

	var results []*StoredTemplate
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !matchesName(name, query) {
			continue
		}
		versions, err := s.versions(name)
		if err != nil || len(versions) == 0 {
			continue
		}
		if !query.IncludeAllVersions {
			versions = versions[:1]
		}
		for _, version := range versions {
			tmpl, err := s.load(name, version)
			if err != nil {
				continue
			}
			if matchesTags(tmpl, query) {
				results = append(results, tmpl)
			}
		}
	}
	return sortAndPage(results, query), nil
}

// Exists checks if a template with the given name exists.
func (s *FilesystemStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateTemplateName(name); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStorageClosedError()
	}

	versions, err := s.versions(name)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// ListVersions returns all version numbers for a template, newest first.
func (s *FilesystemStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTemplateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}
	return s.versions(name)
}

// Close marks the storage as closed. Files are left in place.
func (s *FilesystemStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FilesystemStorage) file(name string, version int) string {
	return filepath.Join(s.root, name, FilesystemVersionPrefix+strconv.Itoa(version)+FilesystemTemplateSuffix)
}

// versions lists the version files of name, newest first. Called with the lock held.
func (s *FilesystemStorage) versions(name string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []int{}, nil
		}
		return nil, NewStorageError(ErrMsgStorageFailed, name, err)
	}

	versions := []int{}
	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() ||
			!strings.HasPrefix(filename, FilesystemVersionPrefix) ||
			!strings.HasSuffix(filename, FilesystemTemplateSuffix) {
			continue
		}
		digits := filename[len(FilesystemVersionPrefix) : len(filename)-len(FilesystemTemplateSuffix)]
		if version, err := strconv.Atoi(digits); err == nil && version > 0 {
			versions = append(versions, version)
		}
	}
	slices.SortFunc(versions, func(a, b int) int { return b - a })
	return versions, nil
}

// load reads one version file. Called with the lock held.
func (s *FilesystemStorage) load(name string, version int) (*StoredTemplate, error) {
	data, err := os.ReadFile(s.file(name, version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewTemplateVersionNotFoundError(name, version)
		}
		return nil, NewStorageError(ErrMsgStorageFailed, name, err)
	}

	var tmpl StoredTemplate
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, NewStorageError(ErrMsgStorageFailed, name, err)
	}
	return &tmpl, nil
}
