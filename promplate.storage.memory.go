package promplate

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-memory TemplateStorage for tests and development.
// All data is lost when the process terminates.
type MemoryStorage struct {
	mu        sync.RWMutex
	templates map[string][]*StoredTemplate // name -> versions, newest first
	closed    bool
}

// MemoryStorageDriver opens MemoryStorage instances.
type MemoryStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverMemory, &MemoryStorageDriver{})
}

// Open creates a new MemoryStorage. The connection string is ignored.
func (d *MemoryStorageDriver) Open(string) (TemplateStorage, error) {
	return NewMemoryStorage(), nil
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{templates: make(map[string][]*StoredTemplate)}
}

// Get retrieves the latest version of a template by name.
func (s *MemoryStorage) Get(ctx context.Context, name string) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions := s.templates[name]
	if len(versions) == 0 {
		return nil, NewTemplateNotFoundError(name)
	}
	return copyStoredTemplate(versions[0]), nil
}

// GetVersion retrieves a specific version of a template.
func (s *MemoryStorage) GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	for _, tmpl := range s.templates[name] {
		if tmpl.Version == version {
			return copyStoredTemplate(tmpl), nil
		}
	}
	return nil, NewTemplateVersionNotFoundError(name, version)
}

// Save stores a template, creating a new version if one exists.
func (s *MemoryStorage) Save(ctx context.Context, tmpl *StoredTemplate) error {
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

	versions := s.templates[tmpl.Name]
	nextVersion := 1
	if len(versions) > 0 {
		nextVersion = versions[0].Version + 1
	}

	stored := newStoredVersion(tmpl, nextVersion, time.Now())
	writeBack(tmpl, stored)
	s.templates[tmpl.Name] = append([]*StoredTemplate{stored}, versions...)
	return nil
}

// Delete removes all versions of a template by name.
func (s *MemoryStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	if _, ok := s.templates[name]; !ok {
		return NewTemplateNotFoundError(name)
	}
	delete(s.templates, name)
	return nil
}

// List returns templates matching the query.
func (s *MemoryStorage) List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error) {
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

	var results []*StoredTemplate
	for name, versions := range s.templates {
		if !matchesName(name, query) || len(versions) == 0 {
			continue
		}
		if !query.IncludeAllVersions {
			versions = versions[:1]
		}
		for _, tmpl := range versions {
			if matchesTags(tmpl, query) {
				results = append(results, copyStoredTemplate(tmpl))
			}
		}
	}
	return sortAndPage(results, query), nil
}

// Exists checks if a template with the given name exists.
func (s *MemoryStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStorageClosedError()
	}
	return len(s.templates[name]) > 0, nil
}

// ListVersions returns all version numbers for a template, newest first.
func (s *MemoryStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions := s.templates[name]
	result := make([]int, len(versions))
	for i, tmpl := range versions {
		result[i] = tmpl.Version
	}
	return result, nil
}

// Close marks the storage as closed and drops its contents.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.templates = nil
	return nil
}
