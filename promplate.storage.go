package promplate

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StoredTemplate is a template source saved in a storage backend, with the
// defaults a document frontmatter would carry.
type StoredTemplate struct {
	// ID is unique per saved version
	ID string `json:"id"`

	// Name is the lookup key shared by all versions
	Name string `json:"name"`

	// Source is the raw template source
	Source string `json:"source"`

	// Version starts at 1 and grows with each Save of the same name
	Version int `json:"version"`

	// Context becomes the template defaults or the node partial context
	Context map[string]any `json:"context,omitempty"`

	// Config becomes the node default configuration
	Config Config `json:"config,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
	Tags     []string          `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewStoredTemplate prepares a document for saving.
func NewStoredTemplate(doc *Document) *StoredTemplate {
	return &StoredTemplate{
		Name:    doc.Name,
		Source:  doc.Body,
		Context: doc.Context,
		Config:  doc.Config,
	}
}

// Document converts the stored template back into a document.
func (st *StoredTemplate) Document() *Document {
	return &Document{
		Name:    st.Name,
		Context: maps.Clone(st.Context),
		Config:  maps.Clone(st.Config),
		Body:    st.Source,
	}
}

// Template builds a Template from the stored source.
func (st *StoredTemplate) Template(opts ...TemplateOption) *Template {
	return st.Document().Template(opts...)
}

// Node builds a Node from the stored source.
func (st *StoredTemplate) Node(opts ...Option) *Node {
	return st.Document().Node(opts...)
}

// TemplateQuery filters List results.
type TemplateQuery struct {
	// NamePrefix filters to names starting with this prefix
	NamePrefix string

	// NameContains filters to names containing this substring
	NameContains string

	// Tags filters to templates having ALL specified tags
	Tags []string

	// Limit is the maximum number of results (0 = no limit)
	Limit int

	// Offset is the number of results to skip
	Offset int

	// IncludeAllVersions includes all versions, not just the latest
	IncludeAllVersions bool
}

// TemplateStorage is the interface for pluggable storage backends.
// Implementations must be safe for concurrent use.
type TemplateStorage interface {
	// Get retrieves the latest version of a template by name
	Get(ctx context.Context, name string) (*StoredTemplate, error)

	// GetVersion retrieves a specific version of a template
	GetVersion(ctx context.Context, name string, version int) (*StoredTemplate, error)

	// Save stores a new version of tmpl. ID, Version, CreatedAt and UpdatedAt
	// are assigned by the storage and written back to tmpl.
	Save(ctx context.Context, tmpl *StoredTemplate) error

	// Delete removes all versions of a template
	Delete(ctx context.Context, name string) error

	// List returns templates matching the query, ordered by name then version descending
	List(ctx context.Context, query *TemplateQuery) ([]*StoredTemplate, error)

	// Exists checks if a template with the given name exists
	Exists(ctx context.Context, name string) (bool, error)

	// ListVersions returns the version numbers of a template, newest first
	ListVersions(ctx context.Context, name string) ([]int, error)

	// Close releases any resources held by the storage
	Close() error
}

// StorageDriver is a factory for storage instances. Drivers register themselves during init().
type StorageDriver interface {
	// Open creates a storage from a driver-specific connection string
	Open(connectionString string) (TemplateStorage, error)
}

var (
	storageDriversMu sync.RWMutex
	storageDrivers   = make(map[string]StorageDriver)
)

// RegisterStorageDriver registers a storage driver by name.
// Panics if driver is nil or the name is taken.
func RegisterStorageDriver(name string, driver StorageDriver) {
	storageDriversMu.Lock()
	defer storageDriversMu.Unlock()

	if driver == nil {
		panic(NewRegistryError(ErrMsgUnknownDriver, name))
	}
	if _, exists := storageDrivers[name]; exists {
		panic(NewRegistryError(ErrMsgDriverExists, name))
	}
	storageDrivers[name] = driver
}

// OpenStorage opens a storage with the named driver.
//
//	storage, err := promplate.OpenStorage("memory", "")
//	storage, err := promplate.OpenStorage("filesystem", "/path/to/templates")
//	storage, err := promplate.OpenStorage("postgres", "postgres://localhost/prompts")
func OpenStorage(driverName, connectionString string) (TemplateStorage, error) {
	storageDriversMu.RLock()
	driver, ok := storageDrivers[driverName]
	storageDriversMu.RUnlock()

	if !ok {
		return nil, NewRegistryError(ErrMsgUnknownDriver, driverName)
	}
	return driver.Open(connectionString)
}

// ListStorageDrivers returns the registered driver names, sorted.
func ListStorageDrivers() []string {
	storageDriversMu.RLock()
	defer storageDriversMu.RUnlock()
	return slices.Sorted(maps.Keys(storageDrivers))
}

// LoadTemplate fetches the latest version of name from storage as a Template.
func LoadTemplate(ctx context.Context, storage TemplateStorage, name string, opts ...TemplateOption) (*Template, error) {
	st, err := storage.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return st.Template(opts...), nil
}

// LoadNode fetches the latest version of name from storage as a Node.
func LoadNode(ctx context.Context, storage TemplateStorage, name string, opts ...Option) (*Node, error) {
	st, err := storage.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return st.Node(opts...), nil
}

// SaveDocument stores doc as a new version and returns the stored record.
func SaveDocument(ctx context.Context, storage TemplateStorage, doc *Document) (*StoredTemplate, error) {
	st := NewStoredTemplate(doc)
	if err := storage.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// validateTemplateName rejects names that cannot be used as a key in every backend.
func validateTemplateName(name string) error {
	if name == "" {
		return NewStorageError(ErrMsgInvalidName, name, nil)
	}
	if strings.Contains(name, "..") {
		return NewStorageError(ErrMsgPathTraversal, name, nil)
	}
	if strings.ContainsAny(name, "/\\:*?\"<>|") {
		return NewStorageError(ErrMsgInvalidName, name, nil)
	}
	return nil
}

// matchesName checks a template name against the query name filters.
func matchesName(name string, query *TemplateQuery) bool {
	if query.NamePrefix != "" && !strings.HasPrefix(name, query.NamePrefix) {
		return false
	}
	if query.NameContains != "" && !strings.Contains(name, query.NameContains) {
		return false
	}
	return true
}

// matchesTags checks that tmpl carries every tag of the query.
func matchesTags(tmpl *StoredTemplate, query *TemplateQuery) bool {
	for _, tag := range query.Tags {
		if !slices.Contains(tmpl.Tags, tag) {
			return false
		}
	}
	return true
}

// sortAndPage orders results by name then version descending and applies offset and limit.
func sortAndPage(results []*StoredTemplate, query *TemplateQuery) []*StoredTemplate {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Name != results[j].Name {
			return results[i].Name < results[j].Name
		}
		return results[i].Version > results[j].Version
	})

	if query.Offset > 0 {
		if query.Offset >= len(results) {
			return []*StoredTemplate{}
		}
		results = results[query.Offset:]
	}
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results
}

// newStoredVersion builds the record a backend persists for a Save call.
func newStoredVersion(tmpl *StoredTemplate, version int, now time.Time) *StoredTemplate {
	stored := copyStoredTemplate(tmpl)
	stored.ID = uuid.NewString()
	stored.Version = version
	stored.CreatedAt = now
	stored.UpdatedAt = now
	return stored
}

// writeBack copies the generated fields of stored into the caller's template.
func writeBack(tmpl, stored *StoredTemplate) {
	tmpl.ID = stored.ID
	tmpl.Version = stored.Version
	tmpl.CreatedAt = stored.CreatedAt
	tmpl.UpdatedAt = stored.UpdatedAt
}

// copyStoredTemplate creates a copy that shares no maps or slices with tmpl.
func copyStoredTemplate(tmpl *StoredTemplate) *StoredTemplate {
	if tmpl == nil {
		return nil
	}
	out := *tmpl
	out.Context = maps.Clone(tmpl.Context)
	out.Config = maps.Clone(tmpl.Config)
	out.Metadata = maps.Clone(tmpl.Metadata)
	out.Tags = slices.Clone(tmpl.Tags)
	return &out
}
