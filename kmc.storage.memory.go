package kmc

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-memory DocumentStorage.
// All data is lost when the process terminates.
type MemoryStorage struct {
	mu     sync.RWMutex
	docs   map[string][]*StoredDocument // name -> versions, newest first
	closed bool
}

// MemoryStorageDriver is the driver for creating MemoryStorage instances.
type MemoryStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{})
}

// Open creates a new MemoryStorage. The connection string is ignored.
func (d *MemoryStorageDriver) Open(string) (DocumentStorage, error) {
	return NewMemoryStorage(), nil
}

// NewMemoryStorage creates a new in-memory document storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		docs: make(map[string][]*StoredDocument),
	}
}

// Get retrieves the latest version of a document by name.
func (s *MemoryStorage) Get(ctx context.Context, name string) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, ok := s.docs[name]
	if !ok || len(versions) == 0 {
		return nil, NewStorageDocumentNotFoundError(name)
	}
	return copyStoredDocument(versions[0]), nil
}

// GetVersion retrieves a specific version of a document.
func (s *MemoryStorage) GetVersion(ctx context.Context, name string, version int) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	for _, doc := range s.docs[name] {
		if doc.Version == version {
			return copyStoredDocument(doc), nil
		}
	}
	return nil, NewStorageVersionNotFoundError(name, version)
}

// Save stores doc as a new version.
func (s *MemoryStorage) Save(ctx context.Context, doc *StoredDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Name == "" {
		return &StorageError{Message: ErrMsgInvalidDocumentName}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	versions := s.docs[doc.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[0].Version + 1
	}

	now := time.Now()
	doc.ID = generateDocumentID()
	doc.Version = next
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.docs[doc.Name] = append([]*StoredDocument{copyStoredDocument(doc)}, versions...)
	return nil
}

// Delete removes all versions of a document.
func (s *MemoryStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}
	if _, ok := s.docs[name]; !ok {
		return NewStorageDocumentNotFoundError(name)
	}
	delete(s.docs, name)
	return nil
}

// List returns documents matching query.
func (s *MemoryStorage) List(ctx context.Context, query *DocumentQuery) ([]*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	allVersions := query != nil && query.IncludeAllVersions
	var out []*StoredDocument
	for _, versions := range s.docs {
		for i, doc := range versions {
			if i > 0 && !allVersions {
				break
			}
			if matchesQuery(doc, query) {
				out = append(out, copyStoredDocument(doc))
			}
		}
	}
	sortDocuments(out)
	return paginate(out, query), nil
}

// Exists reports whether a document with the given name exists.
func (s *MemoryStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, NewStorageClosedError()
	}
	_, ok := s.docs[name]
	return ok, nil
}

// ListVersions returns the version numbers of a document, newest first.
func (s *MemoryStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}
	versions := s.docs[name]
	out := make([]int, len(versions))
	for i, doc := range versions {
		out[i] = doc.Version
	}
	return out, nil
}

// Close marks the storage closed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.docs = nil
	return nil
}
