package kmc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FilesystemStorage stores each document version as a JSON file.
//
//	<root>/
//	  <document-name>/
//	    v1.json
//	    v2.json
type FilesystemStorage struct {
	mu     sync.RWMutex
	root   string
	closed bool
}

// FilesystemStorageDriver is the driver for creating FilesystemStorage instances.
type FilesystemStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameFilesystem, &FilesystemStorageDriver{})
}

// Open creates a FilesystemStorage rooted at the connection string.
func (d *FilesystemStorageDriver) Open(connectionString string) (DocumentStorage, error) {
	return NewFilesystemStorage(connectionString)
}

// NewFilesystemStorage creates a filesystem storage, creating root if needed.
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, &StorageError{Message: ErrMsgInvalidStorageRoot}
	}
	if err := os.MkdirAll(root, FilesystemDirPermissions); err != nil {
		return nil, &StorageError{Message: ErrMsgCreateStorageDir, Name: root, Cause: err}
	}
	return &FilesystemStorage{root: root}, nil
}

// Root returns the storage directory.
func (s *FilesystemStorage) Root() string {
	return s.root
}

// Get retrieves the latest version of a document by name.
func (s *FilesystemStorage) Get(ctx context.Context, name string) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateDocumentNameForFilesystem(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	versions, err := s.listVersionsInternal(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, NewStorageDocumentNotFoundError(name)
	}
	return s.loadDocument(name, versions[0])
}

// GetVersion retrieves a specific version of a document.
func (s *FilesystemStorage) GetVersion(ctx context.Context, name string, version int) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateDocumentNameForFilesystem(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}
	return s.loadDocument(name, version)
}

// Save writes doc as a new version file.
func (s *FilesystemStorage) Save(ctx context.Context, doc *StoredDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateDocumentNameForFilesystem(doc.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	dir := filepath.Join(s.root, doc.Name)
	if err := os.MkdirAll(dir, FilesystemDirPermissions); err != nil {
		return &StorageError{Message: ErrMsgCreateStorageDir, Name: dir, Cause: err}
	}

	versions, err := s.listVersionsInternal(doc.Name)
	if err != nil {
		return &StorageError{Message: ErrMsgReadDocument, Name: doc.Name, Cause: err}
	}
	next := 1
	if len(versions) > 0 {
		next = versions[0] + 1
	}

	now := time.Now()
	stored := copyStoredDocument(doc)
	stored.ID = generateDocumentID()
	stored.Version = next
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return &StorageError{Message: ErrMsgMarshalDocument, Name: doc.Name, Cause: err}
	}
	filename := s.versionFile(doc.Name, next)
	if err := os.WriteFile(filename, data, FilesystemFilePermissions); err != nil {
		return &StorageError{Message: ErrMsgWriteDocument, Name: filename, Cause: err}
	}

	doc.ID = stored.ID
	doc.Version = stored.Version
	doc.CreatedAt = stored.CreatedAt
	doc.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete removes the document directory.
func (s *FilesystemStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateDocumentNameForFilesystem(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewStorageClosedError()
	}

	dir := filepath.Join(s.root, name)
	if !isDir(dir) {
		return NewStorageDocumentNotFoundError(name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return &StorageError{Message: ErrMsgDeleteDocument, Name: name, Cause: err}
	}
	return nil
}

// List returns documents matching query.
func (s *FilesystemStorage) List(ctx context.Context, query *DocumentQuery) ([]*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &StorageError{Message: ErrMsgReadDocument, Name: s.root, Cause: err}
	}

	allVersions := query != nil && query.IncludeAllVersions
	var out []*StoredDocument
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		versions, err := s.listVersionsInternal(name)
		if err != nil {
			return nil, &StorageError{Message: ErrMsgReadDocument, Name: name, Cause: err}
		}
		if !allVersions && len(versions) > 1 {
			versions = versions[:1]
		}
		for _, v := range versions {
			doc, err := s.loadDocument(name, v)
			if err != nil {
				return nil, err
			}
			if matchesQuery(doc, query) {
				out = append(out, doc)
			}
		}
	}
	sortDocuments(out)
	return paginate(out, query), nil
}

// Exists reports whether a document with the given name has any version.
func (s *FilesystemStorage) Exists(ctx context.Context, name string) (bool, error) {
	versions, err := s.ListVersions(ctx, name)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// ListVersions returns the version numbers of a document, newest first.
func (s *FilesystemStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateDocumentNameForFilesystem(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, NewStorageClosedError()
	}
	return s.listVersionsInternal(name)
}

// Close marks the storage closed.
func (s *FilesystemStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FilesystemStorage) versionFile(name string, version int) string {
	return filepath.Join(s.root, name, FilesystemVersionFilePrefix+strconv.Itoa(version)+FilesystemVersionFileSuffix)
}

// listVersionsInternal lists version numbers, newest first (no locking).
func (s *FilesystemStorage) listVersionsInternal(name string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return []int{}, nil
		}
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()
		if !strings.HasPrefix(filename, FilesystemVersionFilePrefix) || !strings.HasSuffix(filename, FilesystemVersionFileSuffix) {
			continue
		}
		digits := filename[len(FilesystemVersionFilePrefix) : len(filename)-len(FilesystemVersionFileSuffix)]
		if v, err := strconv.Atoi(digits); err == nil && v > 0 {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

func (s *FilesystemStorage) loadDocument(name string, version int) (*StoredDocument, error) {
	filename := s.versionFile(name, version)
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewStorageVersionNotFoundError(name, version)
		}
		return nil, &StorageError{Message: ErrMsgReadDocument, Name: filename, Cause: err}
	}
	var doc StoredDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StorageError{Message: ErrMsgUnmarshalDocument, Name: filename, Cause: err}
	}
	return &doc, nil
}

// validateDocumentNameForFilesystem rejects names that could escape the
// storage root or are not valid directory names.
func validateDocumentNameForFilesystem(name string) error {
	if name == "" {
		return &StorageError{Message: ErrMsgInvalidDocumentName}
	}
	if strings.Contains(name, "..") {
		return &StorageError{Message: ErrMsgPathTraversalDetected, Name: name}
	}
	if strings.ContainsAny(name, filesystemDocumentNameForbid) {
		return &StorageError{Message: ErrMsgInvalidDocumentName, Name: name}
	}
	return nil
}
