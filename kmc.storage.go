package kmc

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DocumentID is a unique identifier for one stored document version,
// "doc_" followed by a UUID.
type DocumentID string

// StoredDocument is a KMC source text kept in a storage backend.
type StoredDocument struct {
	ID DocumentID `json:"id"`

	// Name is the lookup key shared by all versions.
	Name string `json:"name"`

	// Source is the raw KMC markdown.
	Source string `json:"source"`

	// Version is 1 for the first save and increases by one per save.
	Version int `json:"version"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DocumentQuery filters List results.
type DocumentQuery struct {
	// NamePrefix filters to names starting with this prefix.
	NamePrefix string

	// NameContains filters to names containing this substring.
	NameContains string

	// Tags filters to documents having ALL specified tags.
	Tags []string

	// Limit is the maximum number of results (0 = no limit).
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// IncludeAllVersions includes all versions, not just latest.
	IncludeAllVersions bool
}

// DocumentStorage is the interface for pluggable document backends.
// Implementations must be safe for concurrent use.
type DocumentStorage interface {
	// Get retrieves the latest version of a document by name.
	Get(ctx context.Context, name string) (*StoredDocument, error)

	// GetVersion retrieves a specific version of a document.
	GetVersion(ctx context.Context, name string, version int) (*StoredDocument, error)

	// Save stores doc as a new version. ID, Version, CreatedAt and
	// UpdatedAt are set by the storage and written back to doc.
	Save(ctx context.Context, doc *StoredDocument) error

	// Delete removes all versions of a document.
	Delete(ctx context.Context, name string) error

	// List returns documents matching query, ordered by name, then by
	// version descending. A nil query matches every latest version.
	List(ctx context.Context, query *DocumentQuery) ([]*StoredDocument, error)

	// Exists reports whether a document with the given name exists.
	Exists(ctx context.Context, name string) (bool, error)

	// ListVersions returns the version numbers of a document, newest first.
	ListVersions(ctx context.Context, name string) ([]int, error)

	// Close releases resources. The storage must not be used afterwards.
	Close() error
}

// StorageDriver is a factory for storage instances.
// Drivers register themselves during init().
type StorageDriver interface {
	// Open creates a storage instance. The connection string is driver-specific.
	Open(connectionString string) (DocumentStorage, error)
}

// Storage driver registry
var (
	storageDriversMu sync.RWMutex
	storageDrivers   = make(map[string]StorageDriver)
)

// RegisterStorageDriver registers a storage driver by name.
// Panics if driver is nil or the name is already registered.
func RegisterStorageDriver(name string, driver StorageDriver) {
	storageDriversMu.Lock()
	defer storageDriversMu.Unlock()

	if driver == nil {
		panic(ErrMsgNilStorageDriver)
	}
	if _, exists := storageDrivers[name]; exists {
		panic(ErrMsgDriverAlreadyRegistered + ": " + name)
	}
	storageDrivers[name] = driver
}

// OpenStorage opens a storage connection using the named driver.
//
//	storage, err := kmc.OpenStorage("memory", "")
//	storage, err := kmc.OpenStorage("filesystem", "/var/lib/kmc")
//	storage, err := kmc.OpenStorage("sqlite", "file:kmc.db")
func OpenStorage(driverName, connectionString string) (DocumentStorage, error) {
	storageDriversMu.RLock()
	driver, ok := storageDrivers[driverName]
	storageDriversMu.RUnlock()

	if !ok {
		return nil, NewStorageDriverNotFoundError(driverName)
	}
	return driver.Open(connectionString)
}

// ListStorageDrivers returns the names of all registered storage drivers, sorted.
func ListStorageDrivers() []string {
	storageDriversMu.RLock()
	defer storageDriversMu.RUnlock()
	names := mapKeys(storageDrivers)
	slices.Sort(names)
	return names
}

// RenderStored loads the latest version of a stored document and renders it.
func (e *Engine) RenderStored(ctx context.Context, storage DocumentStorage, name string) (*RenderResult, error) {
	stored, err := storage.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return e.RenderDocument(ctx, e.Parse(stored.Source))
}

func generateDocumentID() DocumentID {
	return DocumentID(DocumentIDPrefix + uuid.NewString())
}

// Storage error message constants
const (
	ErrMsgNilStorageDriver        = "storage driver is nil"
	ErrMsgDriverAlreadyRegistered = "storage driver already registered"
	ErrMsgStorageDriverNotFound   = "storage driver not found"
	ErrMsgStorageClosed           = "storage is closed"
	ErrMsgDocumentNotFound        = "document not found"
	ErrMsgVersionNotFound         = "document version not found"
	ErrMsgInvalidDocumentName     = "invalid document name"
	ErrMsgPathTraversalDetected   = "path traversal detected in document name"
	ErrMsgInvalidStorageRoot      = "storage root directory cannot be empty"
	ErrMsgCreateStorageDir        = "failed to create storage directory"
	ErrMsgReadDocument            = "failed to read document file"
	ErrMsgWriteDocument           = "failed to write document file"
	ErrMsgDeleteDocument          = "failed to delete document"
	ErrMsgMarshalDocument         = "failed to marshal document"
	ErrMsgUnmarshalDocument       = "failed to unmarshal document"
	ErrMsgSQLEmptyConnString      = "sql connection string cannot be empty"
	ErrMsgSQLConnectionFailed     = "sql connection failed"
	ErrMsgSQLQueryFailed          = "sql query failed"
	ErrMsgSQLTransactionFailed    = "sql transaction failed"
	ErrMsgSQLMigrationFailed      = "sql migration failed"
	ErrMsgSQLUnknownDialect       = "unknown sql dialect"
)

// StorageError represents a storage-related error.
type StorageError struct {
	Message string
	Name    string
	Version int
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := e.Message
	if e.Name != "" && e.Version > 0 {
		msg += ": " + e.Name + " v" + strconv.Itoa(e.Version)
	} else if e.Name != "" {
		msg += ": " + e.Name
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Code returns the error code shared by all storage errors.
func (e *StorageError) Code() string {
	return ErrCodeStorage
}

// NewStorageDriverNotFoundError creates an error for a missing storage driver.
func NewStorageDriverNotFoundError(name string) error {
	return &StorageError{Message: ErrMsgStorageDriverNotFound, Name: name}
}

// NewStorageDocumentNotFoundError creates an error for a missing document.
func NewStorageDocumentNotFoundError(name string) error {
	return &StorageError{Message: ErrMsgDocumentNotFound, Name: name}
}

// NewStorageVersionNotFoundError creates an error for a missing version.
func NewStorageVersionNotFoundError(name string, version int) error {
	return &StorageError{Message: ErrMsgVersionNotFound, Name: name, Version: version}
}

// NewStorageClosedError creates an error for operations on closed storage.
func NewStorageClosedError() error {
	return &StorageError{Message: ErrMsgStorageClosed}
}

// IsNotFound reports whether err means a document or version does not exist.
func IsNotFound(err error) bool {
	var se *StorageError
	if !errors.As(err, &se) {
		return false
	}
	return se.Message == ErrMsgDocumentNotFound || se.Message == ErrMsgVersionNotFound
}

// matchesQuery applies the name and tag filters of q.
func matchesQuery(doc *StoredDocument, q *DocumentQuery) bool {
	if q == nil {
		return true
	}
	if q.NamePrefix != "" && !strings.HasPrefix(doc.Name, q.NamePrefix) {
		return false
	}
	if q.NameContains != "" && !strings.Contains(doc.Name, q.NameContains) {
		return false
	}
	for _, tag := range q.Tags {
		if !slices.Contains(doc.Tags, tag) {
			return false
		}
	}
	return true
}

// paginate applies Offset and Limit of q.
func paginate(docs []*StoredDocument, q *DocumentQuery) []*StoredDocument {
	if q == nil {
		return docs
	}
	if q.Offset > 0 {
		if q.Offset >= len(docs) {
			return []*StoredDocument{}
		}
		docs = docs[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(docs) {
		docs = docs[:q.Limit]
	}
	return docs
}

// sortDocuments orders by name, then by version descending.
func sortDocuments(docs []*StoredDocument) {
	slices.SortFunc(docs, func(a, b *StoredDocument) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return b.Version - a.Version
	})
}

func copyStoredDocument(doc *StoredDocument) *StoredDocument {
	c := *doc
	if doc.Metadata != nil {
		c.Metadata = make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Tags = slices.Clone(doc.Tags)
	return &c
}
