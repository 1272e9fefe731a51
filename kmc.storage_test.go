package kmc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storageFactory func(t *testing.T) DocumentStorage

func storageBackends() map[string]storageFactory {
	return map[string]storageFactory{
		StorageDriverNameMemory: func(t *testing.T) DocumentStorage {
			return NewMemoryStorage()
		},
		StorageDriverNameFilesystem: func(t *testing.T) DocumentStorage {
			s, err := NewFilesystemStorage(t.TempDir())
			require.NoError(t, err)
			return s
		},
		StorageDriverNameSQLite: func(t *testing.T) DocumentStorage {
			s, err := OpenStorage(StorageDriverNameSQLite, "file:"+filepath.Join(t.TempDir(), "kmc.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestDocumentStorage_Contract(t *testing.T) {
	for name, factory := range storageBackends() {
		t.Run(name, func(t *testing.T) {
			runStorageContract(t, factory)
		})
	}
}

func runStorageContract(t *testing.T, newStorage storageFactory) {
	ctx := context.Background()

	t.Run("save assigns versions", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		first := &StoredDocument{Name: "report", Source: "v1 [[project:nombre]]", Tags: []string{"team"}}
		require.NoError(t, s.Save(ctx, first))
		assert.Equal(t, 1, first.Version)
		assert.True(t, strings.HasPrefix(string(first.ID), DocumentIDPrefix))
		assert.False(t, first.CreatedAt.IsZero())

		second := &StoredDocument{Name: "report", Source: "v2", Metadata: map[string]string{"owner": "ana"}}
		require.NoError(t, s.Save(ctx, second))
		assert.Equal(t, 2, second.Version)
		assert.NotEqual(t, first.ID, second.ID)

		latest, err := s.Get(ctx, "report")
		require.NoError(t, err)
		assert.Equal(t, "v2", latest.Source)
		assert.Equal(t, 2, latest.Version)
		assert.Equal(t, "ana", latest.Metadata["owner"])

		old, err := s.GetVersion(ctx, "report", 1)
		require.NoError(t, err)
		assert.Equal(t, "v1 [[project:nombre]]", old.Source)
		assert.Equal(t, []string{"team"}, old.Tags)

		versions, err := s.ListVersions(ctx, "report")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 1}, versions)
	})

	t.Run("missing documents", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		_, err := s.Get(ctx, "absent")
		assert.True(t, IsNotFound(err))

		require.NoError(t, s.Save(ctx, &StoredDocument{Name: "present", Source: "x"}))
		_, err = s.GetVersion(ctx, "present", 7)
		assert.True(t, IsNotFound(err))

		assert.True(t, IsNotFound(s.Delete(ctx, "absent")))

		ok, err := s.Exists(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)

		versions, err := s.ListVersions(ctx, "absent")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()
		assert.Error(t, s.Save(ctx, &StoredDocument{Source: "x"}))
	})

	t.Run("delete removes every version", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		for i := 0; i < 3; i++ {
			require.NoError(t, s.Save(ctx, &StoredDocument{Name: "gone", Source: "x"}))
		}
		ok, err := s.Exists(ctx, "gone")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, s.Delete(ctx, "gone"))
		ok, err = s.Exists(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, ok)

		doc := &StoredDocument{Name: "gone", Source: "again"}
		require.NoError(t, s.Save(ctx, doc))
		assert.Equal(t, 1, doc.Version)
	})

	t.Run("list filters and pagination", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		seed := []*StoredDocument{
			{Name: "sales_q1", Source: "a", Tags: []string{"sales", "2024"}},
			{Name: "sales_q1", Source: "b", Tags: []string{"sales"}},
			{Name: "sales_q2", Source: "c", Tags: []string{"sales", "2024"}},
			{Name: "hr_policy", Source: "d", Tags: []string{"hr"}},
			{Name: "percent%name", Source: "e"},
		}
		for _, doc := range seed {
			require.NoError(t, s.Save(ctx, doc))
		}

		all, err := s.List(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"hr_policy", "percent%name", "sales_q1", "sales_q2"}, documentNames(all))

		latest, err := s.List(ctx, &DocumentQuery{NamePrefix: "sales_"})
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, 2, latest[0].Version)
		assert.Equal(t, "b", latest[0].Source)

		versions, err := s.List(ctx, &DocumentQuery{NamePrefix: "sales_q1", IncludeAllVersions: true})
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 2, versions[0].Version)
		assert.Equal(t, 1, versions[1].Version)

		tagged, err := s.List(ctx, &DocumentQuery{Tags: []string{"sales", "2024"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"sales_q2"}, documentNames(tagged), "sales_q1 lost the tag in its latest version")

		contains, err := s.List(ctx, &DocumentQuery{NameContains: "%"})
		require.NoError(t, err)
		assert.Equal(t, []string{"percent%name"}, documentNames(contains))

		underscore, err := s.List(ctx, &DocumentQuery{NameContains: "_q"})
		require.NoError(t, err)
		assert.Equal(t, []string{"sales_q1", "sales_q2"}, documentNames(underscore))

		page, err := s.List(ctx, &DocumentQuery{Offset: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"percent%name", "sales_q1"}, documentNames(page))

		beyond, err := s.List(ctx, &DocumentQuery{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("returned documents are copies", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		doc := &StoredDocument{Name: "copy", Source: "x", Metadata: map[string]string{"k": "v"}}
		require.NoError(t, s.Save(ctx, doc))
		doc.Metadata["k"] = "changed"

		got, err := s.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, "v", got.Metadata["k"])
	})

	t.Run("closed storage", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.Close())

		var se *StorageError
		_, err := s.Get(ctx, "x")
		require.True(t, errors.As(err, &se))
		assert.Equal(t, ErrMsgStorageClosed, se.Message)
		assert.Equal(t, ErrCodeStorage, se.Code())

		assert.Error(t, s.Save(ctx, &StoredDocument{Name: "x"}))
		_, err = s.List(ctx, nil)
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Get(cancelled, "x")
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, s.Save(cancelled, &StoredDocument{Name: "x"}), context.Canceled)
	})

	t.Run("concurrent saves produce distinct versions", func(t *testing.T) {
		s := newStorage(t)
		defer s.Close()

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.Save(ctx, &StoredDocument{Name: "busy", Source: "x"})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		versions, err := s.ListVersions(ctx, "busy")
		require.NoError(t, err)
		assert.Equal(t, []int{8, 7, 6, 5, 4, 3, 2, 1}, versions)
	})
}

func documentNames(docs []*StoredDocument) []string {
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	return names
}

func TestFilesystemStorage_Names(t *testing.T) {
	s, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"../escape", "a/../../b", "dir/name", `back\slash`} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Save(ctx, &StoredDocument{Name: name, Source: "x"}))
			_, err := s.Get(ctx, name)
			assert.Error(t, err)
			assert.False(t, IsNotFound(err))
		})
	}

	_, err = NewFilesystemStorage("")
	assert.Error(t, err)
}

func TestStorageDrivers(t *testing.T) {
	t.Run("built-in drivers are registered", func(t *testing.T) {
		assert.Subset(t, ListStorageDrivers(), []string{
			StorageDriverNameFilesystem,
			StorageDriverNameMemory,
			StorageDriverNamePostgres,
			StorageDriverNameSQLite,
		})
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := OpenStorage("cassandra", "")
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "cassandra")
	})

	t.Run("duplicate and nil drivers panic", func(t *testing.T) {
		assert.Panics(t, func() { RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{}) })
		assert.Panics(t, func() { RegisterStorageDriver("storage-test-nil", nil) })
	})

	t.Run("open memory and filesystem", func(t *testing.T) {
		s, err := OpenStorage(StorageDriverNameMemory, "")
		require.NoError(t, err)
		assert.IsType(t, &MemoryStorage{}, s)

		dir := filepath.Join(t.TempDir(), "nested", "docs")
		fs, err := OpenStorage(StorageDriverNameFilesystem, dir)
		require.NoError(t, err)
		assert.Equal(t, dir, fs.(*FilesystemStorage).Root())
	})

	t.Run("sql configuration errors", func(t *testing.T) {
		_, err := NewSQLStorage(SQLConfig{Dialect: DialectSQLite})
		assert.Error(t, err)
		_, err = NewSQLStorage(SQLConfig{Dialect: "oracle", ConnectionString: "x"})
		assert.Error(t, err)
	})

	t.Run("sqlite defaults to one connection", func(t *testing.T) {
		assert.Equal(t, 1, DefaultSQLConfig(DialectSQLite).MaxOpenConns)
		assert.Greater(t, DefaultSQLConfig(DialectPostgres).MaxOpenConns, 1)
	})
}

func TestSQLStorage_TablePrefix(t *testing.T) {
	config := DefaultSQLConfig(DialectSQLite)
	config.ConnectionString = "file:" + filepath.Join(t.TempDir(), "prefixed.db")
	config.TablePrefix = "tenant_a_"
	config.AutoMigrate = true

	s, err := NewSQLStorage(config)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &StoredDocument{Name: "doc", Source: "x"}))
	require.NoError(t, s.Migrate(ctx), "migration is idempotent")

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM tenant_a_documents").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEngine_RenderStored(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithHandlers(HandlerRegistration{Family: FamilyContext, Key: "project", Handler: Lookup{"nombre": "Demo"}}))
	s := NewMemoryStorage()

	require.NoError(t, s.Save(ctx, &StoredDocument{Name: "greeting", Source: "Hola [[project:nombre]]"}))
	res, err := e.RenderStored(ctx, s, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hola Demo", res.Output)

	_, err = e.RenderStored(ctx, s, "missing")
	assert.True(t, IsNotFound(err))
}
