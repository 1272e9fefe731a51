package kmc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const projectManifest = `name: project_data
handlers:
  - family: context
    key: project
    values:
      nombre: Demo
  - family: generative
    key: ai:echo
    factory: echo
    config:
      format: "[%s]"
plugins:
  - factory: static
    options:
      name: doc_data
      metadata:
        doc:
          version: "1.0"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscovery_DiscoverAll(t *testing.T) {
	ctx := context.Background()

	t.Run("loads manifests from standard directories", func(t *testing.T) {
		base := t.TempDir()
		writeFile(t, filepath.Join(base, "extensions", "project.yaml"), projectManifest)
		writeFile(t, filepath.Join(base, "custom_handlers", "nested", "deep", "kb.json"),
			`{"handlers": [{"family": "metadata", "key": "kb", "values": {"contenido": "texto"}}]}`)

		r := NewRegistry(nil)
		stats := NewDiscovery(r).DiscoverAll(ctx, base)

		assert.Equal(t, 3, stats.Handlers)
		assert.Equal(t, 1, stats.Plugins)
		assert.Empty(t, stats.Failed)
		assert.Len(t, stats.Directories, 2)
		assert.Equal(t, 1, stats.Directories[filepath.Join(base, "extensions")].Modules)

		assert.True(t, r.Has(FamilyContext, "project"))
		assert.True(t, r.Has(FamilyGenerative, "ai:echo"))
		assert.True(t, r.Has(FamilyMetadata, "kb"))
		assert.True(t, r.Has(FamilyMetadata, "doc"), "registered by the static plugin")
		_, ok := r.Plugin("doc_data")
		assert.True(t, ok)
	})

	t.Run("discovery twice keeps plugin count", func(t *testing.T) {
		base := t.TempDir()
		writeFile(t, filepath.Join(base, "plugins", "project.yaml"), projectManifest)

		r := NewRegistry(nil)
		d := NewDiscovery(r)
		first := d.DiscoverAll(ctx, base)
		require.Equal(t, 1, first.Plugins)
		count := r.PluginCount()

		second := d.DiscoverAll(ctx, base)
		assert.Equal(t, 0, second.Plugins)
		assert.Equal(t, 0, second.Handlers)
		assert.Equal(t, count, r.PluginCount())

		d.ClearCache()
		third := d.DiscoverAll(ctx, base)
		assert.Equal(t, 0, third.Plugins, "duplicate plugin is rejected by the registry")
		assert.Equal(t, 2, third.Handlers, "handlers are re-registered after ClearCache")
		assert.Equal(t, count, r.PluginCount())

		other := NewDiscovery(r).DiscoverAll(ctx, base)
		assert.Equal(t, 0, other.Plugins)
		assert.Equal(t, count, r.PluginCount())
	})

	t.Run("package markers and hidden files are skipped", func(t *testing.T) {
		base := t.TempDir()
		writeFile(t, filepath.Join(base, "extensions", "_index.yaml"), projectManifest)
		writeFile(t, filepath.Join(base, "extensions", ".hidden.yaml"), projectManifest)
		writeFile(t, filepath.Join(base, "extensions", ".git", "config.yaml"), projectManifest)
		writeFile(t, filepath.Join(base, "extensions", "README.md"), "# not a module")

		r := NewRegistry(nil)
		d := NewDiscovery(r)
		stats := d.DiscoverAll(ctx, base)
		assert.Equal(t, 0, stats.Handlers)
		assert.Equal(t, 0, stats.Plugins)
		assert.Empty(t, d.Processed())
	})

	t.Run("failed modules are listed and skipped", func(t *testing.T) {
		base := t.TempDir()
		bad := filepath.Join(base, "extensions", "a_bad.yaml")
		writeFile(t, bad, "handlers: [unclosed")
		unknown := filepath.Join(base, "extensions", "b_unknown.yaml")
		writeFile(t, unknown, "handlers:\n  - family: context\n    key: x\n    factory: no_such_factory\n")
		writeFile(t, filepath.Join(base, "extensions", "c_good.yaml"), projectManifest)

		core, logs := observer.New(zap.ErrorLevel)
		r := NewRegistry(nil)
		stats := NewDiscovery(r, WithDiscoveryLogger(zap.New(core))).DiscoverAll(ctx, base)

		assert.ElementsMatch(t, []string{bad, unknown}, stats.Failed)
		assert.Equal(t, 2, stats.Handlers)
		assert.Equal(t, 2, logs.FilterMessage(LogMsgModuleLoadFailed).Len())
	})

	t.Run("extra directories relative and absolute", func(t *testing.T) {
		base := t.TempDir()
		abs := t.TempDir()
		writeFile(t, filepath.Join(base, "team", "project.yml"), projectManifest)
		writeFile(t, filepath.Join(abs, "kb.yaml"), "handlers:\n  - family: metadata\n    key: kb\n    values: {a: b}\n")

		core, logs := observer.New(zap.WarnLevel)
		r := NewRegistry(nil)
		stats := NewDiscovery(r, WithDiscoveryLogger(zap.New(core))).
			DiscoverAll(ctx, base, "team", abs, "missing", "team")

		assert.Equal(t, 3, stats.Handlers)
		assert.Len(t, stats.Directories, 2)
		assert.Equal(t, 1, logs.FilterMessage(LogMsgDiscoveryExtraMissing).Len())
	})

	t.Run("missing base directories are not an error", func(t *testing.T) {
		stats := NewDiscovery(NewRegistry(nil)).DiscoverAll(ctx, filepath.Join(t.TempDir(), "nothing"))
		assert.Equal(t, 0, stats.Handlers)
		assert.Empty(t, stats.Failed)
	})

	t.Run("relative manifest data paths", func(t *testing.T) {
		base := t.TempDir()
		writeFile(t, filepath.Join(base, "extensions", "data", "project.yaml"), "nombre: FromFile\n")
		writeFile(t, filepath.Join(base, "extensions", "file.yaml"),
			"handlers:\n  - family: context\n    key: project\n    factory: file\n    config: {path: data/project.yaml}\n")

		r := NewRegistry(nil)
		stats := NewDiscovery(r).DiscoverAll(ctx, base)
		assert.Equal(t, 1, stats.Handlers, "data/project.yaml loads as an empty manifest")

		h, ok := r.Context("project")
		require.True(t, ok)
		v, _ := h.ResolveContext(ctx, "nombre")
		assert.Equal(t, "FromFile", v)
	})
}

// fakeLoader serves an ExtensionSet for files with the .kmc extension.
type fakeLoader struct {
	set   ExtensionSet
	err   error
	panic bool
	calls int
}

func (l *fakeLoader) Extensions() []string { return []string{".kmc"} }

func (l *fakeLoader) Load(string) (ExtensionSet, error) {
	l.calls++
	if l.panic {
		panic("loader exploded")
	}
	return l.set, l.err
}

func TestDiscovery_ModuleLoaders(t *testing.T) {
	ctx := context.Background()

	t.Run("custom loader and rejected handlers", func(t *testing.T) {
		base := t.TempDir()
		writeFile(t, filepath.Join(base, "extensions", "one.kmc"), "")

		loader := &fakeLoader{set: ExtensionSet{
			Handlers: []HandlerRegistration{
				{Family: FamilyContext, Key: "ok", Handler: Lookup{}},
				{Family: FamilyGenerative, Key: "bad", Handler: Lookup{}},
			},
			Plugins: []Plugin{newTestPlugin("from_loader")},
		}}
		r := NewRegistry(nil)
		stats := NewDiscovery(r, WithModuleLoader(loader)).DiscoverAll(ctx, base)

		assert.Equal(t, 1, loader.calls)
		assert.Equal(t, 1, stats.Handlers)
		assert.Equal(t, 1, stats.Plugins)
		assert.False(t, r.Has(FamilyGenerative, "bad"))
	})

	t.Run("loader panic is contained", func(t *testing.T) {
		base := t.TempDir()
		path := filepath.Join(base, "extensions", "boom.kmc")
		writeFile(t, path, "")

		d := NewDiscovery(NewRegistry(nil), WithModuleLoader(&fakeLoader{panic: true}))
		var stats DiscoveryStats
		require.NotPanics(t, func() { stats = d.DiscoverAll(ctx, base) })
		assert.Equal(t, []string{path}, stats.Failed)
	})

	t.Run("failed module is not retried until cache is cleared", func(t *testing.T) {
		base := t.TempDir()
		writeFile(t, filepath.Join(base, "extensions", "err.kmc"), "")

		loader := &fakeLoader{err: errors.New("bad module")}
		d := NewDiscovery(NewRegistry(nil), WithModuleLoader(loader))
		d.DiscoverAll(ctx, base)
		d.DiscoverAll(ctx, base)
		assert.Equal(t, 1, loader.calls)

		d.ClearCache()
		d.DiscoverAll(ctx, base)
		assert.Equal(t, 2, loader.calls)
	})

	t.Run("load module bypasses the cache", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "project.yaml")
		writeFile(t, path, projectManifest)

		r := NewRegistry(nil)
		d := NewDiscovery(r)
		handlers, plugins, err := d.LoadModule(path)
		require.NoError(t, err)
		assert.Equal(t, 2, handlers)
		assert.Equal(t, 1, plugins)

		_, _, err = d.LoadModule(filepath.Join(dir, "module.txt"))
		assert.Error(t, err)
	})

	t.Run("go plugin loader rejects invalid files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.so")
		writeFile(t, path, "not an elf file")
		_, err := GoPluginLoader{}.Load(path)
		assert.Error(t, err)
	})
}

func TestManifest_Build(t *testing.T) {
	t.Run("unknown family", func(t *testing.T) {
		m := Manifest{Handlers: []ManifestHandler{{Family: "tools", Key: "x", Values: map[string]string{}}}}
		_, err := m.Build(".")
		assert.Error(t, err)
	})

	t.Run("handler needs factory or values", func(t *testing.T) {
		m := Manifest{Handlers: []ManifestHandler{{Family: "context", Key: "x"}}}
		_, err := m.Build(".")
		assert.Error(t, err)
	})

	t.Run("values are passed to a factory", func(t *testing.T) {
		m := Manifest{Handlers: []ManifestHandler{{
			Family:  "metadata",
			Key:     "doc",
			Factory: HandlerFactoryStatic,
			Values:  map[string]string{"version": "2.0"},
		}}}
		set, err := m.Build(".")
		require.NoError(t, err)
		require.Len(t, set.Handlers, 1)
		v, _ := set.Handlers[0].Handler.(MetadataHandler).ResolveMetadata(context.Background(), "version")
		assert.Equal(t, "2.0", v)
	})

	t.Run("unknown plugin factory", func(t *testing.T) {
		m := Manifest{Plugins: []ManifestPlugin{{Factory: "nope"}}}
		_, err := m.Build(".")
		assert.Error(t, err)
	})
}

func TestDiscovery_Watch(t *testing.T) {
	base := t.TempDir()
	extDir := filepath.Join(base, "extensions")
	require.NoError(t, os.MkdirAll(extDir, 0o755))
	writeFile(t, filepath.Join(extDir, "project.yaml"), projectManifest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRegistry(nil)
	d := NewDiscovery(r, WithWatchDebounce(50*time.Millisecond))
	updates, err := d.Watch(ctx, base)
	require.NoError(t, err)

	select {
	case initial := <-updates:
		assert.Equal(t, 2, initial.Handlers)
		assert.Equal(t, 1, initial.Plugins)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial discovery stats")
	}

	writeFile(t, filepath.Join(extDir, "kb.yaml"),
		"handlers:\n  - family: metadata\n    key: kb\n    values: {contenido: nuevo}\n")

	deadline := time.After(5 * time.Second)
	for !r.Has(FamilyMetadata, "kb") {
		select {
		case _, ok := <-updates:
			require.True(t, ok)
		case <-deadline:
			t.Fatal("new module was not discovered")
		}
	}
	assert.Equal(t, 1, r.PluginCount())

	cancel()
	for range updates {
	}
}
