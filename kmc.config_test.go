package kmc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("relative paths follow the config file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "data", "project.yaml"), "nombre: Demo\n")
		writeFile(t, filepath.Join(dir, "data", "doc.json"), `{"version": "1.0"}`)
		writeFile(t, filepath.Join(dir, "team", "echo.yaml"),
			"handlers:\n  - family: generative\n    key: ai:echo\n    factory: echo\n")
		writeFile(t, filepath.Join(dir, ConfigFileName), `
base_path: .
extension_dirs: [team]
placeholder_format: "[%s]"
log_level: debug
storage:
  driver: filesystem
  dsn: store
data:
  context:
    project: data/project.yaml
  metadata:
    doc: data/doc.json
`)

		cfg, err := LoadConfig(filepath.Join(dir, ConfigFileName))
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean(dir), cfg.BasePath)
		assert.Equal(t, []string{"team"}, cfg.ExtensionDirs)
		assert.Equal(t, "debug", cfg.LogLevel)

		regs, err := cfg.Handlers()
		require.NoError(t, err)
		require.Len(t, regs, 2)
		assert.Equal(t, FamilyContext, regs[0].Family)
		assert.Equal(t, "project", regs[0].Key)
		assert.Equal(t, FamilyMetadata, regs[1].Family)

		storage, err := cfg.OpenStorage()
		require.NoError(t, err)
		defer storage.Close()
		assert.Equal(t, filepath.Join(dir, "store"), storage.(*FilesystemStorage).Root())
	})

	t.Run("missing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.yaml")
		_, err := LoadConfig(path)
		require.Error(t, err)

		var custom *cuserr.CustomError
		require.True(t, errors.As(err, &custom))
		got, ok := custom.GetMetadata(MetaKeyPath)
		assert.True(t, ok)
		assert.Equal(t, path, got)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		writeFile(t, path, "data: [unclosed")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("invalid log level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ConfigFileName)
		writeFile(t, path, "log_level: loud\n")
		_, err := LoadConfig(path)
		require.Error(t, err)

		var custom *cuserr.CustomError
		require.True(t, errors.As(err, &custom))
		field, _ := custom.GetMetadata(MetaKeyField)
		assert.Equal(t, "loud", field)
	})
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlaceholderFormat = "[%s]"
	assert.NoError(t, cfg.Validate())

	cfg.PlaceholderFormat = "MISSING"
	err := cfg.Validate()
	require.Error(t, err)
	var custom *cuserr.CustomError
	require.True(t, errors.As(err, &custom))
	field, _ := custom.GetMetadata(MetaKeyField)
	assert.Equal(t, "MISSING", field)
}

func TestConfig_AddData(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.AddData("project=data/project.yaml"))
	assert.Equal(t, "data/project.yaml", cfg.Data.Context["project"])
	assert.Equal(t, "data/project.yaml", cfg.Data.Metadata["project"])

	for _, bad := range []string{"project", "=path", "project="} {
		assert.Error(t, cfg.AddData(bad), bad)
	}
}

func TestConfig_Logger(t *testing.T) {
	cfg := DefaultConfig()
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogLevel = "nope"
	_, err = cfg.Logger()
	assert.Error(t, err)
}

func TestConfig_EngineOptions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "project.yaml"), "nombre: Demo\n")
	writeFile(t, filepath.Join(dir, "extensions", "echo.yaml"),
		"handlers:\n  - family: generative\n    key: ai:echo\n    factory: echo\n")

	cfg := DefaultConfig()
	cfg.BasePath = dir
	cfg.AutoDiscover = true
	require.NoError(t, cfg.AddData("project="+filepath.Join(dir, "project.yaml")))

	opts, err := cfg.EngineOptions(nil)
	require.NoError(t, err)
	e := newTestEngine(t, opts...)

	require.NotNil(t, e.Discovery())
	assert.True(t, e.Registry().Has(FamilyGenerative, "ai:echo"))

	out, err := e.Render(ctx, "Proyecto [[project:nombre]]")
	require.NoError(t, err)
	assert.Equal(t, "Proyecto Demo", out)

	t.Run("missing data file fails", func(t *testing.T) {
		bad := DefaultConfig()
		require.NoError(t, bad.AddData("x="+filepath.Join(dir, "absent.yaml")))
		_, err := bad.EngineOptions(nil)
		assert.Error(t, err)
	})

	t.Run("no storage driver", func(t *testing.T) {
		s, err := DefaultConfig().OpenStorage()
		assert.NoError(t, err)
		assert.Nil(t, s)
	})
}
