package kmc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/itsatony/go-cuserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	l := Lookup{"nombre": "Demo"}
	v, err := l.ResolveContext(context.Background(), "nombre")
	require.NoError(t, err)
	assert.Equal(t, "Demo", v)

	_, err = l.ResolveMetadata(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValueNotFound))
	var custom *cuserr.CustomError
	require.True(t, errors.As(err, &custom))
	name, ok := custom.GetMetadata(MetaKeyName)
	assert.True(t, ok)
	assert.Equal(t, "missing", name)
}

func TestStaticHandler(t *testing.T) {
	h := NewStaticHandler("project", map[string]string{"nombre": "Demo"})
	ctx := context.Background()

	v, err := h.ResolveContext(ctx, "nombre")
	require.NoError(t, err)
	assert.Equal(t, "Demo", v)

	v, err = h.ResolveMetadata(ctx, "version")
	require.NoError(t, err)
	assert.Equal(t, "<project:version>", v)

	empty := NewStaticHandler("x", nil)
	assert.NotNil(t, empty.Values)

	t.Run("from config", func(t *testing.T) {
		raw, err := NewHandler(HandlerFactoryStatic, "doc", map[string]any{
			"values": map[string]any{"version": 1.5, "draft": true, "owner": nil},
		})
		require.NoError(t, err)
		sh := raw.(*StaticHandler)
		assert.Equal(t, map[string]string{"version": "1.5", "draft": "true", "owner": ""}, sh.Values)

		_, err = NewHandler(HandlerFactoryStatic, "doc", map[string]any{"values": "flat"})
		assert.Error(t, err)
	})
}

func TestDataFileHandler(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(dir, "project.yaml")
		require.NoError(t, os.WriteFile(path, []byte("nombre: Demo\nversion: 2\n"), 0o644))

		h, err := NewDataFileHandler("project", path)
		require.NoError(t, err)
		v, _ := h.ResolveContext(context.Background(), "version")
		assert.Equal(t, "2", v)
	})

	t.Run("json file through factory", func(t *testing.T) {
		path := filepath.Join(dir, "doc.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version": "1.0"}`), 0o644))

		raw, err := NewHandler(HandlerFactoryFile, "doc", map[string]any{"path": path})
		require.NoError(t, err)
		v, _ := raw.(MetadataHandler).ResolveMetadata(context.Background(), "version")
		assert.Equal(t, "1.0", v)
	})

	t.Run("missing path config", func(t *testing.T) {
		_, err := NewHandler(HandlerFactoryFile, "doc", map[string]any{})
		assert.Error(t, err)
		_, err = NewHandler(HandlerFactoryFile, "doc", map[string]any{"path": 42})
		assert.Error(t, err)
	})

	t.Run("unreadable and invalid files", func(t *testing.T) {
		_, err := NewDataFileHandler("doc", filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)

		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("- just\n- a list\n"), 0o644))
		_, err = NewDataFileHandler("doc", bad)
		assert.Error(t, err)
	})
}

func TestEnvHandler(t *testing.T) {
	t.Setenv("KMC_TEST_REGION", "eu-west")

	h := NewEnvHandler("env", "KMC_TEST_")
	v, err := h.ResolveContext(context.Background(), "region")
	require.NoError(t, err)
	assert.Equal(t, "eu-west", v)

	v, _ = h.ResolveMetadata(context.Background(), "unset_value")
	assert.Equal(t, "<env:unset_value>", v)

	raw, err := NewHandler(HandlerFactoryEnv, "env", map[string]any{"prefix": "KMC_TEST_"})
	require.NoError(t, err)
	assert.Equal(t, "KMC_TEST_", raw.(*EnvHandler).Prefix)
}

func TestPromptEchoHandler(t *testing.T) {
	v := &GenerativeVariable{Category: "ai", Subtype: "echo", Prompt: "Summarize Demo"}

	out, err := (&PromptEchoHandler{}).Generate(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "Summarize Demo", out)

	out, err = (&PromptEchoHandler{Format: "> %s"}).Generate(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "> Summarize Demo", out)
}
