package kmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFamily(t *testing.T) {
	t.Run("valid families parse", func(t *testing.T) {
		for _, name := range []string{"context", "metadata", "generative"} {
			f, err := ParseFamily(name)
			require.NoError(t, err)
			assert.True(t, f.Valid())
			assert.Equal(t, name, f.String())
		}
	})

	t.Run("unknown family is rejected", func(t *testing.T) {
		_, err := ParseFamily("tools")
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgInvalidFamily)
	})
}

func TestVariableSyntax(t *testing.T) {
	c := ContextualVariable{Type: "project", Name: "nombre"}
	assert.Equal(t, "[[project:nombre]]", c.Syntax())
	assert.Equal(t, "project", c.HandlerKey())
	assert.Equal(t, "project:nombre", c.Ref())
	assert.Equal(t, FamilyContext, c.Family())

	m := MetadataVariable{Type: "doc", Name: "version"}
	assert.Equal(t, "[{doc:version}]", m.Syntax())
	assert.Equal(t, FamilyMetadata, m.Family())

	g := &GenerativeVariable{Category: "ai", Subtype: "gpt4"}
	assert.Equal(t, "{{ai:gpt4}}", g.Syntax())
	assert.Equal(t, "ai:gpt4", g.HandlerKey())
	assert.Equal(t, "ai:gpt4", g.Ref())
	assert.Equal(t, "", g.VarName())

	g.Name = "resumen"
	assert.Equal(t, "{{ai:gpt4:resumen}}", g.Syntax())
	assert.Equal(t, "ai:gpt4:resumen", g.Ref())
	assert.False(t, g.HasPrompt())

	var _ Variable = c
	var _ Variable = m
	var _ Variable = g
}

func TestParams(t *testing.T) {
	var p Params
	p.Set("city", "Madrid")
	p.Set("units", "metric")
	p.Set("city", "Lima")

	assert.Equal(t, []string{"city", "units"}, p.Keys())
	v, ok := p.Get("city")
	assert.True(t, ok)
	assert.Equal(t, "Lima", v)
	_, ok = p.Get("lang")
	assert.False(t, ok)
	assert.Equal(t, map[string]string{"city": "Lima", "units": "metric"}, p.Map())
}

func TestParseDocument(t *testing.T) {
	t.Run("empty document", func(t *testing.T) {
		doc := ParseDocument("")
		assert.Equal(t, "", doc.Body)
		assert.False(t, doc.HasVariables())
		assert.Equal(t, 0, doc.VariableCount())
	})

	t.Run("variables are de-duplicated in order of first occurrence", func(t *testing.T) {
		doc := ParseDocument("[[a:x]] [[b:y]] [[a:x]] [{doc:v}] [{doc:v}] {{ai:gpt4}} {{ai:gpt4}}")
		require.Len(t, doc.Contextual, 2)
		assert.Equal(t, ContextualVariable{Type: "a", Name: "x"}, doc.Contextual[0])
		assert.Equal(t, ContextualVariable{Type: "b", Name: "y"}, doc.Contextual[1])
		require.Len(t, doc.Metadata, 1)
		require.Len(t, doc.Generative, 1)
		assert.Equal(t, 4, doc.VariableCount())
	})

	t.Run("generative parameters are kept", func(t *testing.T) {
		doc := ParseDocument("{{api:weather:clima city=Madrid units=metric}}")
		require.Len(t, doc.Generative, 1)
		g := doc.Generative[0]
		assert.Equal(t, "{{api:weather:clima city=Madrid units=metric}}", g.Raw)
		assert.Equal(t, "{{api:weather:clima}}", g.Syntax())
		assert.Equal(t, []string{"city", "units"}, g.Parameters.Keys())
	})

	t.Run("definition is parsed and stripped from body", func(t *testing.T) {
		source := `# Module
<!-- KMC_DEFINITION FOR [{doc:titulo}]:
GENERATIVE_SOURCE = {{ai:gpt4:extract_title}}
PROMPT = "Titulo para [[project:nombre]] y [{kb:contenido}]"
FORMAT = "text"
-->
[{doc:titulo}]`
		doc := ParseDocument(source)
		assert.Equal(t, "# Module\n[{doc:titulo}]", doc.Body)
		require.Len(t, doc.Definitions, 1)

		def, ok := doc.Definition("doc:titulo")
		require.True(t, ok)
		assert.Equal(t, MetadataVariable{Type: "doc", Name: "titulo"}, def.Target)
		assert.Equal(t, "ai:gpt4:extract_title", def.SourceRef())
		assert.Equal(t, "text", def.Format)
		assert.Equal(t, []string{"project:nombre"}, def.Dependencies.Context)
		assert.Equal(t, []string{"kb:contenido"}, def.Dependencies.Metadata)
		assert.True(t, def.Dependencies.Has(FamilyMetadata, "kb:contenido"))
		assert.False(t, def.Dependencies.Has(FamilyGenerative, "kb:contenido"))

		assert.True(t, doc.Defines(MetadataVariable{Type: "doc", Name: "titulo"}))
		assert.True(t, doc.Uses("[{doc:titulo}]"))
		assert.Empty(t, doc.Generative, "definition source lives in a stripped comment")
	})

	t.Run("later definition of the same target wins", func(t *testing.T) {
		source := `<!-- KMC_DEFINITION FOR [{doc:sum}]: GENERATIVE_SOURCE = {{ai:a}} PROMPT = "first" -->
<!-- KMC_DEFINITION FOR [{doc:sum}]: GENERATIVE_SOURCE = {{ai:b}} PROMPT = "second" -->
[{doc:sum}]`
		doc := ParseDocument(source)
		require.Len(t, doc.Definitions, 1)
		assert.Equal(t, "second", doc.Definitions[0].Prompt)
		assert.Equal(t, "ai:b", doc.Definitions[0].Source.HandlerKey())
		assert.Equal(t, []string{"doc:sum"}, doc.Overridden)
	})

	t.Run("malformed definitions are skipped", func(t *testing.T) {
		doc := ParseDocument(`<!-- KMC_DEFINITION FOR [{doc:sum}]: PROMPT = "no source" -->text`)
		assert.Empty(t, doc.Definitions)
		require.Len(t, doc.Skipped, 1)
		assert.Equal(t, "text", doc.Body)
	})

	t.Run("free prompts attach to generative variables", func(t *testing.T) {
		source := `{{ai:gpt4:analisis}}
<!-- AI_PROMPT FOR {{ai:gpt4:analisis}}: Analiza [[project:ventas]] -->`
		doc := ParseDocument(source)
		require.Len(t, doc.Generative, 1)
		assert.True(t, doc.Generative[0].HasPrompt())
		assert.Equal(t, "Analiza [[project:ventas]]", doc.Generative[0].Prompt)
		assert.Equal(t, "Analiza [[project:ventas]]", doc.Prompts["{{ai:gpt4:analisis}}"])
		assert.Empty(t, doc.Contextual, "variables inside directives are not body variables")
	})
}

func TestScanDependencies(t *testing.T) {
	deps := ScanDependencies("[[p:a]] [[p:a]] [{d:b}] {{ai:x}} {{ai:x:y k=v}} {{ai:x}}")
	assert.Equal(t, []string{"p:a"}, deps.Context)
	assert.Equal(t, []string{"d:b"}, deps.Metadata)
	assert.Equal(t, []string{"ai:x", "ai:x:y"}, deps.Generative)
	assert.False(t, deps.Empty())
	assert.True(t, ScanDependencies("plain").Empty())
}

func TestNewDefinition(t *testing.T) {
	def := NewDefinition(
		MetadataVariable{Type: "doc", Name: "sum"},
		&GenerativeVariable{Category: "ai", Subtype: "x"},
		"Summarize [[project:name]]",
		"",
	)
	assert.Equal(t, "doc:sum", def.TargetRef())
	assert.Equal(t, "ai:x", def.SourceRef())
	assert.Equal(t, []string{"project:name"}, def.Dependencies.Context)
}
