// Package kmc resolves KMC (Kimfe Markdown Convention) markup: markdown
// with placeholders that pluggable handlers fill in.
//
// KMC knows three placeholder syntaxes:
//
//	[[project:name]]            contextual, static facts about the environment
//	[{doc:version}]             metadata, facts about the document itself
//	{{ai:summary:intro}}        generative, content produced from a prompt
//
// A metadata variable can be bound to a generative source with a
// Definition comment:
//
//	<!-- KMC_DEFINITION FOR [{doc:sum}]:
//	  GENERATIVE_SOURCE = {{ai:summarizer}}
//	  PROMPT = "Summarize [[project:name]]"
//	  FORMAT = "text"
//	-->
//	Summary: [{doc:sum}]
//
// # Basic Usage
//
//	engine := kmc.MustNew()
//	engine.RegisterContext("project", kmc.Lookup{"nombre": "Demo"})
//	engine.RegisterMetadata("doc", kmc.Lookup{"version": "1.0"})
//	out, err := engine.Render(ctx, "# [[project:nombre]] v[{doc:version}]")
//	// out: "# Demo v1.0"
//
// # Resolution Order
//
// A render substitutes contextual variables first, then Definitions whose
// target appears in the text, then metadata variables without a
// Definition. Definition prompts see contextual values and the values of
// Definitions resolved earlier in the same render. Bare generative
// variables are never replaced; WithFreePrompts enables substitution of
// those that carry an AI_PROMPT comment.
//
// A handler that fails or panics leaves ERROR:<key>:<name> in the output
// and the render continues. Variables without a handler stay literal.
//
// # Extensions
//
// Handlers and plugins can be discovered from the directories extensions,
// user_extensions, custom_handlers and plugins. A module is a YAML or JSON
// manifest referencing factories registered with RegisterHandlerFactory
// and RegisterPluginFactory, or a Go plugin (.so) exporting
//
//	var KMCExtension = func() kmc.ExtensionSet { ... }
//
// # Storage
//
// KMC sources can be kept in versioned storage ("memory", "filesystem",
// "postgres", "sqlite") opened with OpenStorage and rendered with
// Engine.RenderStored.
package kmc

// Version is the library version.
const Version = "0.1.0"
