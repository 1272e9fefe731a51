package main

// Command names
const (
	CmdNameRender   = "render"
	CmdNameParse    = "parse"
	CmdNameDiscover = "discover"
	CmdNameStore    = "store"
	CmdNameSave     = "save"
	CmdNameGet      = "get"
	CmdNameList     = "list"
	CmdNameDelete   = "delete"
	CmdNameVersion  = "version"
)

// Flag names - long form
const (
	FlagConfig       = "config"
	FlagBase         = "base"
	FlagLogLevel     = "log-level"
	FlagData         = "data"
	FlagExtensionDir = "extension-dir"
	FlagDiscover     = "discover"
	FlagFreePrompts  = "free-prompts"
	FlagPlaceholder  = "placeholder"
	FlagStored       = "stored"
	FlagOutput       = "output"
	FlagFormat       = "format"
	FlagWatch        = "watch"
	FlagDriver       = "driver"
	FlagDSN          = "dsn"
	FlagVersion      = "version"
	FlagTag          = "tag"
	FlagAuthor       = "author"
	FlagPrefix       = "prefix"
	FlagAllVersions  = "all-versions"
)

// Flag names - short form
const (
	FlagConfigShort       = "c"
	FlagBaseShort         = "b"
	FlagDataShort         = "d"
	FlagExtensionDirShort = "e"
	FlagOutputShort       = "o"
	FlagFormatShort       = "F"
	FlagWatchShort        = "w"
)

// Flag default values
const (
	FlagDefaultOutput = "-" // stdout
	FlagDefaultFormat = OutputFormatText
)

// Output formats
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
	OutputFormatYAML = "yaml"
)

// Exit codes
const (
	ExitCodeSuccess    = 0
	ExitCodeError      = 1
	ExitCodeUsageError = 2
	ExitCodeInputError = 4
)

// Input source indicators
const (
	InputSourceStdin = "-"
)

// Error messages - ALL must be constants
const (
	ErrMsgReadFileFailed    = "failed to read input"
	ErrMsgWriteOutputFailed = "failed to write output"
	ErrMsgConfigFailed      = "failed to load configuration"
	ErrMsgEngineFailed      = "failed to create engine"
	ErrMsgRenderFailed      = "render failed"
	ErrMsgInvalidFormat     = "invalid output format"
	ErrMsgStorageRequired   = "no storage configured; use --driver or a config storage section"
	ErrMsgStorageFailed     = "storage operation failed"
	ErrMsgEncodeFailed      = "failed to encode output"
	ErrMsgWatchFailed       = "failed to watch extension directories"
)

// CLI metadata
const (
	CLIName        = "kmc"
	CLIDescription = "Resolve KMC markup in markdown documents"
	CLILong        = `kmc resolves KMC placeholders in markdown documents.

Contextual variables [[type:name]] and metadata variables [{type:name}] are
replaced by registered handlers. KMC_DEFINITION comments bind a metadata
variable to a generative source {{category:subtype}} and a prompt.

Handlers come from data files (--data type=path), extension modules found
by discovery, and the kmc.yaml configuration file.`
)

// Version output format templates
const (
	VersionTextTemplate = "go-kmc version %s\nGo: %s\n"
)

// Output templates
const (
	DiscoverTextHeader   = "Discovered %d handler(s) and %d plugin(s)\n"
	DiscoverTextDir      = "  %s: %d module(s), %d handler(s), %d plugin(s)\n"
	DiscoverTextFailed   = "  failed: %s\n"
	StoreTextSaved       = "saved %s v%d (%s)\n"
	StoreTextDeleted     = "deleted %s\n"
	StoreTextListRow     = "%s\tv%d\t%s\n"
	RenderTextErrorsLine = "%d handler error(s)\n"
)

// File permission constant
const (
	FilePermissions = 0644
)

// Format string constants
const (
	FmtErrorWithCause = "%s: %v\n"
	FmtTimestamp      = "2006-01-02 15:04:05"
)
