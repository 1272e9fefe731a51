package kmc

import "time"

// Handler families. Each family is an independent key namespace in the registry.
const (
	FamilyContext    Family = "context"
	FamilyMetadata   Family = "metadata"
	FamilyGenerative Family = "generative"
)

// Standard extension directories scanned beneath a discovery base path
const (
	ExtensionDirExtensions     = "extensions"
	ExtensionDirUserExtensions = "user_extensions"
	ExtensionDirCustomHandlers = "custom_handlers"
	ExtensionDirPlugins        = "plugins"
)

// StandardExtensionDirs lists the directories DiscoverAll looks for, in scan order.
var StandardExtensionDirs = []string{
	ExtensionDirExtensions,
	ExtensionDirUserExtensions,
	ExtensionDirCustomHandlers,
	ExtensionDirPlugins,
}

// Extension module file types
const (
	ModuleExtYAML     = ".yaml"
	ModuleExtYML      = ".yml"
	ModuleExtJSON     = ".json"
	ModuleExtGoPlugin = ".so"
)

// Discovery glob patterns (doublestar syntax, relative to a scanned directory)
const (
	// DiscoveryExcludeMarker skips package-marker files such as _index.yaml.
	DiscoveryExcludeMarker    = "**/_*"
	// DiscoveryExcludeHidden skips dot files and dot directories.
	DiscoveryExcludeHidden    = "**/.*"
	// DiscoveryExcludeHiddenDir skips everything below a dot directory.
	DiscoveryExcludeHiddenDir = "**/.*/**"
)

// GoPluginSymbol is the symbol a Go plugin module must export.
// Its type must be func() ExtensionSet.
const GoPluginSymbol = "KMCExtension"

// Render defaults
const (
	DefaultPlaceholderFormat = "<%s>"
	ErrorTokenPrefix         = "ERROR"
	KeySeparator             = ":"
)

// Discovery watch defaults
const (
	DefaultWatchDebounce = 500 * time.Millisecond
	watchEventBuffer     = 16
)

// Plugin defaults used by BasePlugin
const (
	DefaultPluginVersion     = "0.1.0"
	DefaultPluginDescription = "no description"
)

// Built-in handler factory names
const (
	HandlerFactoryStatic = "static"
	HandlerFactoryFile   = "file"
	HandlerFactoryEnv    = "env"
	HandlerFactoryEcho   = "echo"
)

// Built-in plugin factory names and option keys
const (
	PluginFactoryStatic = "static"

	PluginOptionName        = "name"
	PluginOptionVersion     = "version"
	PluginOptionDescription = "description"
	PluginOptionContext     = "context"
	PluginOptionMetadata    = "metadata"
)

// Built-in handler configuration keys
const (
	ConfigKeyValues = "values"
	ConfigKeyPath   = "path"
	ConfigKeyPrefix = "prefix"
	ConfigKeyFormat = "format"
)

// Configuration file defaults
const (
	ConfigFileName      = "kmc.yaml"
	DefaultLogLevel     = "info"
	ConfigDataSeparator = "="
)

// Storage driver names
const (
	StorageDriverNameMemory     = "memory"
	StorageDriverNameFilesystem = "filesystem"
	StorageDriverNamePostgres   = "postgres"
	StorageDriverNameSQLite     = "sqlite"
)

// Storage defaults
const (
	DocumentIDPrefix             = "doc_"
	FilesystemDirPermissions     = 0o755
	FilesystemFilePermissions    = 0o644
	FilesystemVersionFilePrefix  = "v"
	FilesystemVersionFileSuffix  = ".json"
	SQLTablePrefix               = "kmc_"
	SQLDefaultQueryTimeout       = 30 * time.Second
	SQLDefaultMaxOpenConns       = 10
	SQLDefaultMaxIdleConns       = 2
	SQLDefaultConnMaxLifetime    = 5 * time.Minute
	DefaultCacheTTL              = 5 * time.Minute
	DefaultCacheMaxEntries       = 1000
	sqlDriverPostgres            = "postgres"
	sqlDriverSQLite              = "sqlite"
	sqlDocumentsTable            = "documents"
	sqlDocumentNameMaxLength     = 255
	filesystemDocumentNameForbid = `/\:*?"<>|`
)

// Tracing
const (
	TracerName       = "github.com/itsatony/go-kmc"
	SpanNameRender   = "kmc.render"
	SpanNameResolve  = "kmc.resolve"
	SpanNameDiscover = "kmc.discover"

	AttrKeyRenderID = "kmc.render_id"
	AttrKeyFamily   = "kmc.family"
	AttrKeyKey      = "kmc.key"
	AttrKeyName     = "kmc.name"
	AttrKeyBasePath = "kmc.base_path"
)

// Log messages
const (
	LogMsgRegistryCreated       = "registry created"
	LogMsgHandlerRegistered     = "handler registered"
	LogMsgHandlerOverwritten    = "handler overwritten"
	LogMsgHandlersCleared       = "all handlers cleared"
	LogMsgPluginRegistered      = "plugin registered and initialized"
	LogMsgPluginDuplicate       = "plugin already registered, skipping"
	LogMsgPluginInitFailed      = "plugin initialization failed"
	LogMsgPluginShutdownFailed  = "plugin shutdown failed"
	LogMsgPluginsCleared        = "all plugins cleared"
	LogMsgPluginConfigUpdated   = "plugin configuration updated"
	LogMsgPluginConfigUnknown   = "updating configuration of unregistered plugin"
	LogMsgPluginFactoryUnknown  = "no plugin factory registered"
	LogMsgRegistryCleared       = "registry fully cleared"
	LogMsgDiscoveryStart        = "extension discovery started"
	LogMsgDiscoveryDone         = "extension discovery complete"
	LogMsgDiscoveryDirScanned   = "extension directory scanned"
	LogMsgDiscoveryDirMissing   = "extension directory does not exist, skipping"
	LogMsgDiscoveryExtraMissing = "custom extension directory does not exist"
	LogMsgDiscoveryDirFailed    = "extension directory scan failed"
	LogMsgModuleSkipped         = "module already processed, skipping"
	LogMsgModuleLoadFailed      = "module load failed"
	LogMsgModuleLoaded          = "module loaded"
	LogMsgHandlerRejected       = "discovered handler rejected"
	LogMsgCacheCleared          = "processed module cache cleared"
	LogMsgWatchStarted          = "extension watcher started"
	LogMsgWatchFailed           = "extension watcher error"
	LogMsgWatchRediscover       = "extension change detected, rediscovering"
	LogMsgDefinitionSkipped     = "malformed definition skipped"
	LogMsgDefinitionOverridden  = "duplicate definition overrides earlier one"
	LogMsgParseComplete         = "document parsed"
	LogMsgRenderStart           = "render started"
	LogMsgRenderComplete        = "render complete"
	LogMsgVariableResolved      = "variable resolved"
	LogMsgVariableUnresolved    = "no handler for variable, leaving literal"
	LogMsgDefinitionNoHandler   = "no generative handler for definition, using placeholder"
	LogMsgHandlerFailed         = "handler failed"
	LogMsgHandlerPanicked       = "handler panicked"
	LogMsgAutoDiscovery         = "running automatic extension discovery"
)

// Log field names
const (
	LogFieldFamily      = "family"
	LogFieldKey         = "key"
	LogFieldName        = "name"
	LogFieldVariable    = "variable"
	LogFieldPlugin      = "plugin"
	LogFieldVersion     = "version"
	LogFieldPath        = "path"
	LogFieldDirectory   = "directory"
	LogFieldBasePath    = "base_path"
	LogFieldHandlers    = "handlers"
	LogFieldPlugins     = "plugins"
	LogFieldFailed      = "failed"
	LogFieldReason      = "reason"
	LogFieldRenderID    = "render_id"
	LogFieldDuration    = "duration"
	LogFieldSourceLen   = "source_length"
	LogFieldDefinitions = "definitions"
	LogFieldContextual  = "contextual"
	LogFieldMetadata    = "metadata"
	LogFieldGenerative  = "generative"
	LogFieldErrors      = "errors"
	LogFieldUnresolved  = "unresolved"
	LogFieldPanic       = "panic"
	LogFieldTarget      = "target"
	LogFieldChanged     = "changed"
)

// Metadata keys attached to errors
const (
	MetaKeyFamily  = "family"
	MetaKeyKey     = "key"
	MetaKeyName    = "name"
	MetaKeyPath    = "path"
	MetaKeyPlugin  = "plugin"
	MetaKeyFactory = "factory"
	MetaKeyDriver  = "driver"
	MetaKeyType    = "type"
	MetaKeyValue   = "value"
	MetaKeyField   = "field"
)
