package kmc

import (
	"errors"
	"fmt"

	"github.com/itsatony/go-cuserr"
)

// Error message constants
const (
	// Registry errors
	ErrMsgNilHandler       = "handler cannot be nil"
	ErrMsgEmptyHandlerKey  = "handler key cannot be empty"
	ErrMsgInvalidFamily    = "unknown handler family"
	ErrMsgHandlerTypeWrong = "handler does not implement the family interface"
	ErrMsgNilPlugin        = "plugin cannot be nil"

	// Catalog errors
	ErrMsgNilFactory               = "factory cannot be nil"
	ErrMsgFactoryAlreadyRegistered = "factory already registered"

	// Discovery errors
	ErrMsgModuleLoadFailed     = "extension module load failed"
	ErrMsgModuleNoLoader       = "no loader for module file type"
	ErrMsgModulePanicked       = "extension module panicked while loading"
	ErrMsgManifestInvalid      = "extension manifest is invalid"
	ErrMsgManifestNoHandler    = "manifest handler needs a factory or values"
	ErrMsgHandlerFactoryAbsent = "no handler factory registered"
	ErrMsgPluginFactoryAbsent  = "no plugin factory registered"
	ErrMsgPluginSymbolMissing  = "go plugin does not export the extension symbol"
	ErrMsgPluginSymbolType     = "go plugin extension symbol has the wrong type"
	ErrMsgWatchFailed          = "extension watcher could not start"

	// Handler errors
	ErrMsgHandlerFailed   = "handler execution failed"
	ErrMsgHandlerPanicked = "handler panicked"
	ErrMsgValueNotFound   = "value not found"
	ErrMsgConfigValueType = "handler configuration value has the wrong type"
	ErrMsgConfigMissing   = "handler configuration value is required"
	ErrMsgDataFileRead    = "handler data file could not be read"

	// Configuration errors
	ErrMsgConfigFileRead    = "configuration file could not be read"
	ErrMsgConfigFileParse   = "configuration file is not valid YAML"
	ErrMsgConfigLogLevel    = "unknown log level"
	ErrMsgConfigDataEntry   = "data entries need the form type=path"
	ErrMsgConfigPlaceholder = "placeholder format needs exactly one %s verb"

	// Engine errors
	ErrMsgRenderCancelled = "render cancelled"
)

// ErrValueNotFound is reported by context and metadata handlers that have
// no value for a name. The engine leaves such variables literal instead of
// writing an error token.
var ErrValueNotFound = errors.New(ErrMsgValueNotFound)

// Error code constants for categorization
const (
	ErrCodeRegistry  = "KMC_REGISTRY"
	ErrCodeDiscovery = "KMC_DISCOVERY"
	ErrCodeHandler   = "KMC_HANDLER"
	ErrCodeRender    = "KMC_RENDER"
	ErrCodeStorage   = "KMC_STORAGE"
	ErrCodeConfig    = "KMC_CONFIG"
)

// NewRegistryError creates a registry validation error for a family/key pair
func NewRegistryError(msg string, family Family, key string) error {
	return cuserr.NewValidationError(ErrCodeRegistry, msg).
		WithMetadata(MetaKeyFamily, string(family)).
		WithMetadata(MetaKeyKey, key)
}

// NewHandlerTypeError reports a handler value that does not satisfy its family interface
func NewHandlerTypeError(family Family, key string, handler any) error {
	return cuserr.NewValidationError(ErrCodeRegistry, ErrMsgHandlerTypeWrong).
		WithMetadata(MetaKeyFamily, string(family)).
		WithMetadata(MetaKeyKey, key).
		WithMetadata(MetaKeyType, fmt.Sprintf("%T", handler))
}

// NewInvalidFamilyError reports an unknown family name
func NewInvalidFamilyError(value string) error {
	return cuserr.NewValidationError(ErrCodeRegistry, ErrMsgInvalidFamily).
		WithMetadata(MetaKeyValue, value)
}

// NewModuleLoadError wraps a failure to load one extension module
func NewModuleLoadError(path string, cause error) error {
	if cause == nil {
		return cuserr.NewValidationError(ErrCodeDiscovery, ErrMsgModuleLoadFailed).
			WithMetadata(MetaKeyPath, path)
	}
	return cuserr.WrapStdError(cause, ErrCodeDiscovery, ErrMsgModuleLoadFailed).
		WithMetadata(MetaKeyPath, path)
}

// NewDiscoveryError creates a discovery validation error for a module path
func NewDiscoveryError(msg string, path string) error {
	return cuserr.NewValidationError(ErrCodeDiscovery, msg).
		WithMetadata(MetaKeyPath, path)
}

// NewFactoryNotFoundError reports a manifest reference to an unknown factory
func NewFactoryNotFoundError(msg string, factory string) error {
	return cuserr.NewNotFoundError(MetaKeyFactory, msg).
		WithMetadata(MetaKeyFactory, factory)
}

// NewHandlerError wraps an error returned by a handler
func NewHandlerError(family Family, key, name string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeHandler, ErrMsgHandlerFailed).
		WithMetadata(MetaKeyFamily, string(family)).
		WithMetadata(MetaKeyKey, key).
		WithMetadata(MetaKeyName, name)
}

// NewHandlerPanicError converts a recovered panic into an error
func NewHandlerPanicError(family Family, key, name string, recovered any) error {
	return cuserr.NewInternalError(ErrCodeHandler, fmt.Errorf("%s: %v", ErrMsgHandlerPanicked, recovered)).
		WithMetadata(MetaKeyFamily, string(family)).
		WithMetadata(MetaKeyKey, key).
		WithMetadata(MetaKeyName, name)
}

// NewValueNotFoundError is returned by lookup handlers for unknown names.
// It matches ErrValueNotFound with errors.Is.
func NewValueNotFoundError(key, name string) error {
	return cuserr.NewCustomError(cuserr.ErrNotFound, ErrValueNotFound, ErrMsgValueNotFound).
		WithMetadata(MetaKeyKey, key).
		WithMetadata(MetaKeyName, name)
}

// NewHandlerConfigError reports invalid handler configuration
func NewHandlerConfigError(msg string, field string) error {
	return cuserr.NewValidationError(ErrCodeConfig, msg).
		WithMetadata(MetaKeyKey, field)
}

// NewDataFileError wraps a failure to read or decode a handler data file
func NewDataFileError(path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeConfig, ErrMsgDataFileRead).
		WithMetadata(MetaKeyPath, path)
}

// NewConfigError creates a configuration validation error for one field
func NewConfigError(msg string, field string) error {
	return cuserr.NewValidationError(ErrCodeConfig, msg).
		WithMetadata(MetaKeyField, field)
}

// NewConfigFileError wraps a failure to read or decode a configuration file
func NewConfigFileError(msg string, path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeConfig, msg).
		WithMetadata(MetaKeyPath, path)
}

// NewRenderCancelledError wraps a context error observed during rendering
func NewRenderCancelledError(cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeRender, ErrMsgRenderCancelled)
}
