package kmc

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the file form of an engine setup, usually read from kmc.yaml.
//
//	base_path: .
//	auto_discover: true
//	extension_dirs: [team_handlers]
//	free_prompts: false
//	placeholder_format: "<%s>"
//	log_level: info
//	storage:
//	  driver: sqlite
//	  dsn: file:kmc.db
//	  cache_ttl: 1m
//	data:
//	  context:
//	    project: data/project.yaml
//	  metadata:
//	    doc: data/doc.json
type Config struct {
	BasePath          string        `yaml:"base_path,omitempty"`
	AutoDiscover      bool          `yaml:"auto_discover,omitempty"`
	ExtensionDirs     []string      `yaml:"extension_dirs,omitempty"`
	FreePrompts       bool          `yaml:"free_prompts,omitempty"`
	PlaceholderFormat string        `yaml:"placeholder_format,omitempty"`
	LogLevel          string        `yaml:"log_level,omitempty"`
	Storage           StorageConfig `yaml:"storage,omitempty"`
	Data              DataConfig    `yaml:"data,omitempty"`

	// dir is the directory relative data paths are resolved against.
	dir string
}

// StorageConfig selects a document storage driver. A positive CacheTTL
// wraps the storage in a CachedStorage.
type StorageConfig struct {
	Driver   string        `yaml:"driver,omitempty"`
	DSN      string        `yaml:"dsn,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`
}

// DataConfig maps handler types to YAML or JSON data files, per family.
type DataConfig struct {
	Context  map[string]string `yaml:"context,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// DefaultConfig returns an empty configuration rooted at the working directory.
func DefaultConfig() *Config {
	return &Config{LogLevel: DefaultLogLevel}
}

// LoadConfig reads and validates a YAML configuration file. Relative data
// paths and base_path are taken relative to the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigFileError(ErrMsgConfigFileRead, path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewConfigFileError(ErrMsgConfigFileParse, path, err)
	}
	cfg.dir = filepath.Dir(path)
	if cfg.BasePath != "" && !filepath.IsAbs(cfg.BasePath) {
		cfg.BasePath = filepath.Join(cfg.dir, cfg.BasePath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that cannot be checked by decoding.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
			return NewConfigError(ErrMsgConfigLogLevel, c.LogLevel)
		}
	}
	if c.PlaceholderFormat != "" && !ValidPlaceholderFormat(c.PlaceholderFormat) {
		return NewConfigError(ErrMsgConfigPlaceholder, c.PlaceholderFormat)
	}
	return nil
}

// AddData registers path as the data file for typ in both families.
// entry has the form "type=path".
func (c *Config) AddData(entry string) error {
	typ, path, ok := strings.Cut(entry, ConfigDataSeparator)
	if !ok || typ == "" || path == "" {
		return NewConfigError(ErrMsgConfigDataEntry, entry)
	}
	if c.Data.Context == nil {
		c.Data.Context = make(map[string]string)
	}
	if c.Data.Metadata == nil {
		c.Data.Metadata = make(map[string]string)
	}
	c.Data.Context[typ] = path
	c.Data.Metadata[typ] = path
	return nil
}

// Logger builds a production zap logger at the configured level,
// writing to stderr.
func (c *Config) Logger() (*zap.Logger, error) {
	level := c.LogLevel
	if level == "" {
		level = DefaultLogLevel
	}
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, NewConfigError(ErrMsgConfigLogLevel, level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = atomic
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

// Handlers loads the configured data files into static handlers, ordered
// by family and type.
func (c *Config) Handlers() ([]HandlerRegistration, error) {
	var regs []HandlerRegistration
	for _, fam := range []struct {
		family Family
		files  map[string]string
	}{
		{FamilyContext, c.Data.Context},
		{FamilyMetadata, c.Data.Metadata},
	} {
		keys := mapKeys(fam.files)
		slices.Sort(keys)
		for _, typ := range keys {
			h, err := NewDataFileHandler(typ, c.resolve(fam.files[typ]))
			if err != nil {
				return nil, err
			}
			regs = append(regs, HandlerRegistration{Family: fam.family, Key: typ, Handler: h})
		}
	}
	return regs, nil
}

// EngineOptions converts the configuration into engine options. logger
// may be nil.
func (c *Config) EngineOptions(logger *zap.Logger) ([]Option, error) {
	regs, err := c.Handlers()
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithLogger(logger),
		WithFreePrompts(c.FreePrompts),
		WithPlaceholderFormat(c.PlaceholderFormat),
		WithHandlers(regs...),
	}
	if c.AutoDiscover || len(c.ExtensionDirs) > 0 {
		opts = append(opts, WithAutoDiscovery(c.BasePath, c.ExtensionDirs...))
	}
	return opts, nil
}

// OpenStorage opens the configured storage. It returns nil, nil when no
// driver is configured.
func (c *Config) OpenStorage() (DocumentStorage, error) {
	if c.Storage.Driver == "" {
		return nil, nil
	}
	dsn := c.Storage.DSN
	if c.Storage.Driver == StorageDriverNameFilesystem {
		dsn = c.resolve(dsn)
	}
	storage, err := OpenStorage(c.Storage.Driver, dsn)
	if err != nil || c.Storage.CacheTTL <= 0 {
		return storage, err
	}
	return NewCachedStorage(storage, CacheConfig{TTL: c.Storage.CacheTTL}), nil
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}
