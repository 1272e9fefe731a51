package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/itsatony/go-kmc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	configPath string
	basePath   string
	logLevel   string
	driver     string
	dsn        string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           CLIName,
		Short:         CLIDescription,
		Long:          CLILong,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, FlagConfig, FlagConfigShort, "", "configuration file (default: kmc.yaml in the base directory, if present)")
	flags.StringVarP(&opts.basePath, FlagBase, FlagBaseShort, "", "base directory for discovery and relative paths")
	flags.StringVar(&opts.logLevel, FlagLogLevel, "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.driver, FlagDriver, "", "document storage driver (memory, filesystem, sqlite, postgres)")
	flags.StringVar(&opts.dsn, FlagDSN, "", "document storage connection string")

	cmd.AddCommand(
		newRenderCmd(opts),
		newParseCmd(),
		newDiscoverCmd(opts),
		newStoreCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration file and applies the global flags.
// Without --config, kmc.yaml in the base directory is used when it exists.
func (o *globalOptions) loadConfig() (*kmc.Config, error) {
	path := o.configPath
	if path == "" {
		candidate := filepath.Join(o.basePath, kmc.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, failWith(ExitCodeInputError, ErrMsgConfigFailed, err)
		}
	}

	cfg := kmc.DefaultConfig()
	if path != "" {
		loaded, err := kmc.LoadConfig(path)
		if err != nil {
			return nil, failWith(ExitCodeInputError, ErrMsgConfigFailed, err)
		}
		cfg = loaded
	}

	if o.basePath != "" {
		cfg.BasePath = o.basePath
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.driver != "" {
		cfg.Storage = kmc.StorageConfig{Driver: o.driver, DSN: o.dsn}
	}
	if err := cfg.Validate(); err != nil {
		return nil, failWith(ExitCodeUsageError, ErrMsgConfigFailed, err)
	}
	return cfg, nil
}

// newLogger builds a console logger on w at the configured level. The
// default level for the CLI is warn so that stdout stays clean.
func newLogger(cfg *kmc.Config, w io.Writer, explicit bool) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.WarnLevel)
	if explicit && cfg.LogLevel != "" {
		if parsed, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}

// newEngine builds an engine from cfg with logs written to the command's
// error stream.
func (o *globalOptions) newEngine(cmd *cobra.Command, cfg *kmc.Config) (*kmc.Engine, error) {
	logger := newLogger(cfg, cmd.ErrOrStderr(), o.logLevel != "" || o.configPath != "")
	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		return nil, failWith(ExitCodeInputError, ErrMsgEngineFailed, err)
	}
	engine, err := kmc.New(opts...)
	if err != nil {
		return nil, failWith(ExitCodeError, ErrMsgEngineFailed, err)
	}
	return engine, nil
}

// openStorage opens the configured document storage or fails when none is set.
func openStorage(cfg *kmc.Config) (kmc.DocumentStorage, error) {
	storage, err := cfg.OpenStorage()
	if err != nil {
		return nil, failWith(ExitCodeError, ErrMsgStorageFailed, err)
	}
	if storage == nil {
		return nil, failWith(ExitCodeUsageError, ErrMsgStorageRequired, nil)
	}
	return storage, nil
}
