// Package config loads apkgbridge settings.
//
// Layers are applied in order, later ones winning: an optional YAML file,
// variables from an optional .env file, APKG_-prefixed environment variables,
// and finally command-line flags. Flags left at their defaults only fill keys
// no other layer set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read into the config.
const EnvPrefix = "APKG_"

const (
	configFlag  = "config"
	envFileFlag = "env-file"
)

// Config holds all application configuration.
type Config struct {
	DBPath     string `koanf:"db" validate:"required"`
	MediaDir   string `koanf:"media_dir" validate:"required"`
	WorkDir    string `koanf:"work_dir"`
	OutputDir  string `koanf:"output_dir" validate:"required"`
	LibraryDir string `koanf:"library_dir"`
	LibraryURL string `koanf:"library_url" validate:"omitempty,url"`
	LogLevel   string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat  string `koanf:"log_format" validate:"required,oneof=text json"`
}

// RegisterFlags adds the shared configuration flags. Their defaults
// are the configuration defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(configFlag, "", "Path to a YAML config file")
	flags.String(envFileFlag, ".env", "Path to a .env file; ignored if missing")
	flags.String("db", "apkgbridge.db", "Path to the SQLite database file")
	flags.String("media-dir", "media", "Directory holding card media")
	flags.String("work-dir", "", "Parent of temporary working directories (default: system temp)")
	flags.String("output-dir", ".", "Directory receiving exported .apkg files")
	flags.String("library-dir", "", "Local clone of the shared deck library (default: derived from --library-url, else ./library)")
	flags.String("library-url", "", "Git URL of the shared deck library")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
}

// Load reads the configuration layers for an already parsed flag set and
// validates the result.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := flags.GetString(configFlag); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if path, _ := flags.GetString(envFileFlag); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey(flags)), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps APKG_MEDIA_DIR to media_dir.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// flagKey maps --media-dir to media_dir and drops the flags that only
// locate other layers.
func flagKey(flags *pflag.FlagSet) func(f *pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		if f.Name == configFlag || f.Name == envFileFlag {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	}
}
