// Package config loads studydeck configuration from flags, environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STUDYDECK_"

// Config holds all application configuration.
type Config struct {
	DB        string `koanf:"db" validate:"required"`
	Addr      string `koanf:"addr" validate:"required"`
	LogLevel  string `koanf:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"required,oneof=text json"`

	LibraryDir  string `koanf:"library_dir"`
	LibraryRepo string `koanf:"library_repo"`
	ReposDir    string `koanf:"repos_dir" validate:"required_with=LibraryRepo"`

	GeminiAPIKey string `koanf:"gemini_api_key"`
	GeminiModel  string `koanf:"gemini_model" validate:"required"`
	SchemaPath   string `koanf:"schema_path"`

	DesiredRetention float64 `koanf:"desired_retention" validate:"gt=0,lt=1"`
	MaximumInterval  float64 `koanf:"maximum_interval" validate:"gt=0"`
	EnableFuzz       bool    `koanf:"enable_fuzz"`
}

// FlagSet returns the flags understood by Load. Their defaults are the
// configuration defaults.
func FlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", "studydeck.db", "Path to the SQLite database file")
	fs.String("addr", "localhost:8080", "Address for the HTTP server")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("library-dir", "", "Directory of exam JSON files to sync")
	fs.String("library-repo", "", "Git URL of an exam library to clone and sync")
	fs.String("repos-dir", "repos", "Directory where library repositories are cloned")
	fs.String("gemini-api-key", "", "Gemini API key for exam generation")
	fs.String("gemini-model", "gemini-1.5-flash", "Gemini model for exam generation")
	fs.String("schema-path", "", "Exam schema template sent to the model (built-in when empty)")
	fs.Float64("desired-retention", 0.9, "FSRS desired retention")
	fs.Float64("maximum-interval", 36500, "FSRS maximum interval in days")
	fs.Bool("enable-fuzz", false, "Randomize FSRS intervals")
	return fs
}

// Load parses args with the flag set and builds the configuration. Later
// sources win: flag defaults, then the config file, then STUDYDECK_*
// environment variables, then flags set on the command line. Positional
// arguments are left in fs.Args().
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path, _ := fs.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys no other source has set.
	flagKey := func(f *pflag.Flag) (string, interface{}) {
		if f.Name == "config" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed the %q check", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}
