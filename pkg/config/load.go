package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/webpilot/pkg/logging"
)

// LoadOptions controls where settings are read from.
type LoadOptions struct {
	// File is an optional YAML file. MCP_CONFIG_FILE is used when empty.
	File string

	// EnvFile is a dotenv file whose values fill in variables missing from
	// the environment. Defaults to ".env"; a missing file is not an error.
	EnvFile string

	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup LookupFunc

	Logger *logging.Logger
}

// Load resolves settings: defaults, then the YAML file, then the environment
// (real variables win over the dotenv file), then validation.
func Load(opts LoadOptions) (*Settings, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	lookup = withFallback(lookup, dotenv)

	settings := Defaults()

	path := opts.File
	if path == "" {
		path, _ = lookup("MCP_CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, settings); err != nil {
			return nil, err
		}
	}

	ApplyEnv(settings, lookup, opts.Logger)

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// loadFile overlays a YAML file onto s. Keys absent from the file keep their
// current values.
func loadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func withFallback(primary LookupFunc, fallback map[string]string) LookupFunc {
	if len(fallback) == 0 {
		return primary
	}
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}
