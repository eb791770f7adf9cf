// Package config loads the daemon configuration from YAML and
// validates it against an embedded CUE schema, so a malformed config
// fails at startup with a field-level message instead of surfacing as
// a runtime error later.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the daemon configuration.
type Config struct {
	DBPath  string `yaml:"db_path"`
	BlobDir string `yaml:"blob_dir"`
	Name    string `yaml:"name"`
	Genesis string `yaml:"genesis"`

	Relay struct {
		URL    string `yaml:"url"`
		Listen string `yaml:"listen"`
	} `yaml:"relay"`

	Exchange struct {
		ReceiveWindowSecs int `yaml:"receive_window_secs"`
	} `yaml:"exchange"`

	Events struct {
		RetrySecs int `yaml:"retry_secs"`
	} `yaml:"events"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	c.DBPath = "slonledger.db"
	c.BlobDir = "blobs"
	c.Genesis = "0x0000000000000000000000000000000000000000000000000000000000000000"
	c.Relay.URL = "ws://127.0.0.1:8787"
	c.Relay.Listen = "127.0.0.1:8787"
	c.Exchange.ReceiveWindowSecs = 30
	c.Events.RetrySecs = 5
	c.LogLevel = "info"
	return c
}

// ReceiveWindow returns the exchange receive window as a duration.
func (c Config) ReceiveWindow() time.Duration {
	return time.Duration(c.Exchange.ReceiveWindowSecs) * time.Second
}

// RetryInterval returns the event retry interval as a duration.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.Events.RetrySecs) * time.Second
}

// Load reads a YAML config file over the defaults and validates the
// result. An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate unifies the config with the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("compile config schema: #Config not found")
	}

	val := ctx.Encode(c.schemaView())
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// schemaView renders the config with the field names the schema uses.
// cue.Encode follows JSON tags, and Config only carries YAML tags.
func (c Config) schemaView() map[string]any {
	return map[string]any{
		"db_path":  c.DBPath,
		"blob_dir": c.BlobDir,
		"name":     c.Name,
		"genesis":  c.Genesis,
		"relay": map[string]any{
			"url":    c.Relay.URL,
			"listen": c.Relay.Listen,
		},
		"exchange": map[string]any{
			"receive_window_secs": c.Exchange.ReceiveWindowSecs,
		},
		"events": map[string]any{
			"retry_secs": c.Events.RetrySecs,
		},
		"log_level": c.LogLevel,
	}
}
