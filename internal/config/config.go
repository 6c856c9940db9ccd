// Package config loads NanoDB's YAML configuration file, following the
// optional-file-with-defaults pattern cuemby-warren's cmd/warren/apply.go
// uses for its own YAML config, and the gopkg.in/yaml.v3 dependency both
// cuemby-warren and SimonWaldherr-tinySQL carry.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nanodb/nanodb/internal/dblog"
)

// Config holds the settings an engine instance needs at startup.
type Config struct {
	DataDir         string      `yaml:"data_dir"`
	PageSize        int         `yaml:"page_size"`
	BufferPoolPages int         `yaml:"buffer_pool_pages"`
	Transactions    bool        `yaml:"transactions"`
	Log             LogConfig   `yaml:"log"`
}

// LogConfig mirrors the fields dblog.Config needs, kept separate so
// internal/config does not need to import a zerolog-flavored type into its
// YAML schema.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Defaults returns the configuration used when no file is present, matching
// spec.md's default page size and the "transactions enabled" default for
// the nanodb.transactions toggle (spec §6).
func Defaults() Config {
	return Config{
		DataDir:         "./nanodb-data",
		PageSize:        4096,
		BufferPoolPages: 1024,
		Transactions:    true,
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads a YAML config file at path, merging it over Defaults(). A
// missing file is not an error: Load returns the defaults unchanged, the
// same optional-file behavior cuemby-warren's apply.go implements.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DBLogConfig adapts this Config's Log section into a dblog.Config.
func (c Config) DBLogConfig() dblog.Config {
	level := dblog.InfoLevel
	switch c.Log.Level {
	case "debug":
		level = dblog.DebugLevel
	case "warn":
		level = dblog.WarnLevel
	case "error":
		level = dblog.ErrorLevel
	}
	return dblog.Config{Level: level, JSONOutput: c.Log.JSON}
}
