package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	// StateDir holds the app-state DB and the watch-folder settings.
	StateDir string `yaml:"state_dir"`

	// App-state DB. sqlite (default, file under StateDir) or postgres.
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	// Folders scanned for *.db banks on top of what the user registers
	// at runtime.
	BankDirs []string `yaml:"bank_dirs"`

	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`
}

func FromEnv() Config {
	stateDir := envOr("STATE_DIR", defaultStateDir())
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", "127.0.0.1:8931"),
		StateDir:    stateDir,
		DBDriver:    envOr("DB_DRIVER", "sqlite"),
		DBDSN:       envOr("DB_DSN", ""),
		BankDirs:    csvOr("BANK_DIRS", ""),
		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:1420,http://localhost:3000"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
	}
}

// Load starts from the environment and lets an optional YAML file
// override non-empty fields. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, err
	}
	merge(&cfg, file)
	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.HTTPAddr != "" {
		dst.HTTPAddr = src.HTTPAddr
	}
	if src.StateDir != "" {
		dst.StateDir = src.StateDir
	}
	if src.DBDriver != "" {
		dst.DBDriver = src.DBDriver
	}
	if src.DBDSN != "" {
		dst.DBDSN = src.DBDSN
	}
	if len(src.BankDirs) > 0 {
		dst.BankDirs = src.BankDirs
	}
	if len(src.CORSOrigins) > 0 {
		dst.CORSOrigins = src.CORSOrigins
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// SettingsPath is where the bank registry persists its watch folders.
func (c Config) SettingsPath() string {
	return filepath.Join(c.StateDir, "watch_folders.json")
}

// StateDSN resolves the sqlite DSN under StateDir when none is set.
func (c Config) StateDSN() string {
	if c.DBDSN != "" || c.DBDriver != "sqlite" {
		return c.DBDSN
	}
	return "file:" + filepath.Join(c.StateDir, "quizforge.db") + "?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "quizforge")
	}
	return "./data"
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
