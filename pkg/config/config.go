package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. KVDECK_SERVER or
// KVDECK_TLS_CA_CERT
const EnvPrefix = "KVDECK"

// Config represents the complete kvdeck configuration
type Config struct {
	// Server is the management API base URL
	Server string `mapstructure:"server"`

	// DataDir holds the session database and the cookie key
	DataDir string `mapstructure:"data_dir"`

	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`

	TLS      TLSConfig      `mapstructure:"tls"`
	Log      LogConfig      `mapstructure:"log"`
	Keyspace KeyspaceConfig `mapstructure:"keyspace"`

	// MetricsAddr serves Prometheus metrics when set (e.g. ":9090")
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// TLSConfig controls verification of the API server certificate
type TLSConfig struct {
	CACert             string `mapstructure:"ca_cert"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// KeyspaceConfig controls the key-space browser
type KeyspaceConfig struct {
	Delimiter string `mapstructure:"delimiter"`
	ListLimit int    `mapstructure:"list_limit"`
	TreeLimit int    `mapstructure:"tree_limit"`

	// ResolveStatus fetches the cluster connection state on selection
	ResolveStatus bool `mapstructure:"resolve_status"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server:    "http://localhost:8000/api",
		DataDir:   DefaultDataDir(),
		Timeout:   30 * time.Second,
		RateLimit: 10,
		RateBurst: 20,
		Log: LogConfig{
			Level: "info",
		},
		Keyspace: KeyspaceConfig{
			Delimiter:     "/",
			ListLimit:     100,
			TreeLimit:     500,
			ResolveStatus: true,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server", defaults.Server)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("rate_limit", defaults.RateLimit)
	v.SetDefault("rate_burst", defaults.RateBurst)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)

	v.SetDefault("tls.ca_cert", defaults.TLS.CACert)
	v.SetDefault("tls.insecure_skip_verify", defaults.TLS.InsecureSkipVerify)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.json", defaults.Log.JSON)

	v.SetDefault("keyspace.delimiter", defaults.Keyspace.Delimiter)
	v.SetDefault("keyspace.list_limit", defaults.Keyspace.ListLimit)
	v.SetDefault("keyspace.tree_limit", defaults.Keyspace.TreeLimit)
	v.SetDefault("keyspace.resolve_status", defaults.Keyspace.ResolveStatus)
}

// flagKeys maps CLI flag names onto config keys
var flagKeys = map[string]string{
	"server":    "server",
	"data-dir":  "data_dir",
	"timeout":   "timeout",
	"log-level": "log.level",
	"json-logs": "log.json",
	"ca-cert":   "tls.ca_cert",
	"insecure":  "tls.insecure_skip_verify",
	"metrics":   "metrics_addr",
	"delimiter": "keyspace.delimiter",
}

// LoadOptions select the sources Load reads
type LoadOptions struct {
	// ConfigFile is an explicit config path. It must exist when set;
	// otherwise ConfigFile() is read if present.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the environment if present.
	// Defaults to ".env" in the working directory.
	EnvFile string

	// Flags overrides config keys with flags the user set
	Flags *pflag.FlagSet
}

// Load merges defaults, the config file, the environment and flags, in
// increasing order of precedence, and validates the result
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case opts.ConfigFile != "":
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", opts.ConfigFile, err)
		}
	default:
		path := ConfigFile()
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.TLS.CACert = expandHome(cfg.TLS.CACert)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kvdeck")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kvdeck"
	}
	return filepath.Join(home, ".config", "kvdeck")
}

// ConfigFile returns the path to the default config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultDataDir returns ~/.kvdeck
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kvdeck"
	}
	return filepath.Join(home, ".kvdeck")
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
