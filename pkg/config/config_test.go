package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and XDG_CONFIG_HOME at a temp dir so the user's
// real config is never read
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000/api", cfg.Server)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.Keyspace.ListLimit)
	assert.Equal(t, "/", cfg.Keyspace.Delimiter)
	assert.True(t, cfg.Keyspace.ResolveStatus)
	assert.Empty(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load(LoadOptions{EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/api", cfg.Server)
	assert.Equal(t, filepath.Join(home, ".kvdeck"), cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadPrecedence(t *testing.T) {
	home := isolate(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: https://file.example.com/api
data_dir: ~/kv-data
timeout: 5s
log:
  level: debug
keyspace:
  list_limit: 250
  delimiter: "::"
`), 0600))

	t.Setenv("KVDECK_LOG_LEVEL", "warn")
	t.Setenv("KVDECK_KEYSPACE_LIST_LIMIT", "300")

	fs := pflag.NewFlagSet("kvdeck", pflag.ContinueOnError)
	fs.String("server", "", "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--server", "http://flag.example.com:8080/api"}))

	cfg, err := Load(LoadOptions{ConfigFile: path, EnvFile: noEnvFile(t), Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, "http://flag.example.com:8080/api", cfg.Server, "set flag beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file, unset flag does not override")
	assert.Equal(t, 300, cfg.Keyspace.ListLimit)
	assert.Equal(t, "::", cfg.Keyspace.Delimiter)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, filepath.Join(home, "kv-data"), cfg.DataDir)
}

func TestLoadDefaultConfigFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, "xdg", "kvdeck")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("rate_limit: 2.5\n"), 0600))

	cfg, err := Load(LoadOptions{EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.RateLimit)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"), EnvFile: noEnvFile(t)})
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	isolate(t)
	t.Cleanup(func() { os.Unsetenv("KVDECK_METRICS_ADDR") })

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("KVDECK_METRICS_ADDR=127.0.0.1:9090\n"), 0600))

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("KVDECK_SERVER", "ftp://example.com")
	t.Setenv("KVDECK_KEYSPACE_LIST_LIMIT", "5000")

	_, err := Load(LoadOptions{EnvFile: noEnvFile(t)})
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative server", func(c *Config) { c.Server = "/api" }, "server"},
		{"server without host", func(c *Config) { c.Server = "http://" }, "server"},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout"},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, "rate_limit"},
		{"zero burst", func(c *Config) { c.RateBurst = 0 }, "rate_burst"},
		{"empty delimiter", func(c *Config) { c.Keyspace.Delimiter = "" }, "keyspace.delimiter"},
		{"list limit zero", func(c *Config) { c.Keyspace.ListLimit = 0 }, "keyspace.list_limit"},
		{"tree limit too large", func(c *Config) { c.Keyspace.TreeLimit = 1001 }, "keyspace.tree_limit"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := isolate(t)

	assert.Equal(t, home, expandHome("~"))
	assert.Equal(t, filepath.Join(home, "x"), expandHome("~/x"))
	assert.Equal(t, "~user/x", expandHome("~user/x"))
	assert.Equal(t, "/abs", expandHome("/abs"))
	assert.Equal(t, "", expandHome(""))
}
