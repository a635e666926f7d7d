package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgsynth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "catalog:\n  file: shop.yaml\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "verbatim", cfg.Generator.NamingStrategy)
	assert.Equal(t, 1, cfg.Generator.MaxNestedDepth)
	assert.Equal(t, 100, cfg.Generator.DefaultPageSize)
	assert.Equal(t, 1000, cfg.Generator.MaxPageSize)
	assert.True(t, cfg.Generator.ExposeRoutines)
	assert.Equal(t, 30*time.Second, cfg.Generator.Timeout)
	assert.Equal(t, ":8080", cfg.REST.ListenAddr)
	assert.Equal(t, []string{"*"}, cfg.REST.CORSOrigins)
	assert.Equal(t, uint64(3), cfg.Database.ConnectRetries)
	assert.Equal(t, "pgsynth", cfg.Reload.Channel)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.File)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
catalog:
  file: shop.yaml
generator:
  naming_strategy: snake
  max_page_size: 500
  excluded_namespaces: [internal, "audit_*"]
  timeout: 5s
rest:
  base_path: /api
`)
	t.Setenv("PGSYNTH_GENERATOR_MAX_PAGE_SIZE", "250")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("generator.naming_strategy", "verbatim", "")
	require.NoError(t, flags.Parse([]string{"--generator.naming_strategy=camel"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "camel", cfg.Generator.NamingStrategy)
	assert.Equal(t, 250, cfg.Generator.MaxPageSize)
	assert.Equal(t, []string{"internal", "audit_*"}, cfg.Generator.ExcludedNamespaces)

	opts := cfg.Synth()
	assert.Equal(t, model.Camel, opts.Model.NamingStrategy)
	assert.Equal(t, "/api", opts.Route.BasePath)
	assert.Equal(t, 250, opts.Route.MaxPageSize)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.False(t, opts.Scope.Allows("audit_2024"))
	assert.True(t, opts.Scope.Allows("public"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no source", "generator:\n  max_page_size: 10\n", "is required"},
		{"strategy", "catalog:\n  file: x.yaml\ngenerator:\n  naming_strategy: kebab\n", "NamingStrategy"},
		{"page sizes", "catalog:\n  file: x.yaml\ngenerator:\n  default_page_size: 50\n  max_page_size: 10\n", "MaxPageSize"},
		{"depth", "catalog:\n  file: x.yaml\ngenerator:\n  max_nested_depth: 9\n", "MaxNestedDepth"},
		{"pattern", "catalog:\n  file: x.yaml\ngenerator:\n  included_namespaces: [\"[\"]\n", "invalid namespace pattern"},
		{"watch needs file", "database:\n  conn_string: postgres://localhost\nreload:\n  watch_file: true\n", "watch_file"},
		{"notify needs db", "catalog:\n  file: x.yaml\nreload:\n  notify: true\n", "reload.notify"},
		{"nats subject", "catalog:\n  file: x.yaml\nreload:\n  nats:\n    url: nats://localhost:4222\n", "Subject"},
		{"log level", "catalog:\n  file: x.yaml\nlog:\n  level: chatty\n", "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	logger, err := LogConfig{Level: "debug", Development: true}.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	_, err = LogConfig{Level: "loud"}.Logger()
	assert.Error(t, err)
}
