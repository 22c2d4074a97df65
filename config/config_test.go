package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir string, name string, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FMP_KEY", "from-env")

	cfg, err := Read("", filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "runtime", cfg.Isolation)
	assert.True(t, cfg.StopOnWatch)
	assert.Equal(t, "from-env", cfg.Fetch.APIKey)
	assert.Same(t, cfg, GlobalCfg)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OTHER_KEY", "other")

	path := writeFile(t, dir, "dval.yml", `
timeout-seconds: 2.5
marker: jQuery.when
function-name: valuate
isolation: process
stop-on-watch: false
api-key-env: OTHER_KEY
requests-per-second: 4
burst: 2
endpoints:
  get_quote: http://localhost/quote/{ticker}
log-level: debug
log-format: json
log-file: /tmp/dval.log
log-max-age: 7
`)

	cfg, err := Read(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "jQuery.when", cfg.Marker)
	assert.Equal(t, "valuate", cfg.FunctionName)
	assert.Equal(t, "process", cfg.Isolation)
	assert.False(t, cfg.StopOnWatch)
	assert.Equal(t, "other", cfg.Fetch.APIKey)
	assert.Equal(t, 4.0, cfg.Fetch.RequestsPerSecond)
	assert.Equal(t, 2, cfg.Fetch.Burst)
	assert.Equal(t, map[string]string{"get_quote": "http://localhost/quote/{ticker}"}, cfg.Fetch.Endpoints)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json", File: "/tmp/dval.log", MaxAge: 7}, cfg.Logging)
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()

	envFile := writeFile(t, dir, ".env", "DVAL_TEST_KEY=from-dotenv\n")
	path := writeFile(t, dir, "dval.yml", "api-key-env: DVAL_TEST_KEY\n")

	cfg, err := Read(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Fetch.APIKey)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	noEnv := filepath.Join(dir, "missing.env")

	tests := []struct {
		name     string
		contents string
	}{
		{"unknown key", "timeout: 5\n"},
		{"negative timeout", "timeout-seconds: -1\n"},
		{"unknown isolation", "isolation: container\n"},
		{"bad yaml", "marker: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "dval.yml", tt.contents)
			_, err := Read(path, noEnv)
			assert.Error(t, err)
		})
	}

	_, err := Read(filepath.Join(dir, "does-not-exist.yml"), noEnv)
	assert.Error(t, err, "an explicitly named config file must exist")
}
