package logger

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("sandbox")
	assert.Equal(t, "sandbox", entry.Entry.Data["component"])
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	assert.Error(t, log.Configure("invalid", "json", "stdout", 0))
	assert.Error(t, log.Configure("info", "xml", "stdout", 0))
}

func TestConfigureEnvironmentWins(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	log := Logger()
	require.NoError(t, log.Configure("error", "text", "stderr", 0))
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestJSONOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	require.NoError(t, log.Configure("info", "json", "stdout", 0))

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithComponent("fetcher").WithFields(Fields{"url_count": 2}).Info("fetching")

	assert.Contains(t, buf.String(), `"component":"fetcher"`)
	assert.Contains(t, buf.String(), `"message":"fetching"`)
	assert.Contains(t, buf.String(), `"url_count":2`)
}

func TestRotatedFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "dval.log")
	log := Logger()
	require.NoError(t, log.Configure("info", "text", path, 7))

	rotated, ok := log.Out.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, path, rotated.Filename)
	assert.Equal(t, 7, rotated.MaxAge)
}
