package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"styleinspect/internal/css"
)

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, css.SpecificityWeighted, cfg.SpecificityMode())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `specificity: tuple
max_import_depth: 2
base_dir: ` + dir + `
logging:
  console:
    level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, css.SpecificityTuple, cfg.SpecificityMode())
	assert.Equal(t, 2, cfg.MaxImportDepth)
	assert.Equal(t, dir, cfg.BaseDir)
	assert.Equal(t, "debug", cfg.Logging.ConsoleLogger.Level)

	// untouched keys keep their defaults
	assert.True(t, cfg.IDFastPath)
	assert.True(t, cfg.InlineStyle)
	assert.Equal(t, "none", cfg.Logging.FileLogger.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("specifity: tuple\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "specifity")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Specificity = "fancy"
	cfg.MaxImportDepth = -1
	cfg.Logging.ConsoleLogger.Level = "loud"
	cfg.Logging.FileLogger.Level = "debug"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.ErrorContains(t, err, "fancy")
	assert.ErrorContains(t, err, "max_import_depth")
	assert.ErrorContains(t, err, "loud")
	assert.ErrorContains(t, err, "destination")

	// an invalid value falls back to the default mode
	assert.Equal(t, css.SpecificityWeighted, cfg.SpecificityMode())
}

func TestDumpRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Specificity = "tuple"
	cfg.IDFastPath = false

	data, err := Dump(&cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}

func TestPrepareLogger(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "run.log")
	conf := LoggingConfig{
		ConsoleLogger: LoggerConfig{Level: "none"},
		FileLogger:    LoggerConfig{Level: "debug", Destination: dest},
	}

	log, closer, err := conf.Prepare()
	require.NoError(t, err)
	log.Debug("hello")
	require.NoError(t, log.Sync())
	require.NoError(t, closer())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), AppName)
}
