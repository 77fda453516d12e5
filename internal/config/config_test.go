package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatorch/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	assert.Equal(t, ".fatorch-records", cfg.RecordDir)
	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, config.AOWriteEngineering, cfg.AOWriteMode)
	assert.Equal(t, time.Duration(5*time.Minute), time.Duration(cfg.DedupWindow))
}

func TestLoadConfigWithNoFilesReturnsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		Env:             map[string]string{},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxParallel)
	assert.Equal(t, filepath.Join(dir, ".fatorch-records"), cfg.RecordDirAbs)
}

func TestLoadConfigProjectFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{
		// station override
		"max_parallel": 8,
		"tolerance_ao": 3.5,
	}`)

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		Env:             map[string]string{},
	})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxParallel)
	assert.Equal(t, 3.5, cfg.ToleranceAO)
	assert.Equal(t, filepath.Join(dir, config.ConfigFileName), cfg.Sources.Project)
}

func TestLoadConfigExplicitPathMustExist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		ConfigPath:      "missing.json",
		Env:             map[string]string{},
	})
	assert.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func TestLoadConfigRecordDirOverrideWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride:   dir,
		RecordDirOverride: "/custom/records",
		Env:               map[string]string{},
	})
	require.NoError(t, err)

	assert.Equal(t, "/custom/records", cfg.RecordDirAbs)
}

func TestLoadConfigRejectsInvalidAOWriteMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"ao_write_mode": "bogus"}`)

	_, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		Env:             map[string]string{},
	})
	assert.ErrorIs(t, err, config.ErrInvalidAOWriteMode)
}

func TestDurationJSONRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"settle": "500ms"}`)

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride: dir,
		Env:             map[string]string{},
	})
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.Settle))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
