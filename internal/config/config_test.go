package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
	t.Cleanup(viper.Reset)
	viper.Reset()
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, "jwt:\n  secret: short\nstorage:\n  local_path: "+uploads+"\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Proctoring.MaxWarningCount)
	assert.Equal(t, 12, cfg.Proctoring.LoginCodeLength)
	assert.Zero(t, cfg.Proctoring.SweepIntervalSeconds, "background sweep must be opt-in")
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpireTime)
	assert.DirExists(t, uploads)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := writeConfig(t, "server:\n  mode: release\njwt:\n  secret: short\n")
	_, err := LoadConfig(dir)
	assert.Error(t, err)

	dir = writeConfig(t, "jwt:\n  secret: short\nproctoring:\n  max_warning_count: 0\nstorage:\n  local_path: "+t.TempDir()+"\n")
	_, err = LoadConfig(dir)
	assert.Error(t, err)
}
