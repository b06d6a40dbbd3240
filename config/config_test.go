package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Settings.SaveLocalCopy)
	assert.Equal(t, "data", cfg.Settings.DataDir)
	assert.Equal(t, ":8080", cfg.Settings.ListenAddr)
	assert.Equal(t, 4, cfg.Settings.MaxBatchSize)
	assert.True(t, cfg.DefaultSessionSecret())
	assert.Equal(t, filepath.Join("data", "studio.db"), cfg.DatabasePath())
	assert.Empty(t, cfg.Source())
}

func TestLoadJSONThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	conf := `{"API_KEYS":{"OPENAI_API_KEY":"from-file","RUNWAY_API_KEY":"rw"},"SETTINGS":{"MAX_BATCH_SIZE":6,"SAVE_LOCAL_COPY":false}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.json"), []byte(conf), 0o644))
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKeys.OpenAI)
	assert.Equal(t, "rw", cfg.APIKeys.Runway)
	assert.Equal(t, 6, cfg.Settings.MaxBatchSize)
	assert.False(t, cfg.Settings.SaveLocalCopy)
}

func TestLoadTOML(t *testing.T) {
	dir := chdirTemp(t)
	conf := "[API_KEYS]\nREPLICATE_API_TOKEN = \"r8_test\"\n\n[SETTINGS]\nLOG_FORMAT = \"JSON\"\nPOLL_INTERVAL_SECONDS = 3\n"
	path := filepath.Join(dir, "conf.toml")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "r8_test", cfg.APIKeys.Replicate)
	assert.Equal(t, "json", cfg.Settings.LogFormat)
	assert.Equal(t, 3, cfg.Settings.PollIntervalSeconds)
	assert.Equal(t, path, cfg.Source())
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STABILITY_API_KEY=sk-dotenv\n"), 0o644))
	t.Setenv("STABILITY_API_KEY", "")
	os.Unsetenv("STABILITY_API_KEY")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", cfg.APIKeys.Stability)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Settings.LogFormat = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Settings.MaxPollAttempts = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Settings.MaxBatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("does-not-exist.json")
	assert.Error(t, err)
}
