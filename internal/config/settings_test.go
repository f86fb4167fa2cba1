package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	content := `{
  "provider": {"name": "openai", "model": "gpt-4o"},
  "harness": {"max_turns": 10, "min_score": 80, "strict": true},
  "scenarios": {"path": "my/scenarios"}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", settings.Provider.Name)
	assert.Equal(t, "gpt-4o", settings.Provider.Model)
	assert.Equal(t, 10, settings.Harness.MaxTurns)
	assert.Equal(t, 80, settings.Harness.MinScore)
	assert.True(t, settings.Harness.Strict)
	assert.Equal(t, "my/scenarios", settings.Scenarios.Path)
}

func TestLoadSettingsAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider": {"name": "claude-code"}}`), 0644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "claude-code", settings.Provider.Name)
	assert.Equal(t, DefaultMaxTurns, settings.Harness.MaxTurns)
	assert.Equal(t, DefaultMinScore, settings.Harness.MinScore)
	assert.Equal(t, "info", settings.Harness.LogLevel)
	assert.Equal(t, "fixtures/scenarios", settings.Scenarios.Path)
}

func TestLoadSettingsCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".trackeval", "settings.json")

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", settings.Provider.Name)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestLoadSettingsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse settings")
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "settings.json")

	settings := GetDefaultSettings()
	settings.Provider.Name = "copilot"
	settings.Harness.MaxTurns = 5

	require.NoError(t, SaveSettings(path, settings))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "copilot", loaded.Provider.Name)
	assert.Equal(t, 5, loaded.Harness.MaxTurns)
}

func TestValidateSettings(t *testing.T) {
	settings := GetDefaultSettings()
	settings.Provider.Name = "claude-code"
	assert.NoError(t, ValidateSettings(settings))

	settings.Provider.Name = "gemini"
	require.Error(t, ValidateSettings(settings))

	settings.Provider.Name = "claude-code"
	settings.Harness.MaxTurns = 0
	require.Error(t, ValidateSettings(settings))
}

func TestValidateSettingsAPIKeys(t *testing.T) {
	settings := GetDefaultSettings()

	settings.Provider.Name = "anthropic"
	t.Setenv("ANTHROPIC_API_KEY", "")
	require.Error(t, ValidateSettings(settings))
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	assert.NoError(t, ValidateSettings(settings))

	settings.Provider.Name = "openai"
	t.Setenv("OPENAI_API_KEY", "")
	require.Error(t, ValidateSettings(settings))
	t.Setenv("OPENAI_API_KEY", "sk-test")
	assert.NoError(t, ValidateSettings(settings))
}
