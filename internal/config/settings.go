// Package config loads harness settings from a JSON file, with a search path
// covering the working directory and the user's home.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpt/go-trackeval/pkg/logger"
)

// DefaultMaxTurns bounds the agentic loop when neither flags nor the settings
// file say otherwise.
const DefaultMaxTurns = 20

// DefaultMinScore is the pass threshold applied when unconfigured.
const DefaultMinScore = 70

// Settings represents the harness configuration.
type Settings struct {
	Provider  ProviderSettings `json:"provider"`
	Harness   HarnessSettings  `json:"harness"`
	Scenarios ScenarioSettings `json:"scenarios"`
}

// ProviderSettings selects and configures the agent strategy.
type ProviderSettings struct {
	Name     string `json:"name"`                // "anthropic", "openai", "claude-code", or "copilot"
	Model    string `json:"model,omitempty"`     // model name, empty means provider default
	TrackBin string `json:"track_bin,omitempty"` // path to the track binary for subprocess providers
}

// HarnessSettings contains session and scoring behavior.
type HarnessSettings struct {
	MaxTurns int    `json:"max_turns"`
	MinScore int    `json:"min_score"`
	Strict   bool   `json:"strict,omitempty"`
	LogLevel string `json:"log_level"`
}

// ScenarioSettings locates scenario directories.
type ScenarioSettings struct {
	Path string `json:"path"`
}

// LoadSettings loads settings from a JSON file. An empty path searches the
// standard locations and creates a default file when none exists.
func LoadSettings(configPath string) (*Settings, error) {
	if configPath == "" {
		configPath = findSettingsFile()
		if configPath == "" {
			return createDefaultSettingsFile()
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		settings, _ := createSettingsFileAtPath(configPath)
		return settings, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	applyDefaults(&settings)

	return &settings, nil
}

// SaveSettings writes settings to a JSON file.
func SaveSettings(configPath string, settings *Settings) error {
	if configPath == "" {
		configPath = findSettingsFile()
		if configPath == "" {
			configPath = filepath.Join(".trackeval", "settings.json")
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// GetDefaultSettings returns default harness settings.
func GetDefaultSettings() *Settings {
	return &Settings{
		Provider: ProviderSettings{
			Name: "anthropic",
		},
		Harness: HarnessSettings{
			MaxTurns: DefaultMaxTurns,
			MinScore: DefaultMinScore,
			LogLevel: "info",
		},
		Scenarios: ScenarioSettings{
			Path: "fixtures/scenarios",
		},
	}
}

// applyDefaults fills in missing fields with default values.
func applyDefaults(settings *Settings) {
	defaults := GetDefaultSettings()

	if settings.Provider.Name == "" {
		settings.Provider.Name = defaults.Provider.Name
	}
	if settings.Harness.MaxTurns == 0 {
		settings.Harness.MaxTurns = defaults.Harness.MaxTurns
	}
	if settings.Harness.MinScore == 0 {
		settings.Harness.MinScore = defaults.Harness.MinScore
	}
	if settings.Harness.LogLevel == "" {
		settings.Harness.LogLevel = defaults.Harness.LogLevel
	}
	if settings.Scenarios.Path == "" {
		settings.Scenarios.Path = defaults.Scenarios.Path
	}
}

// ValidateSettings validates the settings configuration, including the API
// key environment variables the selected provider needs.
func ValidateSettings(settings *Settings) error {
	switch settings.Provider.Name {
	case "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY environment variable)")
		}
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable)")
		}
	case "claude-code", "copilot":
		// Subprocess providers manage their own credentials.
	default:
		return fmt.Errorf("unsupported provider: %s (must be 'anthropic', 'openai', 'claude-code', or 'copilot')", settings.Provider.Name)
	}

	if settings.Harness.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive")
	}
	if settings.Harness.MinScore < 0 {
		return fmt.Errorf("min_score must not be negative")
	}

	return nil
}

// findSettingsFile searches for settings.json in order of preference:
// 1. .trackeval/settings.json in current directory
// 2. $HOME/.trackeval/settings.json
// Returns empty string if none found.
func findSettingsFile() string {
	currentDirPath := filepath.Join(".trackeval", "settings.json")
	if _, err := os.Stat(currentDirPath); err == nil {
		return currentDirPath
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		homeDirPath := filepath.Join(homeDir, ".trackeval", "settings.json")
		if _, err := os.Stat(homeDirPath); err == nil {
			return homeDirPath
		}
	}

	return ""
}

// createDefaultSettingsFile creates a default settings.json in ~/.trackeval/.
func createDefaultSettingsFile() (*Settings, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return GetDefaultSettings(), nil
	}

	settingsPath := filepath.Join(homeDir, ".trackeval", "settings.json")
	return createSettingsFileAtPath(settingsPath)
}

// createSettingsFileAtPath creates a default settings file at the specified
// path. Failures fall back to in-memory defaults.
func createSettingsFileAtPath(settingsPath string) (*Settings, error) {
	settings := GetDefaultSettings()

	if err := os.MkdirAll(filepath.Dir(settingsPath), 0755); err != nil {
		return settings, nil
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return settings, nil
	}

	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return settings, nil
	}

	logger.NewComponentLogger("settings").Info("Created default settings file", "path", settingsPath)

	return settings, nil
}
