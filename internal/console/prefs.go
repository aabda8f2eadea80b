// ABOUTME: Operator preferences for the console, stored as TOML
// ABOUTME: Lives under the XDG config directory next to the main config file

package console

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Prefs are the per-operator console preferences. Missing file means
// defaults; a broken file is an error so typos do not silently reset
// someone's setup.
type Prefs struct {
	// DefaultSort is the list sort applied on startup and by bare /list.
	DefaultSort string `toml:"default_sort"`

	// Color toggles ANSI colors in the output.
	Color bool `toml:"color"`

	// ListLimit caps rows shown by /list. Zero means show everything the
	// store holds.
	ListLimit int `toml:"list_limit"`
}

// DefaultPrefs returns the stock preferences.
func DefaultPrefs() Prefs {
	return Prefs{
		DefaultSort: "latest",
		Color:       true,
	}
}

// PrefsPath returns the preferences file location, honoring XDG_CONFIG_HOME.
func PrefsPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "leadwatch", "console.toml"), nil
}

// LoadPrefs reads preferences from path. A missing file returns defaults.
func LoadPrefs(path string) (Prefs, error) {
	prefs := DefaultPrefs()
	if _, err := toml.DecodeFile(path, &prefs); err != nil {
		if os.IsNotExist(err) {
			return DefaultPrefs(), nil
		}
		return Prefs{}, fmt.Errorf("parsing preferences: %w", err)
	}
	return prefs, nil
}

// SavePrefs writes preferences to path, creating parent directories.
func SavePrefs(path string, prefs Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating preferences directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(prefs); err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	return nil
}
