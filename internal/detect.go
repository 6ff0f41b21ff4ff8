package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DataPaths holds where chat-session keeps its config, sessions and secrets
type DataPaths struct {
	ConfigDir string // config.yaml lives here
	DataDir   string // sessions.json and secrets.db live here
}

// DetectDataPaths detects the default locations based on the operating system
func DetectDataPaths() (DataPaths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataPaths{}, fmt.Errorf("failed to get home directory: %w", err)
	}

	var configDir, dataDir string
	switch runtime.GOOS {
	case "darwin":
		configDir = filepath.Join(home, "Library/Application Support/chat-session")
		dataDir = configDir
	case "linux":
		configDir = filepath.Join(home, ".config/chat-session")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "chat-session")
		}
		dataDir = filepath.Join(home, ".local/share/chat-session")
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = filepath.Join(xdg, "chat-session")
		}
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(base, "chat-session")
		dataDir = configDir
	default:
		return DataPaths{}, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}

	return DataPaths{ConfigDir: configDir, DataDir: dataDir}, nil
}

// GetDataPaths returns the detected paths, or paths rooted at customDir when set
func GetDataPaths(customDir string) (DataPaths, error) {
	if customDir == "" {
		return DetectDataPaths()
	}
	abs, err := filepath.Abs(customDir)
	if err != nil {
		return DataPaths{}, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return DataPaths{ConfigDir: abs, DataDir: abs}, nil
}

// ConfigPath returns the path of config.yaml
func (dp DataPaths) ConfigPath() string {
	return filepath.Join(dp.ConfigDir, "config.yaml")
}

// SessionsPath returns the path of the session list file
func (dp DataPaths) SessionsPath() string {
	return filepath.Join(dp.DataDir, "sessions.json")
}

// SecretsPath returns the path of the secret database
func (dp DataPaths) SecretsPath() string {
	return filepath.Join(dp.DataDir, "secrets.db")
}

// SessionsFileExists checks if the sessions file exists
func (dp DataPaths) SessionsFileExists() bool {
	_, err := os.Stat(dp.SessionsPath())
	return err == nil
}

// EnsureDirs creates the config and data directories
func (dp DataPaths) EnsureDirs() error {
	for _, dir := range []string{dp.ConfigDir, dp.DataDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
