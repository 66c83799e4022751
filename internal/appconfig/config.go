package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/tabkeeper/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Session       SessionConfig `mapstructure:"session" yaml:"session"`
	Browser       BrowserConfig `mapstructure:"browser" yaml:"browser"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// SessionConfig controls the session file and how it is restored.
type SessionConfig struct {
	// File is the session file; relative paths resolve against state_dir.
	File                 string           `mapstructure:"file" yaml:"file"`
	LoadTabsOnActivation bool             `mapstructure:"load_tabs_on_activation" yaml:"load_tabs_on_activation"`
	DefaultZoomLevel     int              `mapstructure:"default_zoom_level" yaml:"default_zoom_level"`
	VirtualDesktops      bool             `mapstructure:"virtual_desktops" yaml:"virtual_desktops"`
	AutosaveSeconds      int              `mapstructure:"autosave_seconds" yaml:"autosave_seconds"`
	// Startup is one of StartupRestore, StartupRecovery or StartupFresh.
	Startup              string           `mapstructure:"startup" yaml:"startup"`
	Encryption           EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`
}

// Startup modes decide what happens to a saved session at launch.
const (
	StartupRestore  = "restore"
	StartupRecovery = "recovery"
	StartupFresh    = "fresh"
)

// EncryptionConfig enables encryption of the session file at rest.
type EncryptionConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	KeyStore string `mapstructure:"key_store" yaml:"key_store"`
}

// BrowserConfig configures the headless Chrome view backend.
type BrowserConfig struct {
	Headless bool              `mapstructure:"headless" yaml:"headless"`
	ExecPath string            `mapstructure:"exec_path" yaml:"exec_path"`
	Flags    map[string]string `mapstructure:"flags" yaml:"flags"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	stateDir := filepath.Join(home, ".tabkeeper", "state")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      stateDir,
		Session: SessionConfig{
			File:                 "session.dat",
			LoadTabsOnActivation: true,
			DefaultZoomLevel:     schema.DefaultZoomLevel,
			VirtualDesktops:      true,
			AutosaveSeconds:      30,
			Startup:              StartupRestore,
			Encryption: EncryptionConfig{
				Enabled:  false,
				KeyStore: filepath.Join(stateDir, "keys", "session.bundle"),
			},
		},
		Browser: BrowserConfig{
			Headless: true,
			ExecPath: "",
			Flags:    map[string]string{},
		},
		HTTP: HTTPConfig{
			Addr:     "127.0.0.1:27490",
			BasePath: "",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabkeeper", "config.yaml"), nil
}

// SessionPath returns the absolute session file path.
func (c Config) SessionPath() string {
	if c.Session.File == "" || filepath.IsAbs(c.Session.File) {
		return c.Session.File
	}
	return filepath.Join(c.StateDir, c.Session.File)
}

// KeyStorePath returns the key store path when encryption is enabled.
func (c Config) KeyStorePath() string {
	if !c.Session.Encryption.Enabled {
		return ""
	}
	return c.Session.Encryption.KeyStore
}

// RestoreConfig returns the restore settings for the core.
func (c Config) RestoreConfig() schema.RestoreConfig {
	return schema.NormalizeRestoreConfig(schema.RestoreConfig{
		LoadTabsOnActivation: c.Session.LoadTabsOnActivation,
		DefaultZoomLevel:     c.Session.DefaultZoomLevel,
	})
}
