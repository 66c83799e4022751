package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/tabkeeper/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("session.file", cfg.Session.File)
	v.SetDefault("session.load_tabs_on_activation", cfg.Session.LoadTabsOnActivation)
	v.SetDefault("session.default_zoom_level", cfg.Session.DefaultZoomLevel)
	v.SetDefault("session.virtual_desktops", cfg.Session.VirtualDesktops)
	v.SetDefault("session.autosave_seconds", cfg.Session.AutosaveSeconds)
	v.SetDefault("session.startup", cfg.Session.Startup)
	v.SetDefault("session.encryption.enabled", cfg.Session.Encryption.Enabled)
	v.SetDefault("session.encryption.key_store", cfg.Session.Encryption.KeyStore)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.exec_path", cfg.Browser.ExecPath)
	v.SetDefault("browser.flags", cfg.Browser.Flags)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateSessionConfig(cfg.Session); err != nil {
		return Config{}, err
	}
	if err := validateHTTPConfig(cfg.HTTP); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateSessionConfig(cfg SessionConfig) error {
	if strings.TrimSpace(cfg.File) == "" {
		return fmt.Errorf("session.file is required")
	}
	if cfg.DefaultZoomLevel < 0 || cfg.DefaultZoomLevel >= len(schema.ZoomLevels) {
		return fmt.Errorf("session.default_zoom_level must be between 0 and %d", len(schema.ZoomLevels)-1)
	}
	if cfg.AutosaveSeconds < 0 {
		return fmt.Errorf("session.autosave_seconds must not be negative")
	}
	switch cfg.Startup {
	case StartupRestore, StartupRecovery, StartupFresh:
	default:
		return fmt.Errorf("session.startup must be one of %s, %s or %s", StartupRestore, StartupRecovery, StartupFresh)
	}
	if cfg.Encryption.Enabled && strings.TrimSpace(cfg.Encryption.KeyStore) == "" {
		return fmt.Errorf("session.encryption.key_store is required when encryption is enabled")
	}
	return nil
}

func validateHTTPConfig(cfg HTTPConfig) error {
	basePath := strings.TrimSpace(cfg.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Session.File = expandEnv(cfg.Session.File)
	cfg.Session.Encryption.KeyStore = expandEnv(cfg.Session.Encryption.KeyStore)
	cfg.Browser.ExecPath = expandEnv(cfg.Browser.ExecPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
