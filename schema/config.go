package schema

// RestoreConfig controls how sessions are materialized.
type RestoreConfig struct {
	// LoadTabsOnActivation keeps restored tabs unloaded until they are activated.
	LoadTabsOnActivation bool
	// DefaultZoomLevel is the zoom index used for new and cleared records.
	DefaultZoomLevel int
}

// NormalizeRestoreConfig applies defaults and bounds.
func NormalizeRestoreConfig(cfg RestoreConfig) RestoreConfig {
	cfg.DefaultZoomLevel = ClampZoomLevel(cfg.DefaultZoomLevel)
	return cfg
}

// DefaultRestoreConfig returns the stock restore behavior.
func DefaultRestoreConfig() RestoreConfig {
	return RestoreConfig{
		LoadTabsOnActivation: true,
		DefaultZoomLevel:     DefaultZoomLevel,
	}
}
