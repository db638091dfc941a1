// Package config assembles runtime settings for notesync from defaults, a
// .env/environment overlay, an optional JSON file, and command-line flags.
// Later sources take precedence over earlier ones.
package config

// Config holds runtime settings for the sync core.
//
// Fields:
//   - DataDir: base directory holding one sync-state database per account.
//   - Account: identity selecting the active on-disk cache.
//   - Workers: dispatcher worker count.
//   - PageSize: hint for the remote listing page size (informational; the
//     service decides the actual page length).
type Config struct {
	DataDir  string `json:"data_dir"`
	Account  string `json:"account"`
	Workers  int    `json:"workers"`
	PageSize int    `json:"page_size"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "data"
	c.Account = "local"
	c.Workers = 4
	c.PageSize = 20
}

// Load constructs a Config, applies defaults, then overlays values from the
// environment (including a .env file if present), from JSON (if configured)
// and from command-line flags.
func Load() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
