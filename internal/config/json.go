package config

import (
	"encoding/json"
	"os"
)

// parseJSON overlays Config fields from a JSON file. The file path comes from
// the -c/-config flag or the CONFIG environment variable; when neither is set
// the overlay is skipped. Unknown or absent fields keep their current values.
func parseJSON(cfg *Config) {
	path := configFilePath()
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	overlay := struct {
		DataDir  *string `json:"data_dir"`
		Account  *string `json:"account"`
		Workers  *int    `json:"workers"`
		PageSize *int    `json:"page_size"`
	}{}
	if err := json.Unmarshal(data, &overlay); err != nil {
		return
	}

	if overlay.DataDir != nil {
		cfg.DataDir = *overlay.DataDir
	}
	if overlay.Account != nil {
		cfg.Account = *overlay.Account
	}
	if overlay.Workers != nil && *overlay.Workers > 0 {
		cfg.Workers = *overlay.Workers
	}
	if overlay.PageSize != nil && *overlay.PageSize > 0 {
		cfg.PageSize = *overlay.PageSize
	}
}
