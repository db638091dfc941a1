package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables. A .env file in
// the working directory is merged in first; a missing file is fine.
//
// Variables:
//
//	NOTESYNC_DATA_DIR   base data directory
//	NOTESYNC_ACCOUNT    active account name
//	NOTESYNC_WORKERS    dispatcher worker count
//	NOTESYNC_PAGE_SIZE  listing page size hint
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("NOTESYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NOTESYNC_ACCOUNT"); v != "" {
		cfg.Account = v
	}
	if v := os.Getenv("NOTESYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("NOTESYNC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PageSize = n
		}
	}
}
