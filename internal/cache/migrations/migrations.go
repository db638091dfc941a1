// Package migrations embeds the goose migrations for the sync-state cache.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
