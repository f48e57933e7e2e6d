// Package migrations embeds the store's SQLite schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
