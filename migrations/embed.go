// Package migrations embeds the review store schema.
package migrations

import "embed"

// FS holds the *.up.sql files applied at startup by the postgres backend.
//
//go:embed *.up.sql
var FS embed.FS
