// Package migrations embeds the SQLite schema migrations
package migrations

import "embed"

// FS holds the versioned *.sql files
//
//go:embed *.sql
var FS embed.FS
