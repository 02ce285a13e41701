// Package migrations holds the numbered sqlite schema files
package migrations

import "embed"

// FS contains every NNN_name.sql migration
//
//go:embed *.sql
var FS embed.FS
