// Package migrations embeds the identity schema migrations.
package migrations

import "embed"

// FS holds the ordered golang-migrate files (NNNN_name.up.sql / .down.sql).
//
//go:embed *.sql
var FS embed.FS
