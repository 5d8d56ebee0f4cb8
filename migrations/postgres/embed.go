// Package migrations embeds the postgres schema files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
