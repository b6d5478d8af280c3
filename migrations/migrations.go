// Package migrations embeds the SQL files of the console audit schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
