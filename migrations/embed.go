// Package migrations holds the schema. database.Pool.Migrate applies every
// *.up.sql file on start; the .down.sql files are for manual rollback.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
