// Package migrations embeds the hub's SQL schema migrations.
//
// Pass FS to database.DB.Migrate at startup; the files are compiled into
// the binary so a deployment never depends on loose SQL on disk.
package migrations

import "embed"

// FS holds every YYYYMMDD_HHMMSS_name.{up,down}.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
