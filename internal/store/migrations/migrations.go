// Package migrations embeds the SQL migrations for the Postgres blob backend.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
