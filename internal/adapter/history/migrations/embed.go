// Package migrations holds the SQL schema for the history database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
