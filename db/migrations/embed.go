// Package migrations carries the SQL schema so the binary can migrate a
// database without the source tree on disk.
package migrations

import "embed"

// FS holds every NNNN_name.up.sql and NNNN_name.down.sql file.
//
//go:embed *.sql
var FS embed.FS
