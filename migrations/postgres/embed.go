// Package migrations embebe los archivos SQL de PostgreSQL.
package migrations

import "embed"

// FS contiene las migraciones en orden lexicográfico (NNNN_nombre.sql).
//
//go:embed *.sql
var FS embed.FS
