package migrations

import "embed"

// FS contains embedded SQLite migrations for the module load ledger.
//
//go:embed *.sql
var FS embed.FS
