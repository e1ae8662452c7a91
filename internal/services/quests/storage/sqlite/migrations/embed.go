package migrations

import "embed"

// FS contains embedded SQLite migrations for quests storage.
//
//go:embed *.sql
var FS embed.FS
