package db

import "embed"

// EmbedMigrations holds the journal schema migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
