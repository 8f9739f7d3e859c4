package assets

import "embed"

const (
	SqliteMigrationDir = "migrations/sqlite"
)

//go:embed migrations/*
var EmbedMigrations embed.FS
