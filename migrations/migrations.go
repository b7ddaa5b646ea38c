package migrations

import "embed"

// Embedded migration files bundled at compile time
// Single binary deployment without external file dependencies
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS

// ForDriver returns the migration set and its directory for a sqlx driver name.
func ForDriver(driver string) (embed.FS, string, bool) {
	switch driver {
	case "sqlite3":
		return SqliteMigrations, "sqlite", true
	case "postgres":
		return PostgresMigrations, "postgres", true
	default:
		return embed.FS{}, "", false
	}
}
