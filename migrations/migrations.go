// Package migrations embeds the schema for payloads, reports and queue items.
package migrations

import "embed"

// SqliteMigrations holds the SQLite dialect, applied in filename order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds the PostgreSQL dialect, applied in filename order.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
