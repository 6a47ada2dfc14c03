// Package migrations embeds SQL migration files.
package migrations

import "embed"

// ArchiveFS contains the migrations for the data stream creation archive.
//
//go:embed archive/*.sql
var ArchiveFS embed.FS

// ArchiveDir is the directory within ArchiveFS where migrations live.
const ArchiveDir = "archive"
