// Package migrations embeds the agent's SQL schema into the binary.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS returns the embedded migrations, rooted at the .sql files.
func FS() fs.FS {
	return files
}
