// Package migrations ships the schema and demo seed files with the binaries.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql
var schema embed.FS

//go:embed seeds/*.sql
var seeds embed.FS

// Schema returns the versioned up/down migrations.
func Schema() fs.FS {
	sub, _ := fs.Sub(schema, "sql")
	return sub
}

// Seeds returns the idempotent seed files.
func Seeds() fs.FS {
	sub, _ := fs.Sub(seeds, "seeds")
	return sub
}
