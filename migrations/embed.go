package migrations

import "embed"

// Files expone los archivos SQL embebidos, aplicados en orden lexicografico.
//
//go:embed *.sql
var Files embed.FS
