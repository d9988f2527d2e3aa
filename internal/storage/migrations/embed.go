package migrations

import "embed"

// FS carries the versioned schema files the SQLite store applies on
// open, in lexical order.
//
//go:embed *.sql
var FS embed.FS
