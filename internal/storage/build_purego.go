//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// This file is compiled by default. It uses the pure Go SQLite driver, so no
// C compiler is required.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
