//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec with the mattn/go-sqlite3 driver as an
	// auto-loading extension. Builds without the tag fall back to the
	// brute-force scan.
	vec.Auto()
}
