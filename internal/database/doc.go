// Package database archives scrape runs in SQLite.
//
// Each run gets a UUID and stores one row per target with the extracted
// fields as JSON and a SHA3-256 digest of those fields. Comparing digests
// across runs shows when a profile changed without diffing every field.
//
// The driver is modernc.org/sqlite, so the archive needs no cgo and is a
// single file under the XDG data directory.
package database
