package database

import "errors"

var (
	// ErrNotFound is returned when no archived result matches a query.
	ErrNotFound = errors.New("no archived result found")

	// ErrArchiveMissing is returned by Open when CreateIfNotExists is false
	// and the database file does not exist.
	ErrArchiveMissing = errors.New("archive database not found")
)
