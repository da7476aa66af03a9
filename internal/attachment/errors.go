package attachment

import "errors"

var (
	// ErrIOFailure is returned when a backing file cannot be created or
	// written. The attachment row is left without a usable URI.
	ErrIOFailure = errors.New("attachment i/o failure")

	// ErrNotManaged is returned for a URI that does not address a file in
	// the managed attachment directory.
	ErrNotManaged = errors.New("uri is not a managed attachment")

	// ErrNoBackingFile is returned when a managed URI has no file on disk.
	ErrNoBackingFile = errors.New("backing file does not exist")
)
