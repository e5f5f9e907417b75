package filestore

import "errors"

// Sentinel errors for the file backing.
var (
	// ErrRootRequired is returned by Open when Config.Root is empty.
	ErrRootRequired = errors.New("filestore: root directory required")

	// ErrMalformedRecord indicates a value file that does not decode.
	ErrMalformedRecord = errors.New("filestore: malformed record")
)
