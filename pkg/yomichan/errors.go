package yomichan

import (
	"errors"
	"fmt"
)

// ArchiveOpenError is returned when the container cannot be opened or is
// not a zip archive.
type ArchiveOpenError struct {
	Path string
	Err  error
}

func (e *ArchiveOpenError) Error() string {
	return fmt.Sprintf("open archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveOpenError) Unwrap() error { return e.Err }

// DecodeError names the member whose content did not match its schema.
// Ingestion stops at the first one.
type DecodeError struct {
	Member string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Member, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ManifestMissingError is returned when an archive has no index.json.
type ManifestMissingError struct {
	Archive string
}

func (e *ManifestMissingError) Error() string {
	return fmt.Sprintf("%s: no %s found in archive", e.Archive, ManifestName)
}

// ErrDuplicateManifest is wrapped in a DecodeError when a second manifest
// member is found.
var ErrDuplicateManifest = errors.New("duplicate manifest")
