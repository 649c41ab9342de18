package domain

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// MalformedArchiveError reports an archive that does not contain exactly one
// .bil raster member. With zero members there is nothing to decode; with more
// than one the target raster is ambiguous. Neither case is retried.
type MalformedArchiveError struct {
	Archive string
	Rasters []string // .bil member names found, in archive order
}

func (e *MalformedArchiveError) Error() string {
	if len(e.Rasters) == 0 {
		return fmt.Sprintf("archive %s contains no .bil raster", e.Archive)
	}
	return fmt.Sprintf("archive %s contains %d .bil rasters (%s), expected exactly one",
		e.Archive, len(e.Rasters), strings.Join(e.Rasters, ", "))
}

// DateParseError reports a raster filename without a parseable YYYYMMDD token
// in the expected position.
type DateParseError struct {
	Filename string
	Err      error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("no acquisition date in filename %q: %v", e.Filename, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// TransientError marks a connectivity-class failure that is safe to retry.
// Remote store implementations wrap timeouts and dropped connections in it;
// permanent conditions such as a missing remote file are returned unwrapped.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the retryable connectivity class:
// either an explicit TransientError or a network timeout.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
