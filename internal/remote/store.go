// Package remote provides the remote file store capability the pipeline
// fetches PRISM archives from: glob-style listing plus fetch-to-local-path.
// Implementations exist for the PRISM FTP server, an S3 mirror, and a local
// directory tree used by tests and pre-mirrored data.
package remote

import (
	"context"
	"fmt"
	"time"
)

// Store is a read-only remote file store. One Store handle is opened per run
// and shared across all fetches. Implementations classify connectivity-class
// failures with domain.TransientError so the unpacker knows what to retry;
// permanent conditions (missing files, malformed patterns) are returned as-is.
type Store interface {
	// Glob lists remote paths matching a slash-separated glob pattern.
	// The pattern's wildcards appear only in the final path element.
	Glob(ctx context.Context, pattern string) ([]string, error)

	// Fetch downloads one remote file to the given local path.
	Fetch(ctx context.Context, remotePath, localPath string) error

	// Close releases the underlying connection, if any.
	Close() error
}

// Protocols supported by Open.
const (
	ProtocolFTP   = "ftp"
	ProtocolS3    = "s3"
	ProtocolLocal = "file"
)

// Config selects and parameterizes a Store implementation.
type Config struct {
	Protocol string        // ftp, s3, or file
	Host     string        // FTP host, port 21 assumed when absent
	Timeout  time.Duration // dial and I/O timeout for network stores

	// S3 settings.
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO-backed tests

	// Local settings.
	Root string // directory treated as the remote root
}

// Open builds the Store selected by cfg.Protocol.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Protocol {
	case ProtocolFTP:
		return newFTPStore(ctx, cfg.Host, cfg.Timeout)
	case ProtocolS3:
		return newS3Store(ctx, cfg)
	case ProtocolLocal:
		return NewLocalStore(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown remote protocol %q", cfg.Protocol)
	}
}
