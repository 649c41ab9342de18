package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/couchcryptid/prism-etl/internal/domain"
)

// ftpStore talks to the PRISM FTP server over a single anonymous control
// connection. FTP allows one transfer per control connection, so calls are
// serialized; the pipeline drives fetches sequentially anyway.
type ftpStore struct {
	conn *ftp.ServerConn
}

func newFTPStore(ctx context.Context, host string, timeout time.Duration) (*ftpStore, error) {
	addr := host
	if !strings.Contains(host, ":") {
		addr = host + ":21"
	}

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	)
	if err != nil {
		return nil, classifyFTP("ftp dial "+addr, err)
	}
	if err := conn.Login("anonymous", "anonymous"); err != nil {
		conn.Quit() //nolint:errcheck // already failing
		return nil, classifyFTP("ftp login", err)
	}
	return &ftpStore{conn: conn}, nil
}

func (s *ftpStore) Glob(_ context.Context, pattern string) ([]string, error) {
	dir := path.Dir(pattern)
	names, err := s.conn.NameList(dir)
	if err != nil {
		return nil, classifyFTP("ftp list "+dir, err)
	}

	var matches []string
	for _, name := range names {
		candidate := name
		if !strings.HasPrefix(name, "/") {
			candidate = path.Join(dir, name)
		}
		ok, err := path.Match(pattern, candidate)
		if err != nil {
			return nil, fmt.Errorf("bad glob pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, candidate)
		}
	}
	return matches, nil
}

func (s *ftpStore) Fetch(_ context.Context, remotePath, localPath string) error {
	resp, err := s.conn.Retr(remotePath)
	if err != nil {
		return classifyFTP("ftp retr "+remotePath, err)
	}
	defer resp.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, resp); err != nil {
		f.Close() //nolint:errcheck // already failing
		// A transfer interrupted mid-stream is a connectivity failure.
		return &domain.TransientError{Op: "ftp transfer " + remotePath, Err: err}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", localPath, err)
	}
	return nil
}

func (s *ftpStore) Close() error {
	return s.conn.Quit()
}

// classifyFTP sorts FTP failures into transient and permanent classes.
// Server replies in the 4xx range mean "transient negative completion" per
// RFC 959; 5xx replies (550 file unavailable and friends) are permanent.
// Anything that never got a server reply is a connectivity failure.
func classifyFTP(op string, err error) error {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		if proto.Code >= 400 && proto.Code < 500 {
			return &domain.TransientError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
