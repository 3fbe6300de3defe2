// Package iohelper provides helper functions for I/O operations,
// particularly for safely reading HTTP response bodies with limits.
package iohelper

import (
	"io"

	"github.com/doppelscan/doppel/pkg/defaults"
)

// ReadBody reads from an io.Reader with a size limit and reports
// whether the source held more data than the limit. The truncated flag
// lets callers mark records whose evidence may be incomplete.
func ReadBody(r io.Reader, maxSize int64) (body []byte, truncated bool, err error) {
	if r == nil {
		return []byte{}, false, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > maxSize {
		return data[:maxSize], true, nil
	}
	return data, false, nil
}

// ReadBodyDefault reads with the default 1 MiB cap.
func ReadBodyDefault(r io.Reader) ([]byte, bool, error) {
	return ReadBody(r, defaults.MaxBodyBytes)
}

// DrainAndClose reads any remaining data from r and closes it if it is
// a ReadCloser. This keeps the connection reusable for HTTP keep-alive.
// Always returns nil so it can be used in defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}

	// Drain remaining data, bounded to keep a hostile server from
	// holding us here.
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))

	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}
