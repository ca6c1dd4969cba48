// Package fetcher retrieves remote workbooks for the import command.
// It downloads over http(s) or ftp into a temp file, probes that the
// payload really is an xlsx workbook with the expected sheet, and only
// then replaces the target file.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
