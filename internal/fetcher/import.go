package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ImportOptions configures a workbook import.
type ImportOptions struct {
	From   string // http(s)/ftp URL or local path
	Target string // workbook path to replace
	Sheet  string // sheet the probe must find; empty accepts the first sheet
	HTTP   HTTPOptions
	FTP    FTPOptions
}

// Result reports what an import did.
type Result struct {
	Changed bool   // false when an ETag match skipped the download
	Bytes   int64  // bytes written to the target
	Probe   *Probe // probe of the imported workbook, nil when unchanged
}

// ImportWorkbook fetches the source workbook and replaces the target with
// it. The download lands in a temp file next to the target and is probed
// as an xlsx workbook first, so a failed or bogus download never clobbers
// a good workbook. For http(s) sources an ETag sidecar file next to the
// target skips the download when the server reports the file unchanged.
func ImportWorkbook(ctx context.Context, opts ImportOptions) (*Result, error) {
	if opts.From == "" {
		return nil, eris.New("import: source is required")
	}
	if opts.Target == "" {
		return nil, eris.New("import: target path is required")
	}

	u, err := url.Parse(opts.From)
	if err != nil {
		return nil, eris.Wrap(err, "import: parse source")
	}

	switch u.Scheme {
	case "http", "https":
		return importHTTP(ctx, opts)
	case "ftp":
		return importFTP(ctx, opts)
	case "", "file":
		return importLocal(opts)
	default:
		return nil, eris.Errorf("import: unsupported scheme %q", u.Scheme)
	}
}

func importHTTP(ctx context.Context, opts ImportOptions) (*Result, error) {
	f := NewHTTPFetcher(opts.HTTP)

	// Only trust a recorded ETag while the workbook it belongs to is
	// still in place.
	etag := ""
	etagPath := opts.Target + ".etag"
	if _, err := os.Stat(opts.Target); err == nil {
		if b, readErr := os.ReadFile(etagPath); readErr == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	body, newETag, changed, err := f.DownloadIfChanged(ctx, opts.From, etag)
	if err != nil {
		return nil, err
	}
	if !changed {
		zap.L().Info("import: workbook unchanged",
			zap.String("from", opts.From),
			zap.String("etag", etag),
		)
		return &Result{Changed: false}, nil
	}
	defer body.Close() //nolint:errcheck

	res, err := replaceTarget(body, opts)
	if err != nil {
		return nil, err
	}

	if newETag != "" {
		if writeErr := os.WriteFile(etagPath, []byte(newETag+"\n"), 0o644); writeErr != nil {
			zap.L().Warn("import: could not record etag", zap.Error(writeErr))
		}
	} else {
		_ = os.Remove(etagPath)
	}

	return res, nil
}

func importFTP(ctx context.Context, opts ImportOptions) (*Result, error) {
	f := NewFTPFetcher(opts.FTP)

	rc, err := f.Download(ctx, opts.From)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	return replaceTarget(rc, opts)
}

func importLocal(opts ImportOptions) (*Result, error) {
	src := opts.From
	if strings.HasPrefix(src, "file://") {
		u, err := url.Parse(src)
		if err != nil {
			return nil, eris.Wrap(err, "import: parse source")
		}
		src = u.Path
	}

	absFrom, err := filepath.Abs(src)
	if err != nil {
		return nil, eris.Wrap(err, "import: resolve source")
	}
	absTarget, err := filepath.Abs(opts.Target)
	if err != nil {
		return nil, eris.Wrap(err, "import: resolve target")
	}
	if absFrom == absTarget {
		probe, err := ProbeXLSX(opts.Target, opts.Sheet)
		if err != nil {
			return nil, err
		}
		return &Result{Changed: false, Probe: probe}, nil
	}

	file, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrap(err, "import: open source")
	}
	defer file.Close() //nolint:errcheck

	return replaceTarget(file, opts)
}

// replaceTarget copies the payload into a temp file in the target's
// directory, probes it, and renames it over the target.
func replaceTarget(r io.Reader, opts ImportOptions) (*Result, error) {
	dir := filepath.Dir(opts.Target)
	tmp, err := os.CreateTemp(dir, ".enrich-import-*")
	if err != nil {
		return nil, eris.Wrap(err, "import: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op once renamed

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return nil, eris.Wrap(err, "import: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return nil, eris.Wrap(err, "import: close temp file")
	}

	probe, err := ProbeXLSX(tmpName, opts.Sheet)
	if err != nil {
		return nil, err
	}

	if err := os.Rename(tmpName, opts.Target); err != nil {
		return nil, eris.Wrap(err, "import: replace target")
	}

	zap.L().Info("import: workbook replaced",
		zap.String("target", opts.Target),
		zap.String("sheet", probe.Sheet),
		zap.Int("rows", probe.Rows),
		zap.Int64("bytes", n),
	)

	return &Result{Changed: true, Bytes: n, Probe: probe}, nil
}
