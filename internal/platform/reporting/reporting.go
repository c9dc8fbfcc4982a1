// Package reporting owns the export's output file: its timestamped name,
// creation, optional spreadsheet-friendly encoding and final checksum.
package reporting

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrReportExists is returned when the output file is already present.
var ErrReportExists = errors.New("report file already exists")

// TimestampLayout names report files by their local creation time.
const TimestampLayout = "2006-01-02-15-04-05"

// FileName returns the report file name for a run started at t.
func FileName(t time.Time) string {
	return t.Local().Format(TimestampLayout) + ".csv"
}

// Options controls how a report file is created.
type Options struct {
	// Dir receives the timestamped file when Path is empty.
	Dir string
	// Path overrides the timestamped name.
	Path string
	// BOM prefixes the file with a UTF-8 byte order mark.
	BOM bool
}

// Report is an open report file. Writes are buffered until Close.
type Report struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	enc     io.WriteCloser
	hash    *xxhash.Digest
	counter *countingWriter
	w       io.Writer
	closed  bool
}

// Result describes a closed report.
type Result struct {
	Path     string
	Bytes    int64
	Checksum string
}

// Create creates a new report file. It never overwrites: an existing file
// yields ErrReportExists.
func Create(now time.Time, opts Options) (*Report, error) {
	path := opts.Path
	if path == "" {
		path = filepath.Join(opts.Dir, FileName(now))
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrReportExists, path)
		}
		return nil, fmt.Errorf("create report %s: %w", path, err)
	}

	r := &Report{
		path:    path,
		file:    f,
		buf:     bufio.NewWriter(f),
		hash:    xxhash.New(),
		counter: &countingWriter{},
	}

	var out io.Writer = io.MultiWriter(r.buf, r.hash, r.counter)
	if opts.BOM {
		r.enc = transform.NewWriter(out, unicode.UTF8BOM.NewEncoder())
		out = r.enc
	}
	r.w = out

	return r, nil
}

// Path returns the report's file path.
func (r *Report) Path() string { return r.path }

func (r *Report) Write(p []byte) (int, error) {
	return r.w.Write(p)
}

// Close flushes buffered content and closes the file. The file is kept even
// when flushing fails, as evidence of a partial run.
func (r *Report) Close() (Result, error) {
	res := Result{Path: r.path}
	if r.closed {
		return res, nil
	}
	r.closed = true

	var errs []error
	if r.enc != nil {
		if err := r.enc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("flush encoder: %w", err))
		}
	}
	if err := r.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush report: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close report: %w", err))
	}

	res.Bytes = r.counter.n
	res.Checksum = hex.EncodeToString(r.hash.Sum(nil))
	return res, errors.Join(errs...)
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
