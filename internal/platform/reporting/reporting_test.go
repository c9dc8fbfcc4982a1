package reporting

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local)
	if got := FileName(ts); got != "2024-03-05-07-08-09.csv" {
		t.Errorf("FileName() = %q, want %q", got, "2024-03-05-07-08-09.csv")
	}
}

func TestFileName_UsesLocalTime(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC)
	want := ts.Local().Format(TimestampLayout) + ".csv"
	if got := FileName(ts); got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

func TestCreate_TimestampedInDir(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local)

	r, err := Create(now, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := io.WriteString(r, "File Name, First Name\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := r.Close()
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	wantPath := filepath.Join(dir, "2024-03-05-07-08-09.csv")
	if res.Path != wantPath {
		t.Errorf("expected path %s, got %s", wantPath, res.Path)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(data) != "File Name, First Name\n" {
		t.Errorf("unexpected content %q", data)
	}
	if res.Bytes != int64(len(data)) {
		t.Errorf("expected %d bytes, got %d", len(data), res.Bytes)
	}
	sum := xxhash.Sum64(data)
	want := hex.EncodeToString([]byte{
		byte(sum >> 56), byte(sum >> 48), byte(sum >> 40), byte(sum >> 32),
		byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum),
	})
	if res.Checksum != want {
		t.Errorf("expected checksum %s, got %s", want, res.Checksum)
	}
}

func TestCreate_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.csv")
	r, err := Create(time.Now(), Options{Dir: "/ignored", Path: path})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if r.Path() != path {
		t.Errorf("expected path %s, got %s", path, r.Path())
	}
	if _, err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected report file to exist: %v", err)
	}
}

func TestCreate_RefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.csv")
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, err := Create(time.Now(), Options{Path: path})
	if !errors.Is(err, ErrReportExists) {
		t.Fatalf("expected ErrReportExists, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "previous run\n" {
		t.Errorf("existing report was modified: %q", data)
	}
}

func TestCreate_MissingDir(t *testing.T) {
	_, err := Create(time.Now(), Options{Dir: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestCreate_BOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.csv")
	r, err := Create(time.Now(), Options{Path: path, BOM: true})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := io.WriteString(r, "Zoë\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := r.Close()
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Zoë\n")...)
	if !bytes.Equal(data, want) {
		t.Errorf("expected %q, got %q", want, data)
	}
	if res.Bytes != int64(len(want)) {
		t.Errorf("expected %d bytes, got %d", len(want), res.Bytes)
	}
}

func TestClose_Twice(t *testing.T) {
	r, err := Create(time.Now(), Options{Path: filepath.Join(t.TempDir(), "forms.csv")})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := r.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if _, err := r.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}
