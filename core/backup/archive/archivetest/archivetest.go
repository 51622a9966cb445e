// Package archivetest builds export archives for tests.
package archivetest

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// File is one member of a test archive. A name ending in "/" is written as a
// directory.
type File struct {
	Name string
	Body string
}

// Bytes returns a tar stream, gzip-compressed when gz is true.
func Bytes(t testing.TB, gz bool, files ...File) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for _, f := range files {
		hdr := &tar.Header{Name: f.Name, Mode: 0o644, Size: int64(len(f.Body)), Typeflag: tar.TypeReg}
		if len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/' {
			hdr = &tar.Header{Name: f.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", f.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(f.Body)); err != nil {
				t.Fatalf("tar body %s: %v", f.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if !gz {
		return tarBuf.Bytes()
	}
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(tarBuf.Bytes()); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return out.Bytes()
}

// Write stores a gzip-compressed archive in a temp dir and returns its path.
func Write(t testing.TB, files ...File) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.tar.gz")
	if err := os.WriteFile(path, Bytes(t, true, files...), 0o600); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}
