// Package archive streams entries out of an export archive without unpacking
// it to disk.
package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	maxArchiveFiles      = 1 << 20
	maxEntryBytes        = 64 << 20
	maxUncompressedBytes = 16 << 30
)

var (
	// ErrNotFound is returned by Find when no entry has the requested path.
	ErrNotFound = errors.New("archive entry not found")
	// ErrEntryTooLarge marks a single oversized entry. The reader stays usable.
	ErrEntryTooLarge = errors.New("archive entry too large")
)

// Entry is one regular file inside the archive.
type Entry struct {
	Path    string
	Size    int64
	Content []byte
}

// Limits bounds what a Reader accepts.
type Limits struct {
	MaxFiles      int
	MaxEntryBytes int64
	MaxTotalBytes int64
}

// DefaultLimits returns the limits used by Open.
func DefaultLimits() Limits {
	return Limits{
		MaxFiles:      maxArchiveFiles,
		MaxEntryBytes: maxEntryBytes,
		MaxTotalBytes: maxUncompressedBytes,
	}
}

// Reader yields regular-file entries in archive order.
type Reader struct {
	name   string
	closer []io.Closer
	tr     *tar.Reader
	limits Limits
	files  int
	total  int64
}

// Open opens a tar archive, gzip-compressed or not, using DefaultLimits.
func Open(name string) (*Reader, error) {
	return OpenWithLimits(name, DefaultLimits())
}

// OpenWithLimits opens a tar archive with explicit limits.
func OpenWithLimits(name string, limits Limits) (*Reader, error) {
	// #nosec G304 -- archive path is provided by the local operator.
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := newReader(name, file, limits)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	r.closer = append(r.closer, file)
	return r, nil
}

func newReader(name string, src io.Reader, limits Limits) (*Reader, error) {
	br := bufio.NewReader(src)
	r := &Reader{name: name, limits: limits}
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip %s: %w", name, err)
		}
		r.closer = append(r.closer, gz)
		r.tr = tar.NewReader(gz)
		return r, nil
	}
	r.tr = tar.NewReader(br)
	return r, nil
}

// Name returns the path the archive was opened from.
func (r *Reader) Name() string {
	return r.name
}

// Next returns the next regular file. It returns io.EOF after the last entry.
// An oversized entry is returned without content together with an error
// wrapping ErrEntryTooLarge; the caller may keep reading.
func (r *Reader) Next() (*Entry, error) {
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.name, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		r.files++
		if r.limits.MaxFiles > 0 && r.files > r.limits.MaxFiles {
			return nil, fmt.Errorf("archive exceeds max files (%d)", r.limits.MaxFiles)
		}
		entry := &Entry{Path: CleanPath(hdr.Name), Size: hdr.Size}
		if hdr.Size < 0 || (r.limits.MaxEntryBytes > 0 && hdr.Size > r.limits.MaxEntryBytes) {
			return entry, fmt.Errorf("%s: %w (%d bytes)", entry.Path, ErrEntryTooLarge, hdr.Size)
		}
		r.total += hdr.Size
		if r.limits.MaxTotalBytes > 0 && r.total > r.limits.MaxTotalBytes {
			return nil, fmt.Errorf("archive exceeds max size (%d bytes)", r.limits.MaxTotalBytes)
		}
		content := make([]byte, hdr.Size)
		if _, err := io.ReadFull(r.tr, content); err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Path, err)
		}
		entry.Content = content
		return entry, nil
	}
}

// Close releases the decompressor and the underlying file.
func (r *Reader) Close() error {
	var first error
	for i := len(r.closer) - 1; i >= 0; i-- {
		if err := r.closer[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closer = nil
	return first
}

// Walk calls fn for every regular file in the archive. Per-entry size errors
// are passed to fn; any other read error stops the walk. Returning a non-nil
// error from fn stops the walk with that error.
func Walk(name string, fn func(*Entry, error) error) error {
	r, err := Open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		entry, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, ErrEntryTooLarge) {
			return err
		}
		if ferr := fn(entry, err); ferr != nil {
			return ferr
		}
	}
}

// Find returns the first entry whose cleaned path equals want.
func Find(name, want string) (*Entry, error) {
	want = CleanPath(want)
	var found *Entry
	errStop := errors.New("stop")
	err := Walk(name, func(entry *Entry, entryErr error) error {
		if entry.Path != want {
			return nil
		}
		if entryErr != nil {
			return entryErr
		}
		found = entry
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%s in %s: %w", want, name, ErrNotFound)
	}
	return found, nil
}

// CleanPath normalises a tar member name: forward slashes, no leading "./"
// or "/", no "." segments.
func CleanPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
