// Package manifest reads the export metadata that records which command
// version produced each category of exported data.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/cordum/cordum-import/core/backup/archive"
	"github.com/cordum/cordum-import/core/backup/command"
)

const (
	// DefaultRoot is the top-level directory of an export archive.
	DefaultRoot = "cordum-bak"
	// FileName is the metadata entry inside the export root.
	FileName = "export-metadata.json"
)

// ErrMissingManifest is matched by every *MissingError.
var ErrMissingManifest = errors.New("export metadata missing")

// MissingError reports an archive without a metadata entry.
type MissingError struct {
	ExpectedPath string
	ArchivePath  string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("unable to find export metadata %s in archive %s", e.ExpectedPath, e.ArchivePath)
}

func (e *MissingError) Is(target error) bool {
	return target == ErrMissingManifest
}

// Metadata is the parsed export metadata. It is read once per import and not
// modified afterwards.
type Metadata struct {
	CommandVersions map[command.Name]int
	Timestamp       string
	ExporterVersion string
}

type rawMetadata struct {
	CommandVersions map[string]json.Number `json:"command-versions"`
	Timestamp       string                 `json:"timestamp,omitempty"`
	ExporterVersion string                 `json:"exporter-version,omitempty"`
}

// Path returns the metadata entry path for an export root.
func Path(root string) string {
	if root == "" {
		root = DefaultRoot
	}
	return archive.CleanPath(path.Join(root, FileName))
}

// Read finds and parses the metadata entry of the archive at archivePath.
func Read(archivePath, root string) (*Metadata, error) {
	want := Path(root)
	entry, err := archive.Find(archivePath, want)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, &MissingError{ExpectedPath: want, ArchivePath: archivePath}
		}
		return nil, err
	}
	meta, err := Parse(entry.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", want, err)
	}
	return meta, nil
}

// Parse decodes metadata content. Command names are converted to their
// canonical form; names this importer does not know are kept.
func Parse(data []byte) (*Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw rawMetadata
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse export metadata: %w", err)
	}
	if raw.CommandVersions == nil {
		return nil, errors.New("export metadata has no command-versions")
	}
	meta := &Metadata{
		CommandVersions: make(map[command.Name]int, len(raw.CommandVersions)),
		Timestamp:       raw.Timestamp,
		ExporterVersion: raw.ExporterVersion,
	}
	for key, num := range raw.CommandVersions {
		name, _ := command.ParseName(key)
		v, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("command-versions %s: %q is not an integer", key, num.String())
		}
		if err := command.ValidateVersion(name, int(v)); err != nil {
			return nil, fmt.Errorf("command-versions: %w", err)
		}
		meta.CommandVersions[name] = int(v)
	}
	return meta, nil
}

// Version returns the recorded version for a command.
func (m *Metadata) Version(name command.Name) (int, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m.CommandVersions[name]
	return v, ok
}

// Unknown lists recorded commands this importer has no route for, sorted.
func (m *Metadata) Unknown() []string {
	if m == nil {
		return nil
	}
	var out []string
	for name := range m.CommandVersions {
		if _, ok := command.ParseName(string(name)); !ok {
			out = append(out, string(name))
		}
	}
	sort.Strings(out)
	return out
}
