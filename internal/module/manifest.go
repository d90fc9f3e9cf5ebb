package module

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrManifestNotFound is returned by a ManifestReader when a directory has no manifest.
var ErrManifestNotFound = errors.New("manifest not found")

// DefaultManifestNames are probed in order by FileManifestReader.
var DefaultManifestNames = []string{"module.json", "module.yaml", "module.yml"}

// ManifestReader loads the raw manifest document of a module directory.
type ManifestReader interface {
	ReadManifest(dir string) (Document, error)
}

// FileSystem answers the one filesystem question the Manager asks.
type FileSystem interface {
	IsDir(path string) bool
}

// OSFileSystem checks the local filesystem.
type OSFileSystem struct{}

func (OSFileSystem) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileManifestReader reads the first manifest file found in a directory.
// JSON manifests are decoded by the YAML parser, which accepts them as-is.
type FileManifestReader struct {
	Names []string
}

func (r FileManifestReader) ReadManifest(dir string) (Document, error) {
	names := r.Names
	if len(names) == 0 {
		names = DefaultManifestNames
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("module: read %s: %w", path, err)
		}
		doc, err := DecodeManifest(data)
		if err != nil {
			return nil, &DescriptionError{
				Module: filepath.Base(filepath.Clean(dir)),
				Field:  name,
				Err:    ErrWrongFieldType,
				Detail: fmt.Sprintf("a JSON or YAML object (%v)", err),
			}
		}
		return doc, nil
	}
	return nil, fmt.Errorf("module: %s: %w", dir, ErrManifestNotFound)
}

// DecodeManifest decodes a JSON or YAML manifest payload.
func DecodeManifest(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("manifest payload is empty")
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("manifest payload is empty")
	}
	return Document(raw), nil
}
