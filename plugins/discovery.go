package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

// ModuleDir is a module directory found on disk together with its parsed manifest.
type ModuleDir struct {
	Dir        string
	Descriptor module.Descriptor
}

// Discover scans the immediate subdirectories of root for module manifests.
// Subdirectories matching any exclude glob (relative to root) and
// subdirectories without a manifest are skipped. Broken manifests are
// reported in the joined error while the valid ones are still returned.
// A missing root is treated as "no modules".
func Discover(root string, exclude []string, reader module.ManifestReader) ([]ModuleDir, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return nil, nil
	}
	if reader == nil {
		reader = module.FileManifestReader{}
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", trimmed, err)
	}
	var (
		found []ModuleDir
		errs  []error
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		excluded, err := matchesAny(exclude, name)
		if err != nil {
			return nil, err
		}
		if excluded {
			continue
		}
		dir := filepath.Join(trimmed, name)
		doc, err := reader.ReadManifest(dir)
		if err != nil {
			if errors.Is(err, module.ErrManifestNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		desc, err := module.ParseDescriptor(dir, doc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found = append(found, ModuleDir{Dir: dir, Descriptor: desc})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Dir < found[j].Dir })
	return found, errors.Join(errs...)
}

func matchesAny(patterns []string, name string) (bool, error) {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		match, err := doublestar.Match(pattern, name)
		if err != nil {
			return false, fmt.Errorf("plugin: exclude pattern %q: %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// LoadAll loads the discovered modules so that every module comes after its
// hard and soft dependencies. It keeps going past failures and returns the
// modules that loaded together with the joined errors.
func LoadAll(ctx context.Context, mgr *module.Manager, dirs []ModuleDir) ([]*module.Module, error) {
	byName := make(map[string]string, len(dirs))
	descs := make([]module.Descriptor, 0, len(dirs))
	var errs []error
	for _, d := range dirs {
		if existing, dup := byName[d.Descriptor.Name]; dup {
			errs = append(errs, &module.DirectoryError{Path: d.Dir, Err: fmt.Errorf("%w: %s (also in %s)", module.ErrNameConflict, d.Descriptor.Name, existing)})
			continue
		}
		byName[d.Descriptor.Name] = d.Dir
		descs = append(descs, d.Descriptor)
	}
	ordered, err := module.LoadOrder(descs)
	if err != nil {
		// A cycle only affects ordering; Load itself never checks dependencies.
		errs = append(errs, err)
		ordered = descs
	}
	loaded := make([]*module.Module, 0, len(ordered))
	for _, desc := range ordered {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		mod, err := mgr.Load(ctx, byName[desc.Name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, mod)
	}
	return loaded, errors.Join(errs...)
}
