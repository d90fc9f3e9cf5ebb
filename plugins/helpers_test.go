package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

// writeModuleDir creates root/name with a module.yaml manifest and extra files.
func writeModuleDir(t *testing.T, root, name, manifest string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, "module.yaml"), []byte(manifest), 0o644); err != nil {
			t.Fatalf("write manifest: %v", err)
		}
	}
	for file, body := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
	return dir
}

func noopManager(t *testing.T) *module.Manager {
	t.Helper()
	mgr := module.NewManager()
	if err := mgr.RegisterInterpreter("noop", module.InterpreterFuncs{}); err != nil {
		t.Fatalf("register noop: %v", err)
	}
	return mgr
}

func noopManifest(name string, deps ...string) string {
	out := "name: " + name + "\nversion: 1.0.0\nlanguage: noop\n"
	if len(deps) > 0 {
		out += "dependencies:\n"
		for _, dep := range deps {
			out += "  - " + dep + "\n"
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
