package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigDefaultsWhenMissing(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.ModulesDir() != filepath.Join(projectDir, "modules") {
		t.Fatalf("unexpected modules dir %s", c.ModulesDir())
	}
	if c.LogPath() != filepath.Join(projectDir, ProjectDirName, "logs", "cnm.log") {
		t.Fatalf("unexpected log path %s", c.LogPath())
	}
	if !c.Autostart() || c.LogLevel() != "info" || c.MetricsAddress() != "" {
		t.Fatalf("unexpected defaults: %+v", c.Project)
	}
}

func TestInitProjectDirWritesDefaultConfig(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	projectDir := t.TempDir()
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatalf("InitProjectDir: %v", err)
	}
	for _, dir := range []string{".cnm", filepath.Join(".cnm", "logs"), "modules"} {
		info, err := os.Stat(filepath.Join(projectDir, dir))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if len(c.Exclude()) != 1 || c.Exclude()[0] != "**/.*" {
		t.Fatalf("unexpected exclude list %v", c.Exclude())
	}
	// A second init must keep user edits.
	custom := "version: 1\nmodules:\n  directory: plugins\n"
	if err := os.WriteFile(c.ProjectConfigPath(), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatalf("second InitProjectDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(projectDir, "plugins")); err != nil {
		t.Fatalf("expected configured modules directory to be created: %v", err)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	projectDir := t.TempDir()
	stateDir := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
modules:
  directory: /srv/modules
  exclude:
    - "  legacy-*  "
    - ""
  autostart: false
logging:
  level: " WARN "
  file: /var/log/cnm.log
metrics:
  address: 127.0.0.1:9464
`)
	if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.ModulesDir() != filepath.Clean("/srv/modules") {
		t.Fatalf("absolute modules dir should be kept, got %s", c.ModulesDir())
	}
	if len(c.Exclude()) != 1 || c.Exclude()[0] != "legacy-*" {
		t.Fatalf("unexpected exclude %v", c.Exclude())
	}
	if c.Autostart() {
		t.Fatalf("expected autostart disabled")
	}
	if c.LogLevel() != "warn" {
		t.Fatalf("expected normalized level, got %q", c.LogLevel())
	}
	if c.MetricsAddress() != "127.0.0.1:9464" {
		t.Fatalf("unexpected metrics address %q", c.MetricsAddress())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad level", yaml: "logging:\n  level: loud\n"},
		{name: "bad version", yaml: "version: -1\n"},
		{name: "bad metrics address", yaml: "metrics:\n  address: localhost\n"},
		{name: "not yaml", yaml: "modules: [unterminated\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			projectDir := t.TempDir()
			stateDir := filepath.Join(projectDir, ProjectDirName)
			if err := os.MkdirAll(stateDir, 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(tc.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewConfig(projectDir); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	projectDir := t.TempDir()
	t.Setenv(LogLevelEnv, "DEBUG")
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if c.LogLevel() != "debug" {
		t.Fatalf("expected env override, got %q", c.LogLevel())
	}
	t.Setenv(LogLevelEnv, "chatty")
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected invalid env level to fail")
	}
}

func TestSetAutostartPersists(t *testing.T) {
	t.Setenv(LogLevelEnv, "")
	projectDir := t.TempDir()
	if err := InitProjectDir(projectDir); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetAutostart(false); err != nil {
		t.Fatalf("SetAutostart: %v", err)
	}
	reloaded, err := NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Autostart() {
		t.Fatalf("expected autostart=false after reload")
	}
}
