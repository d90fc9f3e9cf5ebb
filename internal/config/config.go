// internal/config/config.go
//
// This package handles configuration and the .cnm directory structure.
// Every project hosting modules gets a .cnm/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".cnm"

	// LogLevelEnv overrides logging.level when set.
	LogLevelEnv = "CNM_LOG_LEVEL"

	defaultModulesDir = "modules"
	defaultLogFile    = "logs/cnm.log"
	defaultLogLevel   = "info"
)

const defaultProjectConfigYAML = `# cnm project configuration
version: 1

modules:
  # Directory holding one subdirectory per module, relative to the project.
  directory: modules
  # Subdirectories to skip (doublestar globs, relative to the modules directory).
  exclude:
    - "**/.*"
  # Start every loaded module after discovery.
  autostart: true

logging:
  # debug, info, warn or error
  level: info
  # Relative to .cnm/
  file: logs/cnm.log

metrics:
  # host:port serving /metrics; leave empty to disable.
  address: ""
`

// ModulesConfig controls module discovery.
type ModulesConfig struct {
	Directory string   `yaml:"directory"`
	Exclude   []string `yaml:"exclude,omitempty"`
	Autostart bool     `yaml:"autostart"`
}

// LoggingConfig controls the project log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// ProjectConfig models .cnm/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Modules ModulesConfig `yaml:"modules"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Config holds the runtime configuration for a project.
type Config struct {
	// ProjectDir is the directory cnm was started for
	ProjectDir string

	// StateDir is ProjectDir/.cnm
	StateDir string

	Project ProjectConfig
}

// InitProjectDir creates the .cnm directory structure in the given project
// directory, plus the modules directory and a default config.yaml.
//
// Structure created:
// .cnm/
// ├── config.yaml
// └── logs/
// modules/
func InitProjectDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		stateDir,
		filepath.Join(stateDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := ensureProjectConfig(filepath.Join(stateDir, "config.yaml")); err != nil {
		return err
	}
	// The modules directory comes from the (possibly pre-existing) config.
	cfg, err := NewConfig(projectDir)
	if err != nil {
		return err
	}
	return os.MkdirAll(cfg.ModulesDir(), 0o755)
}

// NewConfig creates a new Config instance populated with project settings.
// A missing config.yaml yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	if abs, err := filepath.Abs(projectDir); err == nil {
		projectDir = abs
	}
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if level := strings.TrimSpace(os.Getenv(LogLevelEnv)); level != "" {
		cfg.Project.Logging.Level = strings.ToLower(level)
		if err := cfg.Project.validate(); err != nil {
			return nil, fmt.Errorf("config: %s: %w", LogLevelEnv, err)
		}
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// ModulesDir returns the absolute modules directory.
func (c *Config) ModulesDir() string {
	return resolvePath(c.ProjectDir, c.Project.Modules.Directory)
}

// LogPath returns the absolute log file path.
func (c *Config) LogPath() string {
	return resolvePath(c.StateDir, c.Project.Logging.File)
}

// LogLevel returns the configured minimum log level.
func (c *Config) LogLevel() string {
	return c.Project.Logging.Level
}

// Exclude returns the discovery exclude globs.
func (c *Config) Exclude() []string {
	return c.Project.Modules.Exclude
}

// Autostart reports whether discovered modules are started after loading.
func (c *Config) Autostart() bool {
	return c.Project.Modules.Autostart
}

// MetricsAddress returns the metrics listen address, empty when disabled.
func (c *Config) MetricsAddress() string {
	return c.Project.Metrics.Address
}

// SetAutostart updates modules.autostart and persists it.
func (c *Config) SetAutostart(enabled bool) error {
	c.Project.Modules.Autostart = enabled
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	parsed := defaultProjectConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Modules: ModulesConfig{
			Directory: defaultModulesDir,
			Exclude:   []string{"**/.*"},
			Autostart: true,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
			File:  defaultLogFile,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Modules.Directory) == "" {
		pc.Modules.Directory = defaultModulesDir
	}
	if strings.TrimSpace(pc.Logging.Level) == "" {
		pc.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(pc.Logging.File) == "" {
		pc.Logging.File = defaultLogFile
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Modules.Directory = strings.TrimSpace(pc.Modules.Directory)
	exclude := pc.Modules.Exclude[:0]
	for _, pattern := range pc.Modules.Exclude {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			exclude = append(exclude, trimmed)
		}
	}
	pc.Modules.Exclude = exclude
	pc.Logging.Level = strings.ToLower(strings.TrimSpace(pc.Logging.Level))
	pc.Logging.File = strings.TrimSpace(pc.Logging.File)
	pc.Metrics.Address = strings.TrimSpace(pc.Metrics.Address)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", pc.Logging.Level)
	}
	if pc.Metrics.Address != "" && !strings.Contains(pc.Metrics.Address, ":") {
		return fmt.Errorf("metrics.address must be host:port (got %q)", pc.Metrics.Address)
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
