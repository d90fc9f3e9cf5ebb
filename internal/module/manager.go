package module

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// Logger receives the Manager's lifecycle messages.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

// Transition describes the outcome of one lifecycle call. Loaded and Running
// are the registry counts right after the call.
type Transition struct {
	Module  string
	Phase   Phase
	Err     error
	Loaded  int
	Running int
}

// Observer is notified after every lifecycle call, outside the manager lock.
type Observer interface {
	ModuleTransition(t Transition)
}

// Option customizes a Manager.
type Option func(*Manager)

// WithManifestReader replaces the manifest reader (default FileManifestReader).
func WithManifestReader(reader ManifestReader) Option {
	return func(m *Manager) {
		if reader != nil {
			m.reader = reader
		}
	}
}

// WithFileSystem replaces the directory check (default OSFileSystem).
func WithFileSystem(fsys FileSystem) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.fs = fsys
		}
	}
}

// WithLogger routes lifecycle messages to logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver adds a transition observer.
func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		if observer != nil {
			m.observers = append(m.observers, observer)
		}
	}
}

// WithInterpreters shares an existing interpreter registry.
func WithInterpreters(reg *InterpreterRegistry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.interpreters = reg
		}
	}
}

// Manager loads, starts, stops and unloads modules. Each lifecycle call holds
// the manager lock for its whole check-then-act sequence, interpreter call
// included, so calls from different goroutines are fully serialized.
type Manager struct {
	mu      sync.Mutex
	modules map[string]*Module

	interpreters *InterpreterRegistry
	reader       ManifestReader
	fs           FileSystem
	logger       Logger
	observers    []Observer
}

// NewManager returns a Manager with no modules and no interpreters.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		modules:      map[string]*Module{},
		interpreters: NewInterpreterRegistry(),
		reader:       FileManifestReader{},
		fs:           OSFileSystem{},
		logger:       discardLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// RegisterInterpreter binds an interpreter to a language and its aliases.
func (m *Manager) RegisterInterpreter(language string, interpreter Interpreter, aliases ...string) error {
	if err := m.interpreters.Register(language, interpreter, aliases...); err != nil {
		return err
	}
	m.logger.Debug("Registered interpreter for %s (aliases: %v)", language, aliases)
	return nil
}

// Interpreter returns the interpreter bound to language.
func (m *Manager) Interpreter(language string) (Interpreter, bool) {
	return m.interpreters.Lookup(language)
}

// Get returns the loaded module with the given name.
func (m *Manager) Get(name string) (*Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[name]
	return mod, ok
}

// All returns a snapshot of the loaded modules sorted by name.
func (m *Manager) All() []*Module {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Load reads the manifest in dir, hands the module to its interpreter and
// registers it. Loading a directory whose module is already registered
// returns the registered instance without calling the interpreter again.
func (m *Manager) Load(ctx context.Context, dir string) (*Module, error) {
	var mod *Module
	var err error
	m.notify(m.withLock(func() Transition {
		var name string
		mod, name, err = m.loadLocked(ctx, dir)
		return m.transitionLocked(name, PhaseLoad, err)
	}))
	return mod, err
}

func (m *Manager) loadLocked(ctx context.Context, dir string) (*Module, string, error) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	dir = filepath.Clean(dir)
	if !m.fs.IsDir(dir) {
		return nil, "", &DirectoryError{Path: dir, Err: ErrNotADirectory}
	}
	doc, err := m.reader.ReadManifest(dir)
	if err != nil {
		if errors.Is(err, ErrManifestNotFound) {
			return nil, "", &DirectoryError{Path: dir, Err: ErrDescriptionNotFound}
		}
		var descErr *DescriptionError
		if errors.As(err, &descErr) {
			return nil, "", err
		}
		m.logger.Error("Cannot read manifest in %s: %v", dir, err)
		return nil, "", &DirectoryError{Path: dir, Err: fmt.Errorf("%w: %v", ErrDescriptionNotFound, err)}
	}
	desc, err := ParseDescriptor(dir, doc)
	if err != nil {
		return nil, "", err
	}
	if existing, ok := m.modules[desc.Name]; ok {
		if existing.dataDir != dir {
			m.logger.Warn("Module %s from %s conflicts with the one loaded from %s", desc.Name, dir, existing.dataDir)
			return nil, desc.Name, &DirectoryError{Path: dir, Err: fmt.Errorf("%w: %s", ErrNameConflict, desc.Name)}
		}
		m.logger.Debug("Module %s already loaded", desc.Name)
		return existing, desc.Name, nil
	}
	interpreter, ok := m.interpreters.Lookup(desc.Language)
	if !ok {
		return nil, desc.Name, &LanguageError{Language: desc.Language, Err: ErrInterpreterNotFound}
	}
	mod := newModule(desc, dir, interpreter)
	if err := guard(func() error { return interpreter.LoadModule(ctx, mod) }); err != nil {
		m.logger.Error("Interpreter failed to load %s: %v", desc.Name, err)
		return nil, desc.Name, &InterpreterError{Module: desc.Name, Phase: PhaseLoad, Err: err}
	}
	m.modules[desc.Name] = mod
	m.logger.Info("Loaded module %s %s (%s) from %s", desc.Name, desc.Version, desc.Language, dir)
	return mod, desc.Name, nil
}

// Start starts a loaded module. Every hard dependency must be loaded and
// running; soft dependencies are not checked.
func (m *Manager) Start(ctx context.Context, mod *Module) error {
	var err error
	m.notify(m.withLock(func() Transition {
		err = m.startLocked(ctx, mod)
		return m.transitionLocked(moduleName(mod), PhaseStart, err)
	}))
	return err
}

func (m *Manager) startLocked(ctx context.Context, mod *Module) error {
	if err := m.checkRegistered(mod); err != nil {
		return err
	}
	name := mod.Name()
	if mod.IsRunning() {
		return m.reject(&StateError{Module: name, Err: ErrAlreadyRunning})
	}
	for _, depName := range mod.descriptor.Dependencies {
		dep, ok := m.modules[depName]
		if !ok || !dep.IsRunning() {
			return m.reject(&DependencyError{Module: name, Dependency: depName, Required: DependencyStarted, Err: ErrDependencyNotSatisfied})
		}
	}
	if err := guard(func() error { return mod.interpreter.StartModule(ctx, mod) }); err != nil {
		m.logger.Error("Interpreter failed to start %s: %v", name, err)
		return &InterpreterError{Module: name, Phase: PhaseStart, Err: err}
	}
	mod.running.Store(true)
	m.logger.Info("Started module %s", name)
	return nil
}

// Stop stops a running module. It is rejected while any running module
// declares it as a hard dependency.
func (m *Manager) Stop(ctx context.Context, mod *Module) error {
	var err error
	m.notify(m.withLock(func() Transition {
		err = m.stopLocked(ctx, mod)
		return m.transitionLocked(moduleName(mod), PhaseStop, err)
	}))
	return err
}

func (m *Manager) stopLocked(ctx context.Context, mod *Module) error {
	if err := m.checkRegistered(mod); err != nil {
		return err
	}
	name := mod.Name()
	if !mod.IsRunning() {
		return m.reject(&StateError{Module: name, Err: ErrNotRunning})
	}
	for _, other := range m.sortedLocked() {
		if other == mod || !other.IsRunning() {
			continue
		}
		if other.descriptor.DependsOn(name) {
			return m.reject(&DependencyError{Module: name, Dependency: other.Name(), Required: DependencyStopped, Err: ErrDependentStillRunning})
		}
	}
	if err := guard(func() error { return mod.interpreter.StopModule(ctx, mod) }); err != nil {
		m.logger.Error("Interpreter failed to stop %s: %v", name, err)
		return &InterpreterError{Module: name, Phase: PhaseStop, Err: err}
	}
	mod.running.Store(false)
	m.logger.Info("Stopped module %s", name)
	return nil
}

// Unload releases a stopped module and removes it from the registry. It is
// rejected while any loaded module declares it as a hard or soft dependency.
func (m *Manager) Unload(ctx context.Context, mod *Module) error {
	var err error
	m.notify(m.withLock(func() Transition {
		err = m.unloadLocked(ctx, mod)
		return m.transitionLocked(moduleName(mod), PhaseUnload, err)
	}))
	return err
}

func (m *Manager) unloadLocked(ctx context.Context, mod *Module) error {
	if err := m.checkRegistered(mod); err != nil {
		return err
	}
	name := mod.Name()
	if mod.IsRunning() {
		return m.reject(&StateError{Module: name, Err: ErrStillRunning})
	}
	for _, other := range m.sortedLocked() {
		if other == mod {
			continue
		}
		if other.descriptor.DependsOn(name) {
			return m.reject(&DependencyError{Module: name, Dependency: other.Name(), Required: DependencyUnloaded, Err: ErrDependentStillLoaded})
		}
		if other.descriptor.SoftDependsOn(name) {
			return m.reject(&DependencyError{Module: name, Dependency: other.Name(), Soft: true, Required: DependencyUnloaded, Err: ErrDependentStillLoaded})
		}
	}
	if err := guard(func() error { return mod.interpreter.UnloadModule(ctx, mod) }); err != nil {
		m.logger.Error("Interpreter failed to unload %s: %v", name, err)
		return &InterpreterError{Module: name, Phase: PhaseUnload, Err: err}
	}
	delete(m.modules, name)
	m.logger.Info("Unloaded module %s", name)
	return nil
}

// withLock runs fn under the manager mutex. Observers are notified by the
// caller once the lock is released.
func (m *Manager) withLock(fn func() Transition) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// guard runs one interpreter call and turns a panic into an error, leaving
// the module in the state it had before the call.
func guard(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return call()
}

// checkRegistered rejects modules that are not the registered instance for
// their name, e.g. a pointer kept across an unload.
func (m *Manager) checkRegistered(mod *Module) error {
	if mod == nil {
		return &StateError{Module: "<nil>", Err: ErrNotLoaded}
	}
	if current, ok := m.modules[mod.Name()]; !ok || current != mod {
		return m.reject(&StateError{Module: mod.Name(), Err: ErrNotLoaded})
	}
	return nil
}

func (m *Manager) reject(err error) error {
	m.logger.Warn("%v", err)
	return err
}

func (m *Manager) sortedLocked() []*Module {
	out := make([]*Module, 0, len(m.modules))
	for _, mod := range m.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (m *Manager) transitionLocked(name string, phase Phase, err error) Transition {
	t := Transition{Module: name, Phase: phase, Err: err, Loaded: len(m.modules)}
	for _, mod := range m.modules {
		if mod.IsRunning() {
			t.Running++
		}
	}
	return t
}

func (m *Manager) notify(t Transition) {
	for _, observer := range m.observers {
		observer.ModuleTransition(t)
	}
}

func moduleName(mod *Module) string {
	if mod == nil {
		return ""
	}
	return mod.Name()
}
