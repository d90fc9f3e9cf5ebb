package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Interpreter drives modules written in one language. The Manager guarantees
// the call order load → start → stop → unload for a given module and never
// calls two methods for modules of the same Manager concurrently. Interpreter
// code must not call back into the Manager from inside these methods.
type Interpreter interface {
	LoadModule(ctx context.Context, m *Module) error
	StartModule(ctx context.Context, m *Module) error
	StopModule(ctx context.Context, m *Module) error
	UnloadModule(ctx context.Context, m *Module) error
}

// InterpreterFuncs adapts plain functions to Interpreter. Nil fields succeed.
type InterpreterFuncs struct {
	Load   func(ctx context.Context, m *Module) error
	Start  func(ctx context.Context, m *Module) error
	Stop   func(ctx context.Context, m *Module) error
	Unload func(ctx context.Context, m *Module) error
}

func (f InterpreterFuncs) LoadModule(ctx context.Context, m *Module) error {
	return call(f.Load, ctx, m)
}

func (f InterpreterFuncs) StartModule(ctx context.Context, m *Module) error {
	return call(f.Start, ctx, m)
}

func (f InterpreterFuncs) StopModule(ctx context.Context, m *Module) error {
	return call(f.Stop, ctx, m)
}

func (f InterpreterFuncs) UnloadModule(ctx context.Context, m *Module) error {
	return call(f.Unload, ctx, m)
}

func call(fn func(context.Context, *Module) error, ctx context.Context, m *Module) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, m)
}

// InterpreterRegistry maps language identifiers and aliases to interpreters.
// Lookups are case-insensitive and ignore surrounding whitespace.
type InterpreterRegistry struct {
	mu           sync.RWMutex
	interpreters map[string]Interpreter
}

// NewInterpreterRegistry returns an empty registry.
func NewInterpreterRegistry() *InterpreterRegistry {
	return &InterpreterRegistry{interpreters: map[string]Interpreter{}}
}

// Register binds interpreter to language and every alias. Nothing is bound
// when any of the names is already taken.
func (r *InterpreterRegistry) Register(language string, interpreter Interpreter, aliases ...string) error {
	if interpreter == nil {
		return fmt.Errorf("module: interpreter is required for %s", language)
	}
	keys := make([]string, 0, len(aliases)+1)
	seen := make(map[string]struct{}, len(aliases)+1)
	for _, name := range append([]string{language}, aliases...) {
		key := languageKey(name)
		if key == "" {
			return fmt.Errorf("module: language name is required")
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if _, exists := r.interpreters[key]; exists {
			return &LanguageError{Language: key, Err: ErrLanguageAlreadyRegistered}
		}
	}
	for _, key := range keys {
		r.interpreters[key] = interpreter
	}
	return nil
}

// MustRegister panics if registration fails.
func (r *InterpreterRegistry) MustRegister(language string, interpreter Interpreter, aliases ...string) {
	if err := r.Register(language, interpreter, aliases...); err != nil {
		panic(err)
	}
}

// Lookup returns the interpreter bound to language.
func (r *InterpreterRegistry) Lookup(language string) (Interpreter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	interpreter, ok := r.interpreters[languageKey(language)]
	return interpreter, ok
}

// Languages returns every bound name, aliases included, sorted.
func (r *InterpreterRegistry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.interpreters))
	for name := range r.interpreters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func languageKey(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}
