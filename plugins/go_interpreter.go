package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

// Keys read from a Go module's "additional" manifest object.
const (
	GoMainKey  = "main"
	GoStartKey = "start"
	GoStopKey  = "stop"

	defaultGoMain  = "main.go"
	defaultGoStart = "Start"
	defaultGoStop  = "Stop"
)

// GoInterpreter runs modules written in Go source through yaegi. Each module
// gets its own interpreter instance, created on load and dropped on unload.
type GoInterpreter struct {
	mu      sync.Mutex
	runtime map[string]*goRuntime
}

type goRuntime struct {
	start reflect.Value
	stop  reflect.Value
	path  string
}

// NewGoInterpreter returns an interpreter with no modules loaded.
func NewGoInterpreter() *GoInterpreter {
	return &GoInterpreter{runtime: map[string]*goRuntime{}}
}

// LoadModule evaluates the module's main file and resolves its entry points.
// The start function must exist; the stop function is optional.
func (g *GoInterpreter) LoadModule(ctx context.Context, m *module.Module) (err error) {
	defer recoverPanic(&err)
	desc := m.Descriptor()
	path, err := entryFile(m.DataDirectory(), desc.Additional.StringOr(GoMainKey, defaultGoMain))
	if err != nil {
		return err
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("plugin: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return fmt.Errorf("plugin: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("plugin: prepare interpreter for %s: %w", desc.Name, err)
	}
	if _, err := i.EvalPathWithContext(ctx, path); err != nil {
		return fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	rt := &goRuntime{path: path}
	startName := desc.Additional.StringOr(GoStartKey, defaultGoStart)
	if rt.start, err = lookupFunc(i, startName); err != nil {
		return fmt.Errorf("plugin: %s must define %s(): %w", path, startName, err)
	}
	stopName := desc.Additional.StringOr(GoStopKey, defaultGoStop)
	if stop, err := lookupFunc(i, stopName); err == nil {
		rt.stop = stop
	}
	g.mu.Lock()
	g.runtime[desc.Name] = rt
	g.mu.Unlock()
	return nil
}

func (g *GoInterpreter) StartModule(ctx context.Context, m *module.Module) error {
	rt, err := g.lookup(m)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := invokeLifecycleFunc(rt.start, m.DataDirectory()); err != nil {
		return fmt.Errorf("plugin: %s start: %w", rt.path, err)
	}
	return nil
}

func (g *GoInterpreter) StopModule(ctx context.Context, m *module.Module) error {
	rt, err := g.lookup(m)
	if err != nil {
		return err
	}
	if !rt.stop.IsValid() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := invokeLifecycleFunc(rt.stop, m.DataDirectory()); err != nil {
		return fmt.Errorf("plugin: %s stop: %w", rt.path, err)
	}
	return nil
}

func (g *GoInterpreter) UnloadModule(_ context.Context, m *module.Module) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.runtime, m.Name())
	return nil
}

func (g *GoInterpreter) lookup(m *module.Module) (*goRuntime, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rt, ok := g.runtime[m.Name()]
	if !ok {
		return nil, fmt.Errorf("plugin: go module %s is not loaded", m.Name())
	}
	return rt, nil
}

// entryFile resolves name inside dir and refuses paths that escape it.
func entryFile(dir, name string) (string, error) {
	path := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("plugin: entry file %s escapes %s", name, dir)
	}
	return path, nil
}

func lookupFunc(i *interp.Interpreter, name string) (reflect.Value, error) {
	value, err := i.Eval(name)
	if err != nil {
		return reflect.Value{}, err
	}
	if !value.IsValid() || value.Kind() != reflect.Func {
		return reflect.Value{}, fmt.Errorf("%s is not a function", name)
	}
	return value, nil
}

// invokeLifecycleFunc calls fn, which may take the module's data directory as
// its only argument and may return an error.
func invokeLifecycleFunc(fn reflect.Value, dataDir string) (err error) {
	defer recoverPanic(&err)
	fnType := fn.Type()
	var args []reflect.Value
	switch {
	case fnType.NumIn() == 0:
	case fnType.NumIn() == 1 && fnType.In(0).Kind() == reflect.String:
		args = []reflect.Value{reflect.ValueOf(dataDir).Convert(fnType.In(0))}
	default:
		return fmt.Errorf("function must take no arguments or a single string")
	}
	if fnType.NumOut() > 1 {
		return fmt.Errorf("function must return nothing or an error")
	}
	results := fn.Call(args)
	if len(results) == 0 {
		return nil
	}
	out := results[0]
	switch out.Kind() {
	case reflect.Interface, reflect.Ptr:
		if out.IsNil() {
			return nil
		}
	}
	if e, ok := out.Interface().(error); ok {
		return e
	}
	return fmt.Errorf("function returned non-error value %v", out.Interface())
}

// recoverPanic turns a panic raised by interpreted module code into *err.
func recoverPanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
