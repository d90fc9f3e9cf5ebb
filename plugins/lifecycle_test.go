package plugins

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (c *callLog) interpreter() module.InterpreterFuncs {
	rec := func(phase string) func(context.Context, *module.Module) error {
		return func(_ context.Context, m *module.Module) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			key := phase + ":" + m.Name()
			c.calls = append(c.calls, key)
			return c.fail[key]
		}
	}
	return module.InterpreterFuncs{Start: rec("start"), Stop: rec("stop"), Unload: rec("unload")}
}

func loadChain(t *testing.T, log *callLog) *module.Manager {
	t.Helper()
	mgr := module.NewManager()
	if err := mgr.RegisterInterpreter("noop", log.interpreter()); err != nil {
		t.Fatalf("register: %v", err)
	}
	root := t.TempDir()
	writeModuleDir(t, root, "core", noopManifest("core"), nil)
	writeModuleDir(t, root, "network", noopManifest("network", "core"), nil)
	writeModuleDir(t, root, "ui", noopManifest("ui", "network"), nil)
	found, err := Discover(root, nil, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if _, err := LoadAll(context.Background(), mgr, found); err != nil {
		t.Fatalf("load all: %v", err)
	}
	return mgr
}

func TestStartAllAndShutdown(t *testing.T) {
	log := &callLog{}
	mgr := loadChain(t, log)
	ctx := context.Background()

	if err := StartAll(ctx, mgr); err != nil {
		t.Fatalf("start all: %v", err)
	}
	if err := Shutdown(ctx, mgr); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	want := []string{
		"start:core", "start:network", "start:ui",
		"stop:ui", "stop:network", "stop:core",
		"unload:ui", "unload:network", "unload:core",
	}
	if len(log.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", log.calls, want)
	}
	for i := range want {
		if log.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", log.calls, want)
		}
	}
	if len(mgr.All()) != 0 {
		t.Fatalf("expected empty manager after shutdown")
	}
}

func TestStartAllContinuesPastFailures(t *testing.T) {
	log := &callLog{fail: map[string]error{"start:network": errors.New("no link")}}
	mgr := loadChain(t, log)

	err := StartAll(context.Background(), mgr)

	if !errors.Is(err, module.ErrInterpreterFailure) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if !errors.Is(err, module.ErrDependencyNotSatisfied) {
		t.Fatalf("expected ui to fail on its dependency, got %v", err)
	}
	core, _ := mgr.Get("core")
	if !core.IsRunning() {
		t.Fatalf("core should still be running")
	}
}

func TestShutdownKeepsModulesThatFailToStop(t *testing.T) {
	log := &callLog{fail: map[string]error{"stop:ui": errors.New("stuck")}}
	mgr := loadChain(t, log)
	ctx := context.Background()
	if err := StartAll(ctx, mgr); err != nil {
		t.Fatalf("start all: %v", err)
	}

	err := Shutdown(ctx, mgr)

	if !errors.Is(err, module.ErrInterpreterFailure) {
		t.Fatalf("expected stop failure, got %v", err)
	}
	// ui keeps running, so network and core cannot stop and nothing unloads.
	if len(mgr.All()) != 3 {
		t.Fatalf("expected all modules to stay loaded, got %d", len(mgr.All()))
	}
}
