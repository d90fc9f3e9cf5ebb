package module

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingInterpreter counts lifecycle calls and can be told to fail a phase.
type recordingInterpreter struct {
	mu    sync.Mutex
	calls map[Phase][]string
	fail  map[Phase]error
}

func newRecordingInterpreter() *recordingInterpreter {
	return &recordingInterpreter{calls: map[Phase][]string{}, fail: map[Phase]error{}}
}

func (r *recordingInterpreter) record(phase Phase, m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[phase] = append(r.calls[phase], m.Name())
	return r.fail[phase]
}

func (r *recordingInterpreter) failOn(phase Phase, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[phase] = err
}

func (r *recordingInterpreter) count(phase Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls[phase])
}

func (r *recordingInterpreter) LoadModule(_ context.Context, m *Module) error {
	return r.record(PhaseLoad, m)
}

func (r *recordingInterpreter) StartModule(_ context.Context, m *Module) error {
	return r.record(PhaseStart, m)
}

func (r *recordingInterpreter) StopModule(_ context.Context, m *Module) error {
	return r.record(PhaseStop, m)
}

func (r *recordingInterpreter) UnloadModule(_ context.Context, m *Module) error {
	return r.record(PhaseUnload, m)
}

var errBoom = errors.New("boom")

// writeModule creates <root>/<dir>/module.json from manifest and returns the directory.
func writeModule(t *testing.T, root, dir string, manifest map[string]any) string {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "module.json"), data, 0o644))
	return path
}

func manifest(name string, deps, soft []string) map[string]any {
	m := map[string]any{
		"name":     name,
		"version":  "1.0.0",
		"language": "java",
	}
	if deps != nil {
		m["dependencies"] = deps
	}
	if soft != nil {
		m["softDependencies"] = soft
	}
	return m
}

func newTestManager(t *testing.T) (*Manager, *recordingInterpreter) {
	t.Helper()
	interp := newRecordingInterpreter()
	mgr := NewManager()
	require.NoError(t, mgr.RegisterInterpreter("java", interp))
	return mgr, interp
}

func mustLoad(t *testing.T, mgr *Manager, dir string) *Module {
	t.Helper()
	mod, err := mgr.Load(context.Background(), dir)
	require.NoError(t, err)
	return mod
}
