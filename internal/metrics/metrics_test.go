package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

func writeManifest(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"name":"` + name + `","version":"1.0","language":"noop"}`
	if err := os.WriteFile(filepath.Join(dir, "module.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCollectorRecordsTransitions(t *testing.T) {
	collector := NewCollector()
	mgr := module.NewManager(module.WithObserver(collector))
	if err := mgr.RegisterInterpreter("noop", module.InterpreterFuncs{}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	mod, err := mgr.Load(ctx, writeManifest(t, t.TempDir(), "core"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := mgr.Start(ctx, mod); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = mgr.Start(ctx, mod)

	if got := testutil.ToFloat64(collector.transitions.WithLabelValues("load", ResultOK)); got != 1 {
		t.Fatalf("load ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.transitions.WithLabelValues("start", "already_running")); got != 1 {
		t.Fatalf("start already_running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.running); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.loaded); got != 1 {
		t.Fatalf("loaded gauge = %v, want 1", got)
	}
}

func TestResult(t *testing.T) {
	interpErr := &module.InterpreterError{Module: "m", Phase: module.PhaseStart, Err: module.ErrNotRunning}
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{&module.StateError{Module: "m", Err: module.ErrStillRunning}, "still_running"},
		{&module.DependencyError{Module: "m", Dependency: "d", Err: module.ErrDependentStillLoaded}, "dependent_still_loaded"},
		{interpErr, "interpreter_failure"},
		{errors.New("unexpected"), "other"},
	}
	for _, tc := range tests {
		if got := Result(tc.err); got != tc.want {
			t.Fatalf("Result(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	collector := NewCollector()
	collector.ModuleTransition(module.Transition{Module: "core", Phase: module.PhaseLoad, Loaded: 2, Running: 1})

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`cnm_module_transitions_total{phase="load",result="ok"} 1`,
		"cnm_modules_loaded 2",
		"cnm_modules_running 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
