// Package metrics exposes module lifecycle counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

// ResultOK labels a successful transition.
const ResultOK = "ok"

// errorKinds is checked in order; InterpreterError matches both
// ErrInterpreterFailure and its cause, so it comes first.
var errorKinds = []struct {
	err  error
	name string
}{
	{module.ErrInterpreterFailure, "interpreter_failure"},
	{module.ErrNotADirectory, "not_a_directory"},
	{module.ErrDescriptionNotFound, "description_not_found"},
	{module.ErrNameConflict, "name_conflict"},
	{module.ErrRequiredFieldMissing, "required_field_missing"},
	{module.ErrWrongFieldType, "wrong_field_type"},
	{module.ErrWrongFieldContent, "wrong_field_content"},
	{module.ErrInterpreterNotFound, "interpreter_not_found"},
	{module.ErrAlreadyRunning, "already_running"},
	{module.ErrNotRunning, "not_running"},
	{module.ErrStillRunning, "still_running"},
	{module.ErrNotLoaded, "not_loaded"},
	{module.ErrDependencyNotSatisfied, "dependency_not_satisfied"},
	{module.ErrDependentStillRunning, "dependent_still_running"},
	{module.ErrDependentStillLoaded, "dependent_still_loaded"},
}

// Result maps a transition error to its metric label.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			return kind.name
		}
	}
	return "other"
}

// Collector is a module.Observer that records transitions.
type Collector struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	loaded      prometheus.Gauge
	running     prometheus.Gauge
}

// NewCollector registers the lifecycle metrics on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cnm_module_transitions_total",
			Help: "Module lifecycle calls by phase and result.",
		}, []string{"phase", "result"}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cnm_modules_loaded",
			Help: "Modules currently loaded.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cnm_modules_running",
			Help: "Modules currently running.",
		}),
	}
	c.registry.MustRegister(c.transitions, c.loaded, c.running)
	return c
}

// ModuleTransition implements module.Observer.
func (c *Collector) ModuleTransition(t module.Transition) {
	c.transitions.WithLabelValues(string(t.Phase), Result(t.Err)).Inc()
	c.loaded.Set(float64(t.Loaded))
	c.running.Set(float64(t.Running))
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
