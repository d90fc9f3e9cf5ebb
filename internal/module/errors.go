package module

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by the Manager and the descriptor parser. Every typed
// error below unwraps to exactly one of these so callers can branch with
// errors.Is.
var (
	ErrNotADirectory       = errors.New("not a directory")
	ErrDescriptionNotFound = errors.New("module description not found")
	ErrNameConflict        = errors.New("module name already claimed by another directory")

	ErrRequiredFieldMissing = errors.New("required field missing")
	ErrWrongFieldType       = errors.New("wrong field type")
	ErrWrongFieldContent    = errors.New("wrong field content")

	ErrInterpreterNotFound       = errors.New("interpreter not found")
	ErrLanguageAlreadyRegistered = errors.New("language already registered")
	ErrInterpreterFailure        = errors.New("interpreter failure")

	ErrAlreadyRunning = errors.New("module already running")
	ErrNotRunning     = errors.New("module not running")
	ErrStillRunning   = errors.New("module still running")
	ErrNotLoaded      = errors.New("module not loaded")

	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	ErrDependentStillRunning  = errors.New("dependent still running")
	ErrDependentStillLoaded   = errors.New("dependent still loaded")

	ErrDependencyCycle = errors.New("dependency cycle")
)

// DirectoryError reports a problem with a module directory itself.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("module: %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// DescriptionError reports a malformed module manifest. Err is one of
// ErrRequiredFieldMissing, ErrWrongFieldType or ErrWrongFieldContent; Detail
// carries the expected type or the content rule that was violated.
type DescriptionError struct {
	Module string
	Field  string
	Err    error
	Detail string
}

func (e *DescriptionError) Error() string {
	var reason string
	switch {
	case errors.Is(e.Err, ErrRequiredFieldMissing):
		reason = fmt.Sprintf("%s is required", e.Field)
	case errors.Is(e.Err, ErrWrongFieldType):
		reason = fmt.Sprintf("%s needs to be of type %s", e.Field, e.Detail)
	default:
		reason = fmt.Sprintf("%s needs to be %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("module: description of %s is invalid: %s", e.Module, reason)
}

func (e *DescriptionError) Unwrap() error { return e.Err }

// LanguageError reports an interpreter registry problem for a language.
type LanguageError struct {
	Language string
	Err      error
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("module: language %q: %v", e.Language, e.Err)
}

func (e *LanguageError) Unwrap() error { return e.Err }

// StateError reports a transition requested from the wrong state.
type StateError struct {
	Module string
	Err    error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// DependencyState is the state a related module is required to be in.
type DependencyState string

const (
	DependencyLoaded   DependencyState = "loaded"
	DependencyStarted  DependencyState = "started"
	DependencyStopped  DependencyState = "stopped"
	DependencyUnloaded DependencyState = "unloaded"
)

// DependencyError reports a transition rejected because of another module.
//
// For ErrDependencyNotSatisfied, Dependency is the missing or stopped
// dependency of Module. For ErrDependentStillRunning and
// ErrDependentStillLoaded, Dependency is the dependent that blocks Module.
type DependencyError struct {
	Module     string
	Dependency string
	Soft       bool
	Required   DependencyState
	Err        error
}

func (e *DependencyError) Error() string {
	kind := "dependency"
	if e.Soft {
		kind = "soft-dependency"
	}
	if errors.Is(e.Err, ErrDependencyNotSatisfied) {
		return fmt.Sprintf("module: the %s %s (used by %s) isn't %s", kind, e.Dependency, e.Module, e.Required)
	}
	return fmt.Sprintf("module: %s declares %s as %s and must be %s first", e.Dependency, e.Module, kind, e.Required)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Phase names the lifecycle call an interpreter failed in.
type Phase string

const (
	PhaseLoad   Phase = "load"
	PhaseStart  Phase = "start"
	PhaseStop   Phase = "stop"
	PhaseUnload Phase = "unload"
)

// InterpreterError wraps a failure raised by interpreter code. It matches both
// ErrInterpreterFailure and the underlying cause.
type InterpreterError struct {
	Module string
	Phase  Phase
	Err    error
}

func (e *InterpreterError) Error() string {
	return fmt.Sprintf("module %s: interpreter failed to %s: %v", e.Module, e.Phase, e.Err)
}

func (e *InterpreterError) Unwrap() []error {
	return []error{ErrInterpreterFailure, e.Err}
}

// CycleError is returned by the ordering helpers when the dependency graph
// cannot be sorted.
type CycleError struct {
	Modules []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("module: dependency cycle between %s", strings.Join(e.Modules, ", "))
}

func (e *CycleError) Unwrap() error { return ErrDependencyCycle }
