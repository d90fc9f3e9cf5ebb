package module

import (
	"sync/atomic"
)

// Module is the lifecycle record of one loaded manifest. Instances are created
// and owned by a Manager; callers only read them.
type Module struct {
	descriptor  Descriptor
	dataDir     string
	interpreter Interpreter
	running     atomic.Bool
}

func newModule(desc Descriptor, dataDir string, interpreter Interpreter) *Module {
	return &Module{
		descriptor:  desc,
		dataDir:     dataDir,
		interpreter: interpreter,
	}
}

// Name is shorthand for Descriptor().Name.
func (m *Module) Name() string {
	return m.descriptor.Name
}

// Descriptor returns a copy of the module's manifest metadata.
func (m *Module) Descriptor() Descriptor {
	return m.descriptor.Clone()
}

// DataDirectory is the directory holding the module's manifest; it is the
// module's root for any files it reads or writes.
func (m *Module) DataDirectory() string {
	return m.dataDir
}

// IsRunning reports whether the module has been started and not stopped.
func (m *Module) IsRunning() bool {
	return m.running.Load()
}

// State renders the externally visible lifecycle state.
func (m *Module) State() string {
	if m.IsRunning() {
		return string(DependencyStarted)
	}
	return string(DependencyLoaded)
}
