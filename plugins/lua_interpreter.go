package plugins

import (
	"context"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/ComputerNetworkManager/Shared/internal/module"
)

// Keys read from a Lua module's "additional" manifest object.
const (
	LuaMainKey  = "main"
	LuaStartKey = "start"
	LuaStopKey  = "stop"

	defaultLuaMain  = "main.lua"
	defaultLuaStart = "start"
	defaultLuaStop  = "stop"
)

// LuaInterpreter runs Lua modules on gopher-lua, one state per module.
//
// Before the main file runs, a global table "module" holds the module's name,
// version and data_dir. The start and stop globals are called with the data
// directory; returning a string or raising an error fails the transition.
type LuaInterpreter struct {
	mu     sync.Mutex
	states map[string]*luaRuntime
}

type luaRuntime struct {
	state *lua.LState
	start string
	stop  string
	path  string
}

func NewLuaInterpreter() *LuaInterpreter {
	return &LuaInterpreter{states: map[string]*luaRuntime{}}
}

func (l *LuaInterpreter) LoadModule(ctx context.Context, m *module.Module) error {
	desc := m.Descriptor()
	path, err := entryFile(m.DataDirectory(), desc.Additional.StringOr(LuaMainKey, defaultLuaMain))
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	L := lua.NewState()
	info := L.NewTable()
	L.SetField(info, "name", lua.LString(desc.Name))
	L.SetField(info, "version", lua.LString(desc.Version))
	L.SetField(info, "data_dir", lua.LString(m.DataDirectory()))
	L.SetGlobal("module", info)

	L.SetContext(ctx)
	err = L.DoFile(path)
	L.RemoveContext()
	if err != nil {
		L.Close()
		return fmt.Errorf("plugin: interpret %s: %w", path, err)
	}
	rt := &luaRuntime{
		state: L,
		start: desc.Additional.StringOr(LuaStartKey, defaultLuaStart),
		stop:  desc.Additional.StringOr(LuaStopKey, defaultLuaStop),
		path:  path,
	}
	if L.GetGlobal(rt.start).Type() != lua.LTFunction {
		L.Close()
		return fmt.Errorf("plugin: %s must define function %s", path, rt.start)
	}
	l.mu.Lock()
	l.states[desc.Name] = rt
	l.mu.Unlock()
	return nil
}

func (l *LuaInterpreter) StartModule(ctx context.Context, m *module.Module) error {
	rt, err := l.lookup(m)
	if err != nil {
		return err
	}
	return rt.call(ctx, rt.start, m.DataDirectory())
}

func (l *LuaInterpreter) StopModule(ctx context.Context, m *module.Module) error {
	rt, err := l.lookup(m)
	if err != nil {
		return err
	}
	if rt.state.GetGlobal(rt.stop).Type() != lua.LTFunction {
		return nil
	}
	return rt.call(ctx, rt.stop, m.DataDirectory())
}

func (l *LuaInterpreter) UnloadModule(_ context.Context, m *module.Module) error {
	l.mu.Lock()
	rt, ok := l.states[m.Name()]
	delete(l.states, m.Name())
	l.mu.Unlock()
	if ok {
		rt.state.Close()
	}
	return nil
}

func (l *LuaInterpreter) lookup(m *module.Module) (*luaRuntime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rt, ok := l.states[m.Name()]
	if !ok {
		return nil, fmt.Errorf("plugin: lua module %s is not loaded", m.Name())
	}
	return rt, nil
}

func (rt *luaRuntime) call(ctx context.Context, name, dataDir string) error {
	L := rt.state
	L.SetContext(ctx)
	defer L.RemoveContext()
	err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal(name),
		NRet:    1,
		Protect: true,
	}, lua.LString(dataDir))
	if err != nil {
		return fmt.Errorf("plugin: %s %s: %w", rt.path, name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	if msg, ok := ret.(lua.LString); ok {
		return fmt.Errorf("plugin: %s %s: %s", rt.path, name, string(msg))
	}
	return nil
}
