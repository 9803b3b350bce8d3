package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for character policy scripts.
// Single-goroutine access only (tick loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. A missing directory is fine; every hook has a built-in default.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	if err := e.loadDir(filepath.Join(scriptsDir, "policy")); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load policy scripts: %w", err)
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// CreationRequest is the context handed to the validate_create hook.
type CreationRequest struct {
	Name  string
	Class int
	Str   int
	Dex   int
	Con   int
	Intel int
	Wis   int
	Cha   int
}

// CreationVerdict is returned by the validate_create hook.
type CreationVerdict struct {
	OK     bool
	Reason string
}

// ValidateCreation calls the Lua validate_create function. Without a script
// the verdict is an unconditional pass; structural checks (slot bounds, name
// length, duplicates) stay in Go either way.
func (e *Engine) ValidateCreation(req CreationRequest) CreationVerdict {
	fn := e.vm.GetGlobal("validate_create")
	if fn == lua.LNil {
		return CreationVerdict{OK: true}
	}

	t := e.vm.NewTable()
	t.RawSetString("name", lua.LString(req.Name))
	t.RawSetString("class", lua.LNumber(req.Class))

	stats := e.vm.NewTable()
	stats.RawSetString("str", lua.LNumber(req.Str))
	stats.RawSetString("dex", lua.LNumber(req.Dex))
	stats.RawSetString("con", lua.LNumber(req.Con))
	stats.RawSetString("int", lua.LNumber(req.Intel))
	stats.RawSetString("wis", lua.LNumber(req.Wis))
	stats.RawSetString("cha", lua.LNumber(req.Cha))
	t.RawSetString("stats", stats)

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua validate_create error", zap.Error(err))
		return CreationVerdict{OK: true}
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		// A bare boolean is accepted too
		return CreationVerdict{OK: result == lua.LTrue}
	}
	return CreationVerdict{
		OK:     rt.RawGetString("ok") == lua.LTrue,
		Reason: lua.LVAsString(rt.RawGetString("reason")),
	}
}

// StartingZone calls the Lua starting_zone function, which may route a new
// character of the given class to a non-default landing zone. Returns false
// when no script overrides the default.
func (e *Engine) StartingZone(class int) (zoneID uint16, x, y int16, ok bool) {
	fn := e.vm.GetGlobal("starting_zone")
	if fn == lua.LNil {
		return 0, 0, 0, false
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(class)); err != nil {
		e.log.Error("lua starting_zone error", zap.Error(err))
		return 0, 0, 0, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, isTable := result.(*lua.LTable)
	if !isTable {
		return 0, 0, 0, false
	}
	return uint16(lua.LVAsNumber(rt.RawGetString("zone_id"))),
		int16(lua.LVAsNumber(rt.RawGetString("x"))),
		int16(lua.LVAsNumber(rt.RawGetString("y"))),
		true
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
