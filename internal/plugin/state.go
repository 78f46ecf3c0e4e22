package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ppiankov/hostpatch/internal/bus"
)

// DefaultTimeout bounds one handler call.
const DefaultTimeout = 2 * time.Second

// Plugin is one loaded script with its own Lua state. gopher-lua states are
// not goroutine-safe, so every entry into L holds mu.
type Plugin struct {
	Name string
	Path string

	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	subs    []bus.Subscription
	closed  bool
}

func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	// io, os, debug and package stay closed.
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// call runs fn with args under the plugin lock and the handler timeout. A
// zero timeout lets the handler run unbounded.
func (p *Plugin) call(fn *lua.LFunction, args ...lua.LValue) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("plugin %s: %w", p.Name, ErrClosed)
	}

	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.L.SetContext(ctx)
		defer p.L.RemoveContext()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return p.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

func (p *Plugin) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.L.Close()
}
