// Package plugin loads Lua scripts that subscribe to host events. Each
// script gets its own sandboxed state and registers handlers with
//
//	events.on("Player.Banning", function(ev)
//	  if ev.duration > 86400 then ev.duration = 86400 end
//	end)
//
// Carrier properties are reached through their accessor methods: ev.allowed
// reads IsAllowed and assigns through SetAllowed. The script's file name is
// the handler owner recorded in the audit trail.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ppiankov/hostpatch/internal/bus"
)

var ErrClosed = errors.New("plugin closed")

// Manager owns every loaded plugin.
type Manager struct {
	registry *bus.Registry
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	plugins []*Plugin
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTimeout bounds each handler call.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// NewManager creates a manager registering handlers on r.
func NewManager(r *bus.Registry, opts ...Option) *Manager {
	m := &Manager{registry: r, logger: slog.Default(), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadDir loads every *.lua file in dir in name order. A missing directory
// loads nothing. One failing script does not stop the others; the returned
// error joins every failure.
func (m *Manager) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		if _, err := m.Load(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load runs the script at path. Handlers it registered before failing are
// removed again.
func (m *Manager) Load(path string) (*Plugin, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin: %w", err)
	}
	return m.LoadString(filepath.Base(path), path, string(src))
}

// LoadString runs src as a plugin called name.
func (m *Manager) LoadString(name, path, src string) (*Plugin, error) {
	p := &Plugin{Name: name, Path: path, L: newState(), timeout: m.timeout}
	m.install(p)

	if err := p.L.DoString(src); err != nil {
		m.unload(p)
		return nil, fmt.Errorf("load plugin %s: %w", name, err)
	}

	m.mu.Lock()
	m.plugins = append(m.plugins, p)
	m.mu.Unlock()
	m.logger.Info("plugin loaded", "plugin", name, "handlers", len(p.subs))
	return p, nil
}

// Plugins returns the names of loaded plugins, sorted.
func (m *Manager) Plugins() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.plugins))
	for i, p := range m.plugins {
		out[i] = p.Name
	}
	sort.Strings(out)
	return out
}

// Close unregisters every handler and closes every state.
func (m *Manager) Close() {
	m.mu.Lock()
	plugins := m.plugins
	m.plugins = nil
	m.mu.Unlock()
	for _, p := range plugins {
		m.unload(p)
	}
}

func (m *Manager) unload(p *Plugin) {
	for _, sub := range p.subs {
		if err := m.registry.Unregister(sub); err != nil && !errors.Is(err, bus.ErrSubscriptionNotFound) {
			m.logger.Warn("plugin unregister failed", "plugin", p.Name, "subscription", sub.ID, "error", err)
		}
	}
	p.subs = nil
	p.close()
}

// install exposes the events and log modules to p's state.
func (m *Manager) install(p *Plugin) {
	L := p.L
	registerCarrierType(L)

	events := L.NewTable()
	L.SetField(events, "on", L.NewFunction(func(L *lua.LState) int {
		kind := L.CheckString(1)
		fn := L.CheckFunction(2)
		sub, err := m.registry.RegisterNamed(kind, p.Name, func(ev any) error {
			return p.call(fn, wrap(p.L, ev))
		})
		if err != nil {
			L.RaiseError("events.on(%q): %v", kind, err)
			return 0
		}
		p.subs = append(p.subs, sub)
		L.Push(lua.LString(sub.ID))
		return 1
	}))
	L.SetField(events, "off", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		for i, sub := range p.subs {
			if sub.ID != id {
				continue
			}
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			L.Push(lua.LBool(m.registry.Unregister(sub) == nil))
			return 1
		}
		L.Push(lua.LFalse)
		return 1
	}))
	L.SetField(events, "kinds", L.NewFunction(func(L *lua.LState) int {
		t := L.NewTable()
		for _, k := range m.registry.Kinds() {
			t.Append(lua.LString(k))
		}
		L.Push(t)
		return 1
	}))
	L.SetGlobal("events", events)

	logger := m.logger.With("plugin", p.Name)
	log := L.NewTable()
	for name, fn := range map[string]func(string, ...any){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		L.SetField(log, name, L.NewFunction(func(L *lua.LState) int {
			parts := make([]string, L.GetTop())
			for i := range parts {
				parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
			}
			fn(strings.Join(parts, " "))
			return 0
		}))
	}
	L.SetGlobal("log", log)
}
