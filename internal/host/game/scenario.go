package game

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/hostpatch/internal/host"
	"github.com/ppiankov/hostpatch/internal/il"
	"github.com/ppiankov/hostpatch/internal/model"
)

// Scenario is a seeded world plus a sequence of host calls.
type Scenario struct {
	Name  string `yaml:"name"`
	World Seed   `yaml:"world"`
	Calls []Call `yaml:"calls"`
}

// Call invokes one host method. String arguments of the form "player:N",
// "inventory:N", "generator:N", "teleporter:N", "scp914", "team:Name",
// "item:Name" and "nil" are resolved against the world; everything else is
// passed through.
type Call struct {
	Method string `yaml:"method"`
	Args   []any  `yaml:"args"`
	Repeat int    `yaml:"repeat,omitempty"`
}

// CallResult is the outcome of one Call.
type CallResult struct {
	Method string `json:"method"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	for i, c := range s.Calls {
		if c.Method == "" {
			return nil, fmt.Errorf("parse scenario: call %d has no method", i+1)
		}
	}
	return &s, nil
}

// Run executes every call in order. A failing call is recorded and the run
// goes on.
func (s *Scenario) Run(m *host.Machine, w *World) []CallResult {
	var out []CallResult
	for _, c := range s.Calls {
		n := max(c.Repeat, 1)
		for range n {
			out = append(out, c.run(m, w))
		}
	}
	return out
}

func (c Call) run(m *host.Machine, w *World) CallResult {
	res := CallResult{Method: c.Method}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		v, err := w.Resolve(a)
		if err != nil {
			res.Error = fmt.Sprintf("arg %d: %v", i, err)
			return res
		}
		args[i] = v
	}
	v, err := m.Call(il.MethodID(c.Method), args...)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Result = v
	return res
}

var teams = map[string]model.Team{
	"None":            model.TeamNone,
	"NineTailedFox":   model.TeamNineTailedFox,
	"ChaosInsurgency": model.TeamChaosInsurgency,
}

// Resolve turns a scenario argument into a host value.
func (w *World) Resolve(a any) (any, error) {
	s, ok := a.(string)
	if !ok {
		return a, nil
	}
	if s == "nil" {
		return nil, nil
	}
	if s == "scp914" {
		return w.Scp914(), nil
	}
	kind, ref, ok := strings.Cut(s, ":")
	if !ok {
		return s, nil
	}
	switch kind {
	case "team":
		t, ok := teams[ref]
		if !ok {
			return nil, fmt.Errorf("unknown team %q", ref)
		}
		return t, nil
	case "item":
		for t := model.ItemNone; t <= model.ItemRadio; t++ {
			if t.String() == ref {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unknown item %q", ref)
	case "player", "inventory", "generator", "teleporter":
	default:
		return s, nil
	}

	id, err := strconv.Atoi(ref)
	if err != nil {
		return nil, fmt.Errorf("bad %s id %q", kind, ref)
	}
	var v any
	var found bool
	switch kind {
	case "player":
		v, found = w.Player(id)
	case "inventory":
		v, found = w.Inventory(id)
	case "generator":
		v, found = w.Generator(id)
	case "teleporter":
		v, found = w.Teleporter(id)
	}
	if !found {
		return nil, fmt.Errorf("no %s %d", kind, id)
	}
	return v, nil
}
