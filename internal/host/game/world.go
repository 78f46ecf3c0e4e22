package game

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/hostpatch/internal/model"
)

// Inventory is a player's item list. The host reads and writes slots by
// value.
type Inventory struct {
	Owner int          `json:"owner" yaml:"owner"`
	Items []model.Item `json:"items" yaml:"items"`
}

type Ban struct {
	Issuer   string `json:"issuer"`
	Target   string `json:"target"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
}

type Disconnect struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

type Report struct {
	Issuer string `json:"issuer"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type Spawn struct {
	Team    model.Team `json:"team"`
	Players []int      `json:"players"`
}

type Heal struct {
	Player int            `json:"player"`
	Item   model.ItemType `json:"item"`
}

type Death struct {
	Player int    `json:"player"`
	Cause  string `json:"cause"`
}

// Seed is the initial world, as read from a scenario file.
type Seed struct {
	Players     []model.Player       `yaml:"players"`
	Inventories map[int][]model.Item `yaml:"inventories"`
	Generators  []model.Generator    `yaml:"generators"`
	Teleporters []model.Teleporter   `yaml:"teleporters"`
	Scp914      model.Scp914         `yaml:"scp914"`
	Speakers    map[int]model.Room   `yaml:"speakers"`
	Tickets     map[model.Team]int   `yaml:"tickets"`
	MaxWave     map[model.Team]int   `yaml:"max_wave"`
}

// World is the mutable game state behind the natives. All methods are safe
// for concurrent use.
type World struct {
	mu          sync.Mutex
	players     map[int]*model.Player
	inventories map[int]*Inventory
	generators  map[int]*model.Generator
	teleporters map[int]*model.Teleporter
	scp914      *model.Scp914
	speakers    map[int]model.Room
	tickets     map[model.Team]int
	maxWave     map[model.Team]int

	bans        []Ban
	disconnects []Disconnect
	reports     []Report
	spawns      []Spawn
	heals       []Heal
	deaths      []Death
	revived     []int
	escaped     []int
}

// NewWorld builds a world from seed.
func NewWorld(seed Seed) *World {
	w := &World{
		players:     make(map[int]*model.Player),
		inventories: make(map[int]*Inventory),
		generators:  make(map[int]*model.Generator),
		teleporters: make(map[int]*model.Teleporter),
		scp914:      &model.Scp914{Knob: seed.Scp914.Knob},
		speakers:    make(map[int]model.Room),
		tickets:     make(map[model.Team]int),
		maxWave:     make(map[model.Team]int),
	}
	for i := range seed.Players {
		p := seed.Players[i]
		w.players[p.ID] = &p
	}
	for owner, items := range seed.Inventories {
		w.inventories[owner] = &Inventory{Owner: owner, Items: append([]model.Item(nil), items...)}
	}
	for i := range seed.Generators {
		g := seed.Generators[i]
		w.generators[g.ID] = &g
	}
	for i := range seed.Teleporters {
		tp := seed.Teleporters[i]
		w.teleporters[tp.ID] = &tp
	}
	for id, room := range seed.Speakers {
		w.speakers[id] = room
	}
	for team, n := range seed.Tickets {
		w.tickets[team] = n
	}
	for team, n := range seed.MaxWave {
		w.maxWave[team] = n
	}
	return w
}

func (w *World) Player(id int) (*model.Player, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	return p, ok
}

func (w *World) Inventory(owner int) (*Inventory, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inv, ok := w.inventories[owner]
	return inv, ok
}

func (w *World) Generator(id int) (*model.Generator, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	g, ok := w.generators[id]
	return g, ok
}

func (w *World) Teleporter(id int) (*model.Teleporter, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tp, ok := w.teleporters[id]
	return tp, ok
}

func (w *World) Scp914() *model.Scp914 { return w.scp914 }

// MaximumRespawn is the wave size for team: the smaller of its tickets and
// its maximum wave. Teams without a wave size are unknown.
func (w *World) MaximumRespawn(team model.Team) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maximumRespawnLocked(team)
}

func (w *World) maximumRespawnLocked(team model.Team) (int, bool) {
	wave, ok := w.maxWave[team]
	if !ok {
		return 0, false
	}
	return min(w.tickets[team], wave), true
}

// State is a point-in-time copy of the world for reporting.
type State struct {
	Players     []model.Player     `json:"players"`
	Inventories []Inventory        `json:"inventories"`
	Generators  []model.Generator  `json:"generators"`
	Knob        string             `json:"scp914_knob"`
	Speakers    map[int]model.Room `json:"speakers"`
	Bans        []Ban              `json:"bans"`
	Disconnects []Disconnect       `json:"disconnects"`
	Reports     []Report           `json:"reports"`
	Spawns      []Spawn            `json:"spawns"`
	Heals       []Heal             `json:"heals"`
	Deaths      []Death            `json:"deaths"`
	Revived     []int              `json:"revived"`
	Escaped     []int              `json:"escaped"`
}

// Snapshot copies the current state.
func (w *World) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := State{
		Knob:        w.scp914.Knob.String(),
		Speakers:    make(map[int]model.Room, len(w.speakers)),
		Bans:        append([]Ban(nil), w.bans...),
		Disconnects: append([]Disconnect(nil), w.disconnects...),
		Reports:     append([]Report(nil), w.reports...),
		Spawns:      append([]Spawn(nil), w.spawns...),
		Heals:       append([]Heal(nil), w.heals...),
		Deaths:      append([]Death(nil), w.deaths...),
		Revived:     append([]int(nil), w.revived...),
		Escaped:     append([]int(nil), w.escaped...),
	}
	for _, p := range w.players {
		s.Players = append(s.Players, *p)
	}
	sort.Slice(s.Players, func(i, j int) bool { return s.Players[i].ID < s.Players[j].ID })
	for _, inv := range w.inventories {
		s.Inventories = append(s.Inventories, Inventory{Owner: inv.Owner, Items: append([]model.Item(nil), inv.Items...)})
	}
	sort.Slice(s.Inventories, func(i, j int) bool { return s.Inventories[i].Owner < s.Inventories[j].Owner })
	for _, g := range w.generators {
		s.Generators = append(s.Generators, *g)
	}
	sort.Slice(s.Generators, func(i, j int) bool { return s.Generators[i].ID < s.Generators[j].ID })
	for id, room := range w.speakers {
		s.Speakers[id] = room
	}
	return s
}

func (w *World) String() string {
	s := w.Snapshot()
	return fmt.Sprintf("world: %d players, %d bans, %d disconnects, %d reports", len(s.Players), len(s.Bans), len(s.Disconnects), len(s.Reports))
}

func sortPlayers(ps []*model.Player) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
