// Package model holds the host objects that event carriers refer to.
package model

import "fmt"

// Player is a connected player. Carriers hold *Player references only for the
// duration of one dispatch.
type Player struct {
	ID       int    `json:"id" yaml:"id"`
	UserID   string `json:"user_id" yaml:"user_id"`
	Nickname string `json:"nickname" yaml:"nickname"`
	Dead     bool   `json:"dead,omitempty" yaml:"dead,omitempty"`
}

func (p *Player) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s)", p.Nickname, p.UserID)
}

// UserIDOf returns p's user id, or "" for nil.
func UserIDOf(p *Player) string {
	if p == nil {
		return ""
	}
	return p.UserID
}

// ItemType identifies an inventory item kind.
type ItemType int

const (
	ItemNone ItemType = iota
	ItemMedkit
	ItemPainkillers
	ItemAdrenaline
	ItemSCP500
	ItemRadio
)

var itemNames = map[ItemType]string{
	ItemNone:        "None",
	ItemMedkit:      "Medkit",
	ItemPainkillers: "Painkillers",
	ItemAdrenaline:  "Adrenaline",
	ItemSCP500:      "SCP500",
	ItemRadio:       "Radio",
}

func (t ItemType) String() string {
	if s, ok := itemNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ItemType(%d)", int(t))
}

// IsMedical reports whether t heals on use.
func (t ItemType) IsMedical() bool {
	switch t {
	case ItemMedkit, ItemPainkillers, ItemAdrenaline, ItemSCP500:
		return true
	}
	return false
}

// Item is a value-typed inventory slot, copied in and out of the host list.
type Item struct {
	Type       ItemType `json:"type" yaml:"type"`
	Durability int      `json:"durability" yaml:"durability"`
}

// Field implements host field reads.
func (it Item) Field(name string) (any, error) {
	switch name {
	case "durability":
		return it.Durability, nil
	case "type":
		return it.Type, nil
	}
	return nil, fmt.Errorf("item has no field %q", name)
}

// SetField returns a copy of it with the field replaced.
func (it Item) SetField(name string, v any) (any, error) {
	switch name {
	case "durability":
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("item.durability: want int, got %T", v)
		}
		it.Durability = n
		return it, nil
	case "type":
		t, ok := v.(ItemType)
		if !ok {
			return nil, fmt.Errorf("item.type: want ItemType, got %T", v)
		}
		it.Type = t
		return it, nil
	}
	return nil, fmt.Errorf("item has no field %q", name)
}

// Generator is a map generator whose door can be unlocked.
type Generator struct {
	ID           int  `json:"id" yaml:"id"`
	DoorUnlocked bool `json:"door_unlocked" yaml:"door_unlocked"`
}

func (g *Generator) Field(name string) (any, error) {
	if name == "isDoorUnlocked" {
		return g.DoorUnlocked, nil
	}
	return nil, fmt.Errorf("generator has no field %q", name)
}

func (g *Generator) SetField(name string, v any) (any, error) {
	if name != "isDoorUnlocked" {
		return nil, fmt.Errorf("generator has no field %q", name)
	}
	b, ok := v.(bool)
	if !ok {
		n, isInt := v.(int)
		if !isInt {
			return nil, fmt.Errorf("generator.isDoorUnlocked: want bool, got %T", v)
		}
		b = n != 0
	}
	g.DoorUnlocked = b
	return g, nil
}

// Room is a named map room.
type Room string

// Knob is the SCP-914 refinement setting.
type Knob int

const (
	KnobRough Knob = iota
	KnobCoarse
	KnobOneToOne
	KnobFine
	KnobVeryFine

	KnobMin = KnobRough
	KnobMax = KnobVeryFine
)

var knobNames = [...]string{"Rough", "Coarse", "1:1", "Fine", "VeryFine"}

func (k Knob) String() string {
	if k >= KnobMin && k <= KnobMax {
		return knobNames[k]
	}
	return fmt.Sprintf("Knob(%d)", int(k))
}

// Scp914 is the refinement machine; its knob is a host field.
type Scp914 struct {
	Knob Knob `json:"knob" yaml:"knob"`
}

func (m *Scp914) Field(name string) (any, error) {
	if name == "knobState" {
		return int(m.Knob), nil
	}
	return nil, fmt.Errorf("scp914 has no field %q", name)
}

func (m *Scp914) SetField(name string, v any) (any, error) {
	if name != "knobState" {
		return nil, fmt.Errorf("scp914 has no field %q", name)
	}
	switch k := v.(type) {
	case int:
		m.Knob = Knob(k)
	case Knob:
		m.Knob = k
	default:
		return nil, fmt.Errorf("scp914.knobState: want int, got %T", v)
	}
	return m, nil
}

// TeleporterType tells exits from killers in the pocket dimension.
type TeleporterType int

const (
	TeleporterKiller TeleporterType = iota
	TeleporterExit
)

// Teleporter is a pocket-dimension exit.
type Teleporter struct {
	ID   int            `json:"id" yaml:"id"`
	Type TeleporterType `json:"type" yaml:"type"`
}

func (t *Teleporter) Field(name string) (any, error) {
	if name == "type" {
		return int(t.Type), nil
	}
	return nil, fmt.Errorf("teleporter has no field %q", name)
}

func (t *Teleporter) SetField(name string, v any) (any, error) {
	return nil, fmt.Errorf("teleporter field %q is read-only", name)
}

// Team is a respawnable team.
type Team int

const (
	TeamNone Team = iota
	TeamNineTailedFox
	TeamChaosInsurgency
)

func (t Team) String() string {
	switch t {
	case TeamNineTailedFox:
		return "NineTailedFox"
	case TeamChaosInsurgency:
		return "ChaosInsurgency"
	}
	return "None"
}
