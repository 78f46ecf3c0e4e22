package model

import "testing"

func TestPlayerString(t *testing.T) {
	p := &Player{ID: 1, UserID: "1@steam", Nickname: "admin"}
	if got := p.String(); got != "admin (1@steam)" {
		t.Errorf("String() = %q", got)
	}
	var nilPlayer *Player
	if got := nilPlayer.String(); got != "<nil>" {
		t.Errorf("nil String() = %q", got)
	}
	if UserIDOf(nil) != "" || UserIDOf(p) != "1@steam" {
		t.Error("UserIDOf mismatch")
	}
}

func TestItemFieldsCopyOnWrite(t *testing.T) {
	it := Item{Type: ItemRadio, Durability: 100}
	v, err := it.SetField("durability", 40)
	if err != nil {
		t.Fatalf("SetField: %v", err)
	}
	if it.Durability != 100 {
		t.Error("SetField modified the receiver")
	}
	if got := v.(Item).Durability; got != 40 {
		t.Errorf("durability = %d, want 40", got)
	}
	if _, err := it.SetField("durability", "x"); err == nil {
		t.Error("expected type error")
	}
	if _, err := it.Field("weight"); err == nil {
		t.Error("expected unknown field error")
	}
}

func TestItemTypes(t *testing.T) {
	medical := map[ItemType]bool{
		ItemNone: false, ItemMedkit: true, ItemPainkillers: true,
		ItemAdrenaline: true, ItemSCP500: true, ItemRadio: false,
	}
	for it, want := range medical {
		if it.IsMedical() != want {
			t.Errorf("%s.IsMedical() = %v", it, !want)
		}
	}
	if got := ItemType(42).String(); got != "ItemType(42)" {
		t.Errorf("unknown item = %q", got)
	}
}

func TestGeneratorAcceptsBoolOrInt(t *testing.T) {
	g := &Generator{ID: 1}
	if _, err := g.SetField("isDoorUnlocked", 1); err != nil || !g.DoorUnlocked {
		t.Fatalf("int set failed: %v", err)
	}
	if _, err := g.SetField("isDoorUnlocked", false); err != nil || g.DoorUnlocked {
		t.Fatalf("bool set failed: %v", err)
	}
	if _, err := g.SetField("power", true); err == nil {
		t.Error("expected unknown field error")
	}
}

func TestKnob(t *testing.T) {
	m := &Scp914{Knob: KnobFine}
	v, _ := m.Field("knobState")
	if v != int(KnobFine) {
		t.Errorf("knobState = %v", v)
	}
	if _, err := m.SetField("knobState", KnobRough); err != nil || m.Knob != KnobRough {
		t.Fatalf("SetField: %v", err)
	}
	if KnobOneToOne.String() != "1:1" || Knob(9).String() != "Knob(9)" {
		t.Error("knob names")
	}
}

func TestTeleporterIsReadOnly(t *testing.T) {
	tp := &Teleporter{ID: 1, Type: TeleporterExit}
	if v, _ := tp.Field("type"); v != int(TeleporterExit) {
		t.Errorf("type = %v", v)
	}
	if _, err := tp.SetField("type", 0); err == nil {
		t.Error("expected read-only error")
	}
}

func TestTeamString(t *testing.T) {
	if TeamChaosInsurgency.String() != "ChaosInsurgency" || Team(7).String() != "None" {
		t.Error("team names")
	}
}
