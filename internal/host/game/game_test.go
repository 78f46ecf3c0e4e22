package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hostpatch/internal/host"
	"github.com/ppiankov/hostpatch/internal/model"
)

func testSeed() Seed {
	return Seed{
		Players: []model.Player{
			{ID: 1, UserID: "76561198000000001@steam", Nickname: "alice"},
			{ID: 2, UserID: "76561198000000002@steam", Nickname: "bob"},
			{ID: 3, UserID: "76561198000000003@steam", Nickname: "carol", Dead: true},
		},
		Inventories: map[int][]model.Item{
			1: {{Type: model.ItemRadio, Durability: 100}, {Type: model.ItemMedkit, Durability: 1}},
		},
		Generators:  []model.Generator{{ID: 7}},
		Teleporters: []model.Teleporter{{ID: 1, Type: model.TeleporterKiller}, {ID: 2, Type: model.TeleporterExit}},
		Speakers:    map[int]model.Room{2: "LCZ_Armory"},
		Tickets:     map[model.Team]int{model.TeamNineTailedFox: 5},
		MaxWave:     map[model.Team]int{model.TeamNineTailedFox: 3},
	}
}

func newGame(t *testing.T) (*host.Machine, *World) {
	t.Helper()
	img, err := LoadImage()
	require.NoError(t, err)
	w := NewWorld(testSeed())
	m := host.NewMachine(img)
	Bind(m, w)
	return m, w
}

func mustPlayer(t *testing.T, w *World, id int) *model.Player {
	t.Helper()
	p, ok := w.Player(id)
	require.True(t, ok)
	return p
}

func TestImageHasEveryMethod(t *testing.T) {
	img, err := LoadImage()
	require.NoError(t, err)
	assert.Equal(t, "10.2.2", img.Version())
	assert.Len(t, img.Methods(), 11)
}

func TestModifyDuration(t *testing.T) {
	m, w := newGame(t)
	inv, _ := w.Inventory(1)

	_, err := m.Call("Inventory::ModifyDuration", inv, 0, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, w.Snapshot().Inventories[0].Items[0].Durability)

	_, err = m.Call("Inventory::ModifyDuration", inv, 9, 1)
	assert.Error(t, err)
}

func TestBanUser(t *testing.T) {
	m, w := newGame(t)
	admin, target := mustPlayer(t, w, 1), mustPlayer(t, w, 2)

	_, err := m.Call("BanPlayer::BanUser", admin, target, 60, "cheating")
	require.NoError(t, err)

	s := w.Snapshot()
	require.Len(t, s.Bans, 1)
	assert.Equal(t, Ban{Issuer: admin.UserID, Target: target.UserID, Duration: 60, Reason: "cheating"}, s.Bans[0])
	require.Len(t, s.Disconnects, 1)
	assert.Equal(t, "You have been banned. Reason: cheating", s.Disconnects[0].Message)
}

func TestBanUserZeroDurationOnlyDisconnects(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("BanPlayer::BanUser", mustPlayer(t, w, 1), mustPlayer(t, w, 2), 0, "afk")
	require.NoError(t, err)

	s := w.Snapshot()
	assert.Empty(t, s.Bans)
	assert.Len(t, s.Disconnects, 1)
}

func TestKickUser(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("BanPlayer::KickUser", mustPlayer(t, w, 1), mustPlayer(t, w, 2), "spam")
	require.NoError(t, err)
	s := w.Snapshot()
	require.Len(t, s.Disconnects, 1)
	assert.Equal(t, "You have been kicked. Reason: spam", s.Disconnects[0].Message)
}

func TestUnlockGenerator(t *testing.T) {
	m, w := newGame(t)
	g, _ := w.Generator(7)

	_, err := m.Call("Generator079::Unlock", g, mustPlayer(t, w, 1))
	require.NoError(t, err)
	assert.True(t, g.DoorUnlocked)

	// Already unlocked: no-op.
	_, err = m.Call("Generator079::Unlock", g, mustPlayer(t, w, 1))
	require.NoError(t, err)
	assert.True(t, g.DoorUnlocked)
}

func TestStopSpeaker(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("Scp079PlayerScript::StopSpeaker", mustPlayer(t, w, 2))
	require.NoError(t, err)
	assert.Empty(t, w.Snapshot().Speakers)

	_, err = m.Call("Scp079PlayerScript::StopSpeaker", mustPlayer(t, w, 1))
	require.NoError(t, err)
}

func TestRecallPlayer(t *testing.T) {
	m, w := newGame(t)
	scp := mustPlayer(t, w, 1)

	v, err := m.Call("Scp049PlayerScript::RecallPlayer", scp, mustPlayer(t, w, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = m.Call("Scp049PlayerScript::RecallPlayer", scp, mustPlayer(t, w, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, []int{3}, w.Snapshot().Revived)
	assert.False(t, mustPlayer(t, w, 3).Dead)
}

func TestChangeKnobStatus(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("Scp914Machine::ChangeKnobStatus", w.Scp914(), mustPlayer(t, w, 1))
	require.NoError(t, err)
	assert.Equal(t, model.KnobCoarse, w.Scp914().Knob)
}

func TestUseMedicalItem(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("Consumable::UseMedicalItem", mustPlayer(t, w, 1), model.ItemMedkit)
	require.NoError(t, err)
	assert.Equal(t, []Heal{{Player: 1, Item: model.ItemMedkit}}, w.Snapshot().Heals)
}

func TestSpawnRespectsWaveAndTickets(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("RespawnManager::Spawn", model.TeamNineTailedFox)
	require.NoError(t, err)

	s := w.Snapshot()
	require.Len(t, s.Spawns, 1)
	assert.Equal(t, []int{3}, s.Spawns[0].Players)
	n, ok := w.MaximumRespawn(model.TeamNineTailedFox)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = w.MaximumRespawn(model.TeamChaosInsurgency)
	assert.False(t, ok)
}

func TestIssueReport(t *testing.T) {
	m, w := newGame(t)

	_, err := m.Call("CheaterReport::IssueReport", mustPlayer(t, w, 1), mustPlayer(t, w, 2), "aimbot")
	require.NoError(t, err)
	assert.Equal(t, "aimbot", w.Snapshot().Reports[0].Reason)
}

func TestPocketDimension(t *testing.T) {
	m, w := newGame(t)
	killer, _ := w.Teleporter(1)
	exit, _ := w.Teleporter(2)

	_, err := m.Call("PocketDimensionTeleport::OnTriggerEnter", exit, mustPlayer(t, w, 1))
	require.NoError(t, err)
	_, err = m.Call("PocketDimensionTeleport::OnTriggerEnter", killer, mustPlayer(t, w, 2))
	require.NoError(t, err)

	s := w.Snapshot()
	assert.Equal(t, []int{1}, s.Escaped)
	assert.Equal(t, []Death{{Player: 2, Cause: "pocket dimension"}}, s.Deaths)
}

const testScenario = `
name: ban-and-heal
world:
  players:
    - {id: 1, user_id: "1@steam", nickname: admin}
    - {id: 2, user_id: "2@steam", nickname: griefer}
calls:
  - method: BanPlayer::BanUser
    args: [player:1, player:2, 3600, "griefing"]
  - method: Consumable::UseMedicalItem
    args: [player:1, item:Painkillers]
    repeat: 2
  - method: BanPlayer::KickUser
    args: [nil, player:9, "x"]
`

func TestScenarioRun(t *testing.T) {
	sc, err := ParseScenario([]byte(testScenario))
	require.NoError(t, err)
	assert.Equal(t, "ban-and-heal", sc.Name)

	img, err := LoadImage()
	require.NoError(t, err)
	w := NewWorld(sc.World)
	m := host.NewMachine(img)
	Bind(m, w)

	results := sc.Run(m, w)
	require.Len(t, results, 4)
	for _, r := range results[:3] {
		assert.Empty(t, r.Error, r.Method)
	}
	assert.Contains(t, results[3].Error, "no player 9")

	s := w.Snapshot()
	assert.Len(t, s.Bans, 1)
	assert.Len(t, s.Heals, 2)
	assert.Equal(t, model.ItemPainkillers, s.Heals[0].Item)
}

func TestParseScenarioRejectsMissingMethod(t *testing.T) {
	_, err := ParseScenario([]byte("calls:\n  - args: [1]\n"))
	assert.ErrorContains(t, err, "no method")
}

func TestResolve(t *testing.T) {
	w := NewWorld(testSeed())

	v, err := w.Resolve("team:ChaosInsurgency")
	require.NoError(t, err)
	assert.Equal(t, model.TeamChaosInsurgency, v)

	v, err = w.Resolve("scp914")
	require.NoError(t, err)
	assert.Same(t, w.Scp914(), v)

	v, err = w.Resolve("just text")
	require.NoError(t, err)
	assert.Equal(t, "just text", v)

	v, err = w.Resolve(7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = w.Resolve("team:Pirates")
	assert.Error(t, err)
	_, err = w.Resolve("player:x")
	assert.Error(t, err)
}
