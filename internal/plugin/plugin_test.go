package plugin

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/hostpatch/internal/audit"
	"github.com/ppiankov/hostpatch/internal/bus"
	"github.com/ppiankov/hostpatch/internal/eventargs"
	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/model"
)

type recorder struct{ entries []audit.Entry }

func (r *recorder) WriteLine(e audit.Entry) { r.entries = append(r.entries, e) }

var (
	admin   = &model.Player{ID: 1, UserID: "1@steam", Nickname: "admin"}
	griefer = &model.Player{ID: 2, UserID: "2@steam", Nickname: "griefer"}
)

func newManager(t *testing.T, opts ...Option) (*Manager, *bus.Registry, *bytes.Buffer) {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	reg := bus.New(bus.WithLogger(logger))
	require.NoError(t, handlers.Declare(reg))
	m := NewManager(reg, append([]Option{WithLogger(logger)}, opts...)...)
	t.Cleanup(m.Close)
	return m, reg, logs
}

func TestPluginDeniesBanAndIsAudited(t *testing.T) {
	m, reg, _ := newManager(t)
	_, err := m.LoadString("ban_guard.lua", "", `
events.on("Player.Banning", function(ev)
  if ev.target.nickname == "griefer" and ev.duration > 60 then
    ev.duration = 60
  end
  ev.allowed = false
end)
`)
	require.NoError(t, err)

	rec := &recorder{}
	ev := eventargs.NewBanning(rec, griefer, admin, 3600, "griefing", "bye")
	reg.InvokeNamed(handlers.Banning.Name(), ev)

	assert.Equal(t, 60, ev.Duration())
	assert.False(t, ev.IsAllowed())
	require.Len(t, rec.entries, 2)
	assert.Equal(t, "duration", rec.entries[0].Field)
	assert.Equal(t, "ban_guard.lua", rec.entries[0].Caller)
	assert.Equal(t, "ban_guard.lua denied banning user with ID: 2@steam", rec.entries[1].Message)
}

func TestPluginCannotImpersonateAnotherOwner(t *testing.T) {
	m, reg, _ := newManager(t)
	_, err := m.LoadString("evil.lua", "", `
events.on("Player.Banning", function(ev)
  local ok, msg = pcall(function() ev.caller = "trusted_admin.lua" end)
  assert(not ok and string.find(msg, "reserved"), "caller was writable")
  ok = pcall(function() ev.caller_identity.owner = "trusted_admin.lua" end)
  assert(not ok, "identity was writable")
  ev.allowed = false
end)
`)
	require.NoError(t, err)

	rec := &recorder{}
	ev := eventargs.NewBanning(rec, griefer, admin, 3600, "griefing", "bye")
	reg.InvokeNamed(handlers.Banning.Name(), ev)

	assert.False(t, ev.IsAllowed())
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "evil.lua", rec.entries[0].Caller)
	assert.Equal(t, "evil.lua denied banning user with ID: 2@steam", rec.entries[0].Message)
	assert.Equal(t, "host", ev.Caller())
}

func TestPluginReadsAndWritesScalars(t *testing.T) {
	m, reg, _ := newManager(t)
	_, err := m.LoadString("report.lua", "", `
events.on("Server.LocalReporting", function(ev)
  ev.reason = ev.issuer.user_id .. ": " .. ev.reason
end)
events.on("Scp914.ChangingKnobSetting", function(ev)
  ev.knob_setting = ev.knob_setting + 1
end)
`)
	require.NoError(t, err)

	report := eventargs.NewLocalReporting(admin, griefer, "aimbot")
	reg.InvokeNamed(handlers.LocalReporting.Name(), report)
	assert.Equal(t, "1@steam: aimbot", report.Reason())

	knob := eventargs.NewChangingKnobSetting(admin, model.KnobFine)
	reg.InvokeNamed(handlers.ChangingKnobSetting.Name(), knob)
	assert.Equal(t, model.KnobVeryFine, knob.KnobSetting())
}

func TestPluginCanSwapPlayers(t *testing.T) {
	m, reg, _ := newManager(t)
	_, err := m.LoadString("swap.lua", "", `
events.on("Player.Kicking", function(ev)
  local t = ev.target
  ev.target = ev.issuer
  ev.issuer = t
end)
`)
	require.NoError(t, err)

	rec := &recorder{}
	ev := eventargs.NewKicking(rec, griefer, admin, "afk", "bye")
	reg.InvokeNamed(handlers.Kicking.Name(), ev)

	assert.Same(t, admin, ev.Target())
	assert.Same(t, griefer, ev.Issuer())
	assert.Len(t, rec.entries, 2)
}

func TestLuaErrorIsAHandlerFault(t *testing.T) {
	m, reg, logs := newManager(t)
	_, err := m.LoadString("broken.lua", "", `
events.on("Server.LocalReporting", function(ev)
  error("nope")
end)
events.on("Server.LocalReporting", function(ev)
  ev.issuer = "not a player"
end)
`)
	require.NoError(t, err)
	count := 0
	_, err = bus.Register(reg, handlers.LocalReporting, "counter", func(*eventargs.LocalReporting) error {
		count++
		return nil
	})
	require.NoError(t, err)

	reg.InvokeNamed(handlers.LocalReporting.Name(), eventargs.NewLocalReporting(admin, griefer, "x"))

	assert.Equal(t, 1, count)
	assert.Contains(t, logs.String(), "handler fault")
	assert.Contains(t, logs.String(), "nope")
	assert.Contains(t, logs.String(), "issuer is read-only")
}

func TestRunawayHandlerTimesOut(t *testing.T) {
	m, reg, logs := newManager(t, WithTimeout(50*time.Millisecond))
	_, err := m.LoadString("loop.lua", "", `
events.on("Player.MedicalItemUsed", function(ev)
  while true do end
end)
`)
	require.NoError(t, err)

	reg.InvokeNamed(handlers.MedicalItemUsed.Name(), eventargs.NewUsedMedicalItem(admin, model.ItemMedkit))
	assert.Contains(t, logs.String(), "owner=loop.lua")
}

func TestUnknownKindFailsLoadAndRollsBack(t *testing.T) {
	m, reg, _ := newManager(t)
	_, err := m.LoadString("typo.lua", "", `
events.on("Player.Banning", function(ev) end)
events.on("Player.Baning", function(ev) end)
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Player.Baning")
	assert.Empty(t, reg.Handlers(handlers.Banning.Name()))
	assert.Empty(t, m.Plugins())
}

func TestSandboxHidesFilesystem(t *testing.T) {
	m, _, _ := newManager(t)
	_, err := m.LoadString("escape.lua", "", `io.open("/etc/passwd")`)
	assert.Error(t, err)
	_, err = m.LoadString("escape2.lua", "", `dofile("/etc/passwd")`)
	assert.Error(t, err)
}

func TestEventsOffAndKinds(t *testing.T) {
	m, reg, _ := newManager(t)
	_, err := m.LoadString("toggle.lua", "", `
local id = events.on("Player.Banning", function(ev) end)
assert(events.off(id))
assert(not events.off(id))
assert(#events.kinds() == 11)
log.info("loaded", #events.kinds())
`)
	require.NoError(t, err)
	assert.Empty(t, reg.Handlers(handlers.Banning.Name()))
}

func TestLoadDirAndClose(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
	}
	write("b.lua", `events.on("Player.Kicking", function(ev) end)`)
	write("a.lua", `events.on("Player.Banning", function(ev) end)`)
	write("bad.lua", `this is not lua`)
	write("notes.txt", `ignored`)

	m, reg, _ := newManager(t)
	err := m.LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.lua")
	assert.Equal(t, []string{"a.lua", "b.lua"}, m.Plugins())
	assert.Len(t, reg.Handlers(handlers.Banning.Name()), 1)

	m.Close()
	assert.Empty(t, reg.Handlers(handlers.Banning.Name()))
	assert.Empty(t, reg.Handlers(handlers.Kicking.Name()))
	assert.Empty(t, m.Plugins())
}

func TestLoadDirMissing(t *testing.T) {
	m, _, _ := newManager(t)
	assert.NoError(t, m.LoadDir(filepath.Join(t.TempDir(), "none")))
}

func TestGoName(t *testing.T) {
	for in, want := range map[string]string{
		"allowed":         "Allowed",
		"next_known_team": "NextKnownTeam",
		"nextKnownTeam":   "NextKnownTeam",
		"user_id":         "UserId",
	} {
		assert.Equal(t, want, goName(in), in)
	}
}
