package eventargs

import "github.com/ppiankov/hostpatch/internal/model"

// RespawnSizer tells how many players a team may spawn with right now.
type RespawnSizer interface {
	MaximumRespawn(team model.Team) (int, bool)
}

// RespawningTeam is raised before a respawn wave. Choosing another team
// recomputes MaximumRespawnAmount from the sizer.
type RespawningTeam struct {
	Cancellable
	players []*model.Player
	team    model.Team
	max     int
	sizer   RespawnSizer
}

func NewRespawningTeam(players []*model.Player, team model.Team, sizer RespawnSizer) *RespawningTeam {
	e := &RespawningTeam{players: players, sizer: sizer}
	e.SetNextKnownTeam(team)
	return e
}

func (e *RespawningTeam) Players() []*model.Player  { return e.players }
func (e *RespawningTeam) NextKnownTeam() model.Team { return e.team }
func (e *RespawningTeam) MaximumRespawnAmount() int { return e.max }

func (e *RespawningTeam) SetMaximumRespawnAmount(n int) { e.max = n }

// SetNextKnownTeam switches the team. An unknown team keeps the current
// maximum.
func (e *RespawningTeam) SetNextKnownTeam(t model.Team) {
	e.team = t
	if e.sizer == nil {
		return
	}
	if n, ok := e.sizer.MaximumRespawn(t); ok {
		e.max = n
	}
}

// LocalReporting is raised before a player's in-game report reaches the
// server staff.
type LocalReporting struct {
	Cancellable
	issuer *model.Player
	target *model.Player
	reason string
}

func NewLocalReporting(issuer, target *model.Player, reason string) *LocalReporting {
	return &LocalReporting{issuer: issuer, target: target, reason: reason}
}

func (e *LocalReporting) Issuer() *model.Player { return e.issuer }
func (e *LocalReporting) Target() *model.Player { return e.target }
func (e *LocalReporting) Reason() string        { return e.reason }
func (e *LocalReporting) SetReason(s string)    { e.reason = s }
