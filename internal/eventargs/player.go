package eventargs

import (
	"fmt"
	"strconv"

	"github.com/ppiankov/hostpatch/internal/model"
)

func formatPlayer(p *model.Player) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func isNilPlayer(p *model.Player) bool { return p == nil }

// Kicking is raised before a player is kicked. Target, Issuer and Allowed are
// audited: a malicious handler silently redirecting or cancelling a kick
// leaves a trace.
type Kicking struct {
	Scope
	target  Observed[*model.Player]
	issuer  Observed[*model.Player]
	allowed Observed[bool]

	reason      string
	fullMessage string
}

// NewKicking builds the carrier. Nothing is audited during construction.
func NewKicking(auditor Auditor, target, issuer *model.Player, reason, fullMessage string) *Kicking {
	k := &Kicking{}
	k.init("Player.Kicking", "kicking", auditor, target, issuer, reason, fullMessage)
	return k
}

func (k *Kicking) init(event, verb string, auditor Auditor, target, issuer *model.Player, reason, fullMessage string) {
	k.Scope = newScope(event, auditor)
	k.Scope.subject = func() string { return model.UserIDOf(k.target.Get()) }

	k.target = observe(&k.Scope, "target", formatPlayer, func(caller string, old, new *model.Player) string {
		return fmt.Sprintf("%s changed the banned player from user %s (%s) to %s (%s)",
			caller, old.Nickname, old.UserID, new.Nickname, new.UserID)
	})
	k.target.ignore = isNilPlayer
	k.target.quietFromZero = true

	k.issuer = observe(&k.Scope, "issuer", formatPlayer, func(caller string, old, new *model.Player) string {
		return fmt.Sprintf("%s changed the ban issuer from user %s (%s) to %s (%s)",
			caller, old.Nickname, old.UserID, new.Nickname, new.UserID)
	})
	k.issuer.ignore = isNilPlayer
	k.issuer.quietFromZero = true

	k.allowed = observe(&k.Scope, "allowed", strconv.FormatBool, func(caller string, _, new bool) string {
		word := "denied"
		if new {
			word = "allowed"
		}
		return fmt.Sprintf("%s %s %s user with ID: %s", caller, word, verb, model.UserIDOf(k.target.Get()))
	})

	k.target.Init(target)
	k.issuer.Init(issuer)
	k.allowed.Init(true)
	k.reason = reason
	k.fullMessage = fullMessage
}

func (k *Kicking) Target() *model.Player     { return k.target.Get() }
func (k *Kicking) SetTarget(p *model.Player) { k.target.Set(p, k.Caller()) }
func (k *Kicking) Issuer() *model.Player     { return k.issuer.Get() }
func (k *Kicking) SetIssuer(p *model.Player) { k.issuer.Set(p, k.Caller()) }
func (k *Kicking) IsAllowed() bool           { return k.allowed.Get() }
func (k *Kicking) SetAllowed(v bool)         { k.allowed.Set(v, k.Caller()) }
func (k *Kicking) Reason() string            { return k.reason }
func (k *Kicking) SetReason(s string)        { k.reason = s }
func (k *Kicking) FullMessage() string       { return k.fullMessage }
func (k *Kicking) SetFullMessage(s string)   { k.fullMessage = s }

// Banning is raised before a player is banned. On top of the Kicking fields
// it audits Duration, in seconds.
type Banning struct {
	Kicking
	duration Observed[int]
}

func NewBanning(auditor Auditor, target, issuer *model.Player, duration int, reason, fullMessage string) *Banning {
	b := &Banning{}
	b.Kicking.init("Player.Banning", "banning", auditor, target, issuer, reason, fullMessage)
	b.duration = observe(&b.Scope, "duration", strconv.Itoa, func(caller string, old, new int) string {
		return fmt.Sprintf("%s changed Ban duration: %d to %d for ID: %s", caller, old, new, model.UserIDOf(b.target.Get()))
	})
	b.duration.Init(duration)
	return b
}

func (b *Banning) Duration() int     { return b.duration.Get() }
func (b *Banning) SetDuration(n int) { b.duration.Set(n, b.Caller()) }

// UnlockingGenerator is raised before a player unlocks a generator door.
type UnlockingGenerator struct {
	Cancellable
	player    *model.Player
	generator *model.Generator
}

func NewUnlockingGenerator(player *model.Player, generator *model.Generator) *UnlockingGenerator {
	return &UnlockingGenerator{player: player, generator: generator}
}

func (e *UnlockingGenerator) Player() *model.Player       { return e.player }
func (e *UnlockingGenerator) Generator() *model.Generator { return e.generator }

// UsedMedicalItem is raised after a player used a medical item. It cannot be
// cancelled.
type UsedMedicalItem struct {
	player *model.Player
	item   model.ItemType
}

func NewUsedMedicalItem(player *model.Player, item model.ItemType) *UsedMedicalItem {
	return &UsedMedicalItem{player: player, item: item}
}

func (e *UsedMedicalItem) Player() *model.Player { return e.player }
func (e *UsedMedicalItem) Item() model.ItemType  { return e.item }

// FailingEscapePocketDimension is raised before a player dies in the pocket
// dimension.
type FailingEscapePocketDimension struct {
	Cancellable
	player     *model.Player
	teleporter *model.Teleporter
}

func NewFailingEscapePocketDimension(player *model.Player, teleporter *model.Teleporter) *FailingEscapePocketDimension {
	return &FailingEscapePocketDimension{player: player, teleporter: teleporter}
}

func (e *FailingEscapePocketDimension) Player() *model.Player         { return e.player }
func (e *FailingEscapePocketDimension) Teleporter() *model.Teleporter { return e.teleporter }
