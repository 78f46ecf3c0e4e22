// Package handlers declares the event kinds the host raises, grouped by game
// area, and the entry points instrumented host code calls to dispatch them.
package handlers

import (
	"errors"
	"strings"

	"github.com/ppiankov/hostpatch/internal/bus"
	"github.com/ppiankov/hostpatch/internal/eventargs"
)

var (
	ChangingDurability           = bus.NewKind[*eventargs.ChangingDurability]("Item.ChangingDurability")
	Kicking                      = bus.NewKind[*eventargs.Kicking]("Player.Kicking")
	Banning                      = bus.NewKind[*eventargs.Banning]("Player.Banning")
	UnlockingGenerator           = bus.NewKind[*eventargs.UnlockingGenerator]("Player.UnlockingGenerator")
	MedicalItemUsed              = bus.NewKind[*eventargs.UsedMedicalItem]("Player.MedicalItemUsed")
	FailingEscapePocketDimension = bus.NewKind[*eventargs.FailingEscapePocketDimension]("Player.FailingEscapePocketDimension")
	StoppingSpeaker              = bus.NewKind[*eventargs.StoppingSpeaker]("Scp079.StoppingSpeaker")
	FinishingRecall              = bus.NewKind[*eventargs.FinishingRecall]("Scp049.FinishingRecall")
	ChangingKnobSetting          = bus.NewKind[*eventargs.ChangingKnobSetting]("Scp914.ChangingKnobSetting")
	RespawningTeam               = bus.NewKind[*eventargs.RespawningTeam]("Server.RespawningTeam")
	LocalReporting               = bus.NewKind[*eventargs.LocalReporting]("Server.LocalReporting")
)

var all = []bus.Declarer{
	ChangingDurability,
	Kicking,
	Banning,
	UnlockingGenerator,
	MedicalItemUsed,
	FailingEscapePocketDimension,
	StoppingSpeaker,
	FinishingRecall,
	ChangingKnobSetting,
	RespawningTeam,
	LocalReporting,
}

// Declare makes every kind known to r.
func Declare(r *bus.Registry) error {
	var errs []error
	for _, k := range all {
		if err := k.Declare(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kinds returns every kind name in declaration order.
func Kinds() []string {
	out := make([]string, len(all))
	for i, k := range all {
		out[i] = k.Name()
	}
	return out
}

// EntryPoint returns the host-visible method name that dispatches kind, e.g.
// "Handlers.Player::OnBanning" for "Player.Banning".
func EntryPoint(kind string) string {
	area, name, ok := strings.Cut(kind, ".")
	if !ok {
		return "Handlers::On" + kind
	}
	return "Handlers." + area + "::On" + name
}
