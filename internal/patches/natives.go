package patches

import (
	"fmt"

	"github.com/ppiankov/hostpatch/internal/bus"
	"github.com/ppiankov/hostpatch/internal/eventargs"
	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/host"
	"github.com/ppiankov/hostpatch/internal/model"
)

// Env is what the carrier natives need from the running process.
type Env struct {
	Registry *bus.Registry
	Auditor  eventargs.Auditor
	Sizer    eventargs.RespawnSizer
}

// Bind registers the carrier constructors, property getters and dispatch
// entry points that patched methods call.
func Bind(m *host.Machine, env Env) {
	for _, kind := range handlers.Kinds() {
		m.Bind(handlers.EntryPoint(kind), func(args []any) (any, error) {
			env.Registry.InvokeNamed(kind, args[0])
			return nil, nil
		})
	}

	m.Bind(isAllowed.Name, func(args []any) (any, error) {
		ev, ok := args[0].(interface{ IsAllowed() bool })
		if !ok {
			return nil, fmt.Errorf("%s: %T cannot be cancelled", isAllowed.Name, args[0])
		}
		return ev.IsAllowed(), nil
	})

	bindConstructors(m, env)

	getter(m, changingDurability, "NewItem", (*eventargs.ChangingDurability).NewItem)

	getter(m, banning, "Target", (*eventargs.Banning).Target)
	getter(m, banning, "Issuer", (*eventargs.Banning).Issuer)
	getter(m, banning, "Duration", (*eventargs.Banning).Duration)
	getter(m, banning, "Reason", (*eventargs.Banning).Reason)
	getter(m, banning, "FullMessage", (*eventargs.Banning).FullMessage)

	getter(m, kicking, "Target", (*eventargs.Kicking).Target)
	getter(m, kicking, "Issuer", (*eventargs.Kicking).Issuer)
	getter(m, kicking, "Reason", (*eventargs.Kicking).Reason)
	getter(m, kicking, "FullMessage", (*eventargs.Kicking).FullMessage)

	getter(m, changingKnob, "KnobSetting", (*eventargs.ChangingKnobSetting).KnobSetting)

	getter(m, respawningTeam, "NextKnownTeam", (*eventargs.RespawningTeam).NextKnownTeam)
	getter(m, respawningTeam, "MaximumRespawnAmount", (*eventargs.RespawningTeam).MaximumRespawnAmount)

	getter(m, localReporting, "Reason", (*eventargs.LocalReporting).Reason)
}

func bindConstructors(m *host.Machine, env Env) {
	m.Bind(ctor(changingDurability, 2).Name, func(args []any) (any, error) {
		old, ok := args[0].(model.Item)
		if !ok {
			return nil, fmt.Errorf("%s: want Item, got %T", changingDurability, args[0])
		}
		n, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		return eventargs.NewChangingDurability(old, n), nil
	})
	m.Bind(ctor(banning, 5).Name, func(args []any) (any, error) {
		duration, err := intArg(args[2])
		if err != nil {
			return nil, err
		}
		return eventargs.NewBanning(env.Auditor,
			playerArg(args[0]), playerArg(args[1]), duration,
			stringArg(args[3]), stringArg(args[4])), nil
	})
	m.Bind(ctor(kicking, 4).Name, func(args []any) (any, error) {
		return eventargs.NewKicking(env.Auditor,
			playerArg(args[0]), playerArg(args[1]),
			stringArg(args[2]), stringArg(args[3])), nil
	})
	m.Bind(ctor(unlockingGenerator, 2).Name, func(args []any) (any, error) {
		g, _ := args[1].(*model.Generator)
		return eventargs.NewUnlockingGenerator(playerArg(args[0]), g), nil
	})
	m.Bind(ctor(stoppingSpeaker, 2).Name, func(args []any) (any, error) {
		room, _ := args[1].(model.Room)
		return eventargs.NewStoppingSpeaker(playerArg(args[0]), room), nil
	})
	m.Bind(ctor(finishingRecall, 2).Name, func(args []any) (any, error) {
		return eventargs.NewFinishingRecall(playerArg(args[0]), playerArg(args[1])), nil
	})
	m.Bind(ctor(changingKnob, 2).Name, func(args []any) (any, error) {
		n, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		return eventargs.NewChangingKnobSetting(playerArg(args[0]), model.Knob(n)), nil
	})
	m.Bind(ctor(usedMedicalItem, 2).Name, func(args []any) (any, error) {
		n, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		return eventargs.NewUsedMedicalItem(playerArg(args[0]), model.ItemType(n)), nil
	})
	m.Bind(ctor(respawningTeam, 2).Name, func(args []any) (any, error) {
		players, _ := args[0].([]*model.Player)
		n, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		return eventargs.NewRespawningTeam(players, model.Team(n), env.Sizer), nil
	})
	m.Bind(ctor(localReporting, 3).Name, func(args []any) (any, error) {
		return eventargs.NewLocalReporting(playerArg(args[0]), playerArg(args[1]), stringArg(args[2])), nil
	})
	m.Bind(ctor(failingEscape, 2).Name, func(args []any) (any, error) {
		tp, _ := args[1].(*model.Teleporter)
		return eventargs.NewFailingEscapePocketDimension(playerArg(args[0]), tp), nil
	})
}

// getter binds carrier::get_prop to a typed accessor.
func getter[T, V any](m *host.Machine, carrier, prop string, fn func(T) V) {
	name := get(carrier, prop).Name
	m.Bind(name, func(args []any) (any, error) {
		ev, ok := args[0].(T)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected receiver %T", name, args[0])
		}
		return fn(ev), nil
	})
}

// playerArg accepts nil for the server console.
func playerArg(v any) *model.Player {
	p, _ := v.(*model.Player)
	return p
}

func stringArg(v any) string {
	s, _ := v.(string)
	return s
}

func intArg(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case model.Knob:
		return int(x), nil
	case model.Team:
		return int(x), nil
	case model.ItemType:
		return int(x), nil
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}
