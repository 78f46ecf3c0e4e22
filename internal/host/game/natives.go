package game

import (
	"fmt"

	"github.com/ppiankov/hostpatch/internal/host"
	"github.com/ppiankov/hostpatch/internal/model"
)

// Bind registers the game's native routines on m, acting on w.
func Bind(m *host.Machine, w *World) {
	m.Bind("Inventory::get_Item", func(args []any) (any, error) {
		inv, slot, err := inventorySlot(args)
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		return inv.Items[slot], nil
	})
	m.Bind("Inventory::set_Item", func(args []any) (any, error) {
		inv, slot, err := inventorySlot(args)
		if err != nil {
			return nil, err
		}
		it, ok := args[2].(model.Item)
		if !ok {
			return nil, fmt.Errorf("set_Item: want Item, got %T", args[2])
		}
		w.mu.Lock()
		inv.Items[slot] = it
		w.mu.Unlock()
		return nil, nil
	})

	m.Bind("BanPlayer::FormatBanMessage", func(args []any) (any, error) {
		reason, _ := args[1].(string)
		return fmt.Sprintf("You have been banned. Reason: %s", reason), nil
	})
	m.Bind("BanPlayer::FormatKickMessage", func(args []any) (any, error) {
		reason, _ := args[0].(string)
		return fmt.Sprintf("You have been kicked. Reason: %s", reason), nil
	})
	m.Bind("BanHandler::IssueBan", func(args []any) (any, error) {
		issuer, _ := args[0].(*model.Player)
		target, err := player(args[1])
		if err != nil {
			return nil, err
		}
		duration, _ := toInt(args[2])
		reason, _ := args[3].(string)
		w.mu.Lock()
		w.bans = append(w.bans, Ban{Issuer: model.UserIDOf(issuer), Target: target.UserID, Duration: duration, Reason: reason})
		w.mu.Unlock()
		return nil, nil
	})
	m.Bind("ServerConsole::Disconnect", func(args []any) (any, error) {
		target, err := player(args[0])
		if err != nil {
			return nil, err
		}
		msg, _ := args[1].(string)
		w.mu.Lock()
		w.disconnects = append(w.disconnects, Disconnect{Target: target.UserID, Message: msg})
		w.mu.Unlock()
		return nil, nil
	})

	m.Bind("Scp079::CurrentSpeaker", func(args []any) (any, error) {
		p, err := player(args[0])
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		room, ok := w.speakers[p.ID]
		if !ok || room == "" {
			return nil, nil
		}
		return room, nil
	})
	m.Bind("Scp079::ReleaseSpeaker", func(args []any) (any, error) {
		p, err := player(args[0])
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		delete(w.speakers, p.ID)
		w.mu.Unlock()
		return nil, nil
	})

	m.Bind("Player::get_IsDead", func(args []any) (any, error) {
		p, err := player(args[0])
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		return p.Dead, nil
	})
	m.Bind("Scp049::Revive", func(args []any) (any, error) {
		target, err := player(args[0])
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		target.Dead = false
		w.revived = append(w.revived, target.ID)
		w.mu.Unlock()
		return nil, nil
	})

	m.Bind("PlayerStats::Heal", func(args []any) (any, error) {
		p, err := player(args[0])
		if err != nil {
			return nil, err
		}
		item, err := itemType(args[1])
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		w.heals = append(w.heals, Heal{Player: p.ID, Item: item})
		w.mu.Unlock()
		return nil, nil
	})
	m.Bind("PlayerStats::Kill", func(args []any) (any, error) {
		p, err := player(args[0])
		if err != nil {
			return nil, err
		}
		cause, _ := args[1].(string)
		w.mu.Lock()
		p.Dead = true
		w.deaths = append(w.deaths, Death{Player: p.ID, Cause: cause})
		w.mu.Unlock()
		return nil, nil
	})
	m.Bind("PocketDimension::Escape", func(args []any) (any, error) {
		p, err := player(args[0])
		if err != nil {
			return nil, err
		}
		w.mu.Lock()
		w.escaped = append(w.escaped, p.ID)
		w.mu.Unlock()
		return nil, nil
	})

	m.Bind("RespawnTickets::MaxWaveSize", func(args []any) (any, error) {
		team, err := teamOf(args[0])
		if err != nil {
			return nil, err
		}
		n, _ := w.MaximumRespawn(team)
		return n, nil
	})
	m.Bind("RespawnManager::Spectators", func([]any) (any, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		var dead []*model.Player
		for _, p := range w.players {
			if p.Dead {
				dead = append(dead, p)
			}
		}
		sortPlayers(dead)
		return dead, nil
	})
	m.Bind("RespawnManager::SpawnPlayers", func(args []any) (any, error) {
		team, err := teamOf(args[0])
		if err != nil {
			return nil, err
		}
		players, _ := args[1].([]*model.Player)
		limit, _ := toInt(args[2])
		w.mu.Lock()
		defer w.mu.Unlock()
		spawn := Spawn{Team: team}
		for _, p := range players {
			if len(spawn.Players) >= limit {
				break
			}
			p.Dead = false
			spawn.Players = append(spawn.Players, p.ID)
		}
		w.tickets[team] -= len(spawn.Players)
		w.spawns = append(w.spawns, spawn)
		return nil, nil
	})

	m.Bind("CheaterReport::Submit", func(args []any) (any, error) {
		issuer, err := player(args[0])
		if err != nil {
			return nil, err
		}
		target, err := player(args[1])
		if err != nil {
			return nil, err
		}
		reason, _ := args[2].(string)
		w.mu.Lock()
		w.reports = append(w.reports, Report{Issuer: issuer.UserID, Target: target.UserID, Reason: reason})
		w.mu.Unlock()
		return nil, nil
	})
}

func inventorySlot(args []any) (*Inventory, int, error) {
	inv, ok := args[0].(*Inventory)
	if !ok {
		return nil, 0, fmt.Errorf("want *Inventory, got %T", args[0])
	}
	slot, ok := toInt(args[1])
	if !ok || slot < 0 || slot >= len(inv.Items) {
		return nil, 0, fmt.Errorf("inventory slot %v out of range", args[1])
	}
	return inv, slot, nil
}

func player(v any) (*model.Player, error) {
	p, ok := v.(*model.Player)
	if !ok || p == nil {
		return nil, fmt.Errorf("want player, got %T", v)
	}
	return p, nil
}

// toInt accepts the host's int forms, including named integer types.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case model.Team:
		return int(x), true
	case model.Knob:
		return int(x), true
	case model.ItemType:
		return int(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func teamOf(v any) (model.Team, error) {
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("want team, got %T", v)
	}
	return model.Team(n), nil
}

func itemType(v any) (model.ItemType, error) {
	n, ok := toInt(v)
	if !ok {
		return 0, fmt.Errorf("want item type, got %T", v)
	}
	return model.ItemType(n), nil
}
