package eventargs

import "github.com/ppiankov/hostpatch/internal/model"

// StoppingSpeaker is raised before SCP-079 stops using a room speaker.
type StoppingSpeaker struct {
	Cancellable
	player *model.Player
	room   model.Room
}

func NewStoppingSpeaker(player *model.Player, room model.Room) *StoppingSpeaker {
	return &StoppingSpeaker{player: player, room: room}
}

func (e *StoppingSpeaker) Player() *model.Player { return e.player }
func (e *StoppingSpeaker) Room() model.Room      { return e.room }

// FinishingRecall is raised before SCP-049 revives a target.
type FinishingRecall struct {
	Cancellable
	target *model.Player
	scp049 *model.Player
}

func NewFinishingRecall(target, scp049 *model.Player) *FinishingRecall {
	return &FinishingRecall{target: target, scp049: scp049}
}

func (e *FinishingRecall) Target() *model.Player { return e.target }
func (e *FinishingRecall) Scp049() *model.Player { return e.scp049 }

// ChangingKnobSetting is raised before a player turns the SCP-914 knob.
type ChangingKnobSetting struct {
	Cancellable
	player *model.Player
	knob   model.Knob
}

func NewChangingKnobSetting(player *model.Player, knob model.Knob) *ChangingKnobSetting {
	e := &ChangingKnobSetting{player: player}
	e.SetKnobSetting(knob)
	return e
}

func (e *ChangingKnobSetting) Player() *model.Player   { return e.player }
func (e *ChangingKnobSetting) KnobSetting() model.Knob { return e.knob }

// SetKnobSetting stores k; anything past the last position wraps to the first.
func (e *ChangingKnobSetting) SetKnobSetting(k model.Knob) {
	if k > model.KnobMax {
		k = model.KnobMin
	}
	e.knob = k
}
