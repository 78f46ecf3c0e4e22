// Package patches is the descriptor table for the game host: one entry per
// instrumented method, plus the carrier natives the inserted code calls.
package patches

import (
	"github.com/ppiankov/hostpatch/internal/handlers"
	"github.com/ppiankov/hostpatch/internal/il"
	"github.com/ppiankov/hostpatch/internal/patch"
)

// isAllowed is shared by every cancellable carrier.
var isAllowed = il.Ref("EventArgs::get_IsAllowed", 1)

func dispatch(kind string) il.MethodRef {
	return il.VoidRef(handlers.EntryPoint(kind), 1)
}

func ctor(carrier string, args int) il.MethodRef {
	return il.Ref(carrier+"::.ctor", args)
}

func get(carrier, prop string) il.MethodRef {
	return il.Ref(carrier+"::get_"+prop, 1)
}

func ldarg(n int) il.Instruction { return il.I(il.LdArg, n) }
func starg(n int) il.Instruction { return il.I(il.StArg, n) }
func ldloc(n int) il.Instruction { return il.I(il.LdLoc, n) }
func stloc(n int) il.Instruction { return il.I(il.StLoc, n) }

func code(ins ...il.Instruction) []il.Instruction { return ins }

// storeArg writes a carrier property back into argument n.
func storeArg(carrier, prop string, n int) patch.WriteBack {
	return patch.WriteBack{Get: get(carrier, prop), Store: code(starg(n))}
}

// storeLocal writes a carrier property back into local n.
func storeLocal(carrier, prop string, n int) patch.WriteBack {
	return patch.WriteBack{Get: get(carrier, prop), Store: code(stloc(n))}
}

const (
	changingDurability = "ChangingDurabilityEventArgs"
	kicking            = "KickingEventArgs"
	banning            = "BanningEventArgs"
	unlockingGenerator = "UnlockingGeneratorEventArgs"
	usedMedicalItem    = "UsedMedicalItemEventArgs"
	failingEscape      = "FailingEscapePocketDimensionEventArgs"
	stoppingSpeaker    = "StoppingSpeakerEventArgs"
	finishingRecall    = "FinishingRecallEventArgs"
	changingKnob       = "ChangingKnobSettingEventArgs"
	respawningTeam     = "RespawningTeamEventArgs"
	localReporting     = "LocalReportingEventArgs"
)

// Table returns the descriptors for every instrumented host method, in the
// order they are applied.
func Table() []patch.Descriptor {
	return []patch.Descriptor{
		{
			// The original write of the copied slot is replaced by storing
			// the carrier's NewItem.
			Name:        "ChangingDurability",
			Method:      "Inventory::ModifyDuration",
			Anchor:      patch.LastOpcode(il.LdLocA),
			Inputs:      code(ldloc(0), ldarg(2)),
			Carrier:     ctor(changingDurability, 2),
			CarrierType: changingDurability,
			Dispatch:    dispatch(handlers.ChangingDurability.Name()),
			Allowed:     isAllowed,
			WriteBack: []patch.WriteBack{{
				Prepare: code(ldarg(0), ldarg(1)),
				Get:     get(changingDurability, "NewItem"),
				Store:   code(il.I(il.Call, il.VoidRef("Inventory::set_Item", 3))),
			}},
			Mode: patch.Replace,
		},
		{
			Name:        "Banning",
			Method:      "BanPlayer::BanUser",
			Anchor:      patch.Offset(patch.FirstOpcode(il.StLoc), 1),
			Inputs:      code(ldarg(1), ldarg(0), ldarg(2), ldarg(3), ldloc(0)),
			Carrier:     ctor(banning, 5),
			CarrierType: banning,
			Dispatch:    dispatch(handlers.Banning.Name()),
			Allowed:     isAllowed,
			WriteBack: []patch.WriteBack{
				storeArg(banning, "Target", 1),
				storeArg(banning, "Issuer", 0),
				storeArg(banning, "Duration", 2),
				storeArg(banning, "Reason", 3),
				storeLocal(banning, "FullMessage", 0),
			},
		},
		{
			Name:        "Kicking",
			Method:      "BanPlayer::KickUser",
			Anchor:      patch.Offset(patch.FirstOpcode(il.StLoc), 1),
			Inputs:      code(ldarg(1), ldarg(0), ldarg(2), ldloc(0)),
			Carrier:     ctor(kicking, 4),
			CarrierType: kicking,
			Dispatch:    dispatch(handlers.Kicking.Name()),
			Allowed:     isAllowed,
			WriteBack: []patch.WriteBack{
				storeArg(kicking, "Target", 1),
				storeArg(kicking, "Issuer", 0),
				storeArg(kicking, "Reason", 2),
				storeLocal(kicking, "FullMessage", 0),
			},
		},
		{
			Name:        "UnlockingGenerator",
			Method:      "Generator079::Unlock",
			Anchor:      patch.FirstOpcode(il.StFld),
			Inputs:      code(ldarg(1), ldarg(0)),
			Carrier:     ctor(unlockingGenerator, 2),
			CarrierType: unlockingGenerator,
			Dispatch:    dispatch(handlers.UnlockingGenerator.Name()),
			Allowed:     isAllowed,
		},
		{
			Name:        "StoppingSpeaker",
			Method:      "Scp079PlayerScript::StopSpeaker",
			Anchor:      patch.CallTo("Scp079::ReleaseSpeaker"),
			Inputs:      code(ldarg(0), ldloc(0)),
			Carrier:     ctor(stoppingSpeaker, 2),
			CarrierType: stoppingSpeaker,
			Dispatch:    dispatch(handlers.StoppingSpeaker.Name()),
			Allowed:     isAllowed,
		},
		{
			// Two instructions before Revive is the start of the revive
			// branch; a denied recall returns false.
			Name:        "FinishingRecall",
			Method:      "Scp049PlayerScript::RecallPlayer",
			Anchor:      patch.Offset(patch.CallTo("Scp049::Revive"), -2),
			Inputs:      code(ldarg(1), ldarg(0)),
			Carrier:     ctor(finishingRecall, 2),
			CarrierType: finishingRecall,
			Dispatch:    dispatch(handlers.FinishingRecall.Name()),
			Allowed:     isAllowed,
			Deny:        code(il.I(il.LdcI4, 0)),
		},
		{
			Name:   "ChangingKnobSetting",
			Method: "Scp914Machine::ChangeKnobStatus",
			Anchor: patch.Entry(),
			Inputs: code(
				ldarg(1),
				ldarg(0),
				il.I(il.LdFld, "knobState"),
				il.I(il.LdcI4, 1),
				il.I(il.Add),
			),
			Carrier:     ctor(changingKnob, 2),
			CarrierType: changingKnob,
			Dispatch:    dispatch(handlers.ChangingKnobSetting.Name()),
			Allowed:     isAllowed,
			WriteBack: []patch.WriteBack{{
				Prepare: code(ldarg(0)),
				Get:     get(changingKnob, "KnobSetting"),
				Store:   code(il.I(il.StFld, "knobState")),
			}},
			Mode: patch.Replace,
		},
		{
			Name:        "MedicalItemUsed",
			Method:      "Consumable::UseMedicalItem",
			Anchor:      patch.Return(),
			Inputs:      code(ldarg(0), ldarg(1)),
			Carrier:     ctor(usedMedicalItem, 2),
			CarrierType: usedMedicalItem,
			Dispatch:    dispatch(handlers.MedicalItemUsed.Name()),
		},
		{
			Name:        "RespawningTeam",
			Method:      "RespawnManager::Spawn",
			Anchor:      patch.Offset(patch.LastOpcode(il.StLoc), 1),
			Inputs:      code(ldloc(1), ldarg(0)),
			Carrier:     ctor(respawningTeam, 2),
			CarrierType: respawningTeam,
			Dispatch:    dispatch(handlers.RespawningTeam.Name()),
			Allowed:     isAllowed,
			WriteBack: []patch.WriteBack{
				storeArg(respawningTeam, "NextKnownTeam", 0),
				storeLocal(respawningTeam, "MaximumRespawnAmount", 0),
			},
		},
		{
			Name:        "LocalReporting",
			Method:      "CheaterReport::IssueReport",
			Anchor:      patch.Entry(),
			Inputs:      code(ldarg(0), ldarg(1), ldarg(2)),
			Carrier:     ctor(localReporting, 3),
			CarrierType: localReporting,
			Dispatch:    dispatch(handlers.LocalReporting.Name()),
			Allowed:     isAllowed,
			WriteBack: []patch.WriteBack{
				storeArg(localReporting, "Reason", 2),
			},
		},
		{
			Name:        "FailingEscapePocketDimension",
			Method:      "PocketDimensionTeleport::OnTriggerEnter",
			Anchor:      patch.CallTo("PlayerStats::Kill"),
			Inputs:      code(ldarg(1), ldarg(0)),
			Carrier:     ctor(failingEscape, 2),
			CarrierType: failingEscape,
			Dispatch:    dispatch(handlers.FailingEscapePocketDimension.Name()),
			Allowed:     isAllowed,
		},
	}
}
