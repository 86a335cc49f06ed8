package entity

// Phase is a named stage of the session. Transitions are only legal along
// edges of the adjacency table below.
type Phase string

const (
	PhasePreGame          Phase = "pregame"
	PhaseFactionSelect    Phase = "faction_select"
	PhasePlacement        Phase = "placement"
	PhaseInitialization   Phase = "initialization"
	PhaseFirstPlayer      Phase = "first_player"
	PhaseEnergyReset      Phase = "energy_reset"
	PhaseDraw             Phase = "draw"
	PhaseDiscard          Phase = "discard"
	PhaseShieldAllocation Phase = "shield_allocation"
	PhaseUnitLimit        Phase = "unit_limit"
	PhaseDeployment       Phase = "deployment"
	PhaseAction           Phase = "action"
	PhaseRoundEnd         Phase = "round_end"
	PhaseGameEnd          Phase = "game_end"
)

// PhaseAdjacency declares the legal (from -> {to...}) transitions.
var PhaseAdjacency = map[Phase][]Phase{
	PhasePreGame:          {PhaseFactionSelect},
	PhaseFactionSelect:    {PhasePlacement},
	PhasePlacement:        {PhaseInitialization},
	PhaseInitialization:   {PhaseFirstPlayer},
	PhaseFirstPlayer:      {PhaseEnergyReset},
	PhaseEnergyReset:      {PhaseDraw},
	PhaseDraw:             {PhaseDiscard},
	PhaseDiscard:          {PhaseShieldAllocation},
	PhaseShieldAllocation: {PhaseUnitLimit},
	PhaseUnitLimit:        {PhaseDeployment},
	PhaseDeployment:       {PhaseAction},
	PhaseAction:           {PhaseRoundEnd, PhaseGameEnd},
	PhaseRoundEnd:         {PhaseFirstPlayer, PhaseGameEnd},
	PhaseGameEnd:          {},
}

// sequentialNext maps a sequential phase to the phase it advances to once
// both parties have passed.
var sequentialNext = map[Phase]Phase{
	PhaseDeployment: PhaseAction,
	PhaseAction:     PhaseRoundEnd,
}

func (that Phase) CanTransitionTo(next Phase) bool {
	for _, candidate := range PhaseAdjacency[that] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsSequential reports whether a single active party alternates under
// pass-tracking during this phase.
func (that Phase) IsSequential() bool {
	return that == PhaseDeployment || that == PhaseAction
}

// IsSimultaneous reports whether both parties commit independently before
// the phase advances.
func (that Phase) IsSimultaneous() bool {
	return that == PhasePlacement || that == PhaseDiscard || that == PhaseShieldAllocation
}

// IsAutomatic reports whether the phase resolves without external input.
func (that Phase) IsAutomatic() bool {
	switch that {
	case PhaseInitialization, PhaseFirstPlayer, PhaseEnergyReset, PhaseDraw, PhaseUnitLimit, PhaseRoundEnd:
		return true
	default:
		return false
	}
}

// IsPreGame reports whether the phase precedes the first checkpoint.
func (that Phase) IsPreGame() bool {
	return that == PhasePreGame || that == PhaseFactionSelect
}

// SequentialSuccessor returns the phase a sequential phase advances to when
// both parties pass.
func (that Phase) SequentialSuccessor() (Phase, bool) {
	next, ok := sequentialNext[that]
	return next, ok
}
