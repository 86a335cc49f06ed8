package reconcile

import "github.com/embergrid/skirmish-backend/internal/entity"

// checkpointAllowLists maps each checkpoint phase to the authoritative
// phases considered valid companions: the authoritative side may have raced
// ahead through automatic sub-phases, so a checkpoint accepts broadcasts a
// bounded distance downstream. Anything else is deferred to prevent state
// regression.
var checkpointAllowLists = map[entity.Phase][]entity.Phase{
	entity.PhasePlacement: {
		entity.PhasePlacement,
		entity.PhaseInitialization,
		entity.PhaseFirstPlayer,
		entity.PhaseEnergyReset,
		entity.PhaseDraw,
		entity.PhaseDiscard,
	},
	entity.PhaseDiscard: {
		entity.PhaseDiscard,
		entity.PhaseShieldAllocation,
	},
	entity.PhaseShieldAllocation: {
		entity.PhaseShieldAllocation,
		entity.PhaseUnitLimit,
		entity.PhaseDeployment,
	},
	entity.PhaseRoundEnd: {
		entity.PhaseRoundEnd,
		entity.PhaseFirstPlayer,
		entity.PhaseEnergyReset,
		entity.PhaseDraw,
		entity.PhaseDiscard,
		entity.PhaseGameEnd,
	},
	entity.PhaseGameEnd: {
		entity.PhaseGameEnd,
	},
}

func phaseAllowed(allowed []entity.Phase, phase entity.Phase) bool {
	for _, candidate := range allowed {
		if candidate == phase {
			return true
		}
	}
	return false
}
