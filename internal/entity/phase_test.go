package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_CanTransitionTo(t *testing.T) {
	t.Run("Allows declared edges", func(t *testing.T) {
		// Given: the declared adjacency table
		// Then: each declared edge is legal
		assert.True(t, PhasePreGame.CanTransitionTo(PhaseFactionSelect))
		assert.True(t, PhaseAction.CanTransitionTo(PhaseRoundEnd))
		assert.True(t, PhaseAction.CanTransitionTo(PhaseGameEnd))
		assert.True(t, PhaseRoundEnd.CanTransitionTo(PhaseFirstPlayer))
	})

	t.Run("Rejects undeclared hops", func(t *testing.T) {
		assert.False(t, PhasePreGame.CanTransitionTo(PhaseAction))
		assert.False(t, PhaseAction.CanTransitionTo(PhaseDraw))
		assert.False(t, PhaseGameEnd.CanTransitionTo(PhasePreGame))
	})
}

func TestPhase_Classification(t *testing.T) {
	// Given: every declared phase
	for phase := range PhaseAdjacency {
		sequential := phase.IsSequential()
		simultaneous := phase.IsSimultaneous()
		automatic := phase.IsAutomatic()

		// Then: no phase belongs to more than one class
		count := 0
		for _, is := range []bool{sequential, simultaneous, automatic} {
			if is {
				count++
			}
		}
		assert.LessOrEqualf(t, count, 1, "phase %s has overlapping classes", phase)
	}

	assert.True(t, PhaseDeployment.IsSequential())
	assert.True(t, PhaseAction.IsSequential())
	assert.True(t, PhasePlacement.IsSimultaneous())
	assert.True(t, PhaseShieldAllocation.IsSimultaneous())
	assert.True(t, PhaseDraw.IsAutomatic())
	assert.True(t, PhasePreGame.IsPreGame())
}

func TestPhase_SequentialSuccessor(t *testing.T) {
	next, ok := PhaseDeployment.SequentialSuccessor()
	require.True(t, ok)
	assert.Equal(t, PhaseAction, next)

	next, ok = PhaseAction.SequentialSuccessor()
	require.True(t, ok)
	assert.Equal(t, PhaseRoundEnd, next)

	_, ok = PhaseDraw.SequentialSuccessor()
	assert.False(t, ok)
}

func TestPhase_SuccessorsAreDeclaredEdges(t *testing.T) {
	// Then: the sequential successors are themselves legal transitions
	for phase := range PhaseAdjacency {
		if next, ok := phase.SequentialSuccessor(); ok {
			assert.Truef(t, phase.CanTransitionTo(next), "successor of %s is not adjacent", phase)
		}
	}
}
