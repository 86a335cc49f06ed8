package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embergrid/skirmish-backend/internal/entity"
)

func botState() *entity.GameState {
	state := entity.NewGameState("party-a", "party-b")
	state.Phase = entity.PhaseAction
	state.Round = 1
	state.ActivePartyID = "party-b"

	state.Parties["party-a"].Board = []entity.Unit{
		{ID: "a1", Name: "Raider", Attack: 4, Health: 4, Slot: 0},
	}

	partyB := state.Parties["party-b"]
	partyB.Automated = true
	partyB.Energy = 3
	partyB.Board = []entity.Unit{
		{ID: "b1", Name: "Sentry", Attack: 2, Health: 5, Slot: 0},
	}

	return state
}

func TestDecisionProvider_ChooseInterceptor(t *testing.T) {
	provider := New()

	prompt := entity.Interception{
		AttackerPartyID: "party-a",
		DefenderPartyID: "party-b",
		AttackerUnitID:  "a1",
		TargetUnitID:    "b1",
		Candidates:      []string{"b2", "b3"},
	}

	t.Run("Picks the healthiest surviving candidate", func(t *testing.T) {
		// Given: b3 survives the incoming 4 damage, b2 does not
		state := botState()
		state.Parties["party-b"].Board = append(state.Parties["party-b"].Board,
			entity.Unit{ID: "b2", Attack: 1, Health: 3, Slot: 1, CanIntercept: true},
			entity.Unit{ID: "b3", Attack: 1, Health: 6, Slot: 2, CanIntercept: true},
		)

		interceptorID, accepted := provider.ChooseInterceptor(state, prompt)

		assert.True(t, accepted)
		assert.Equal(t, "b3", interceptorID)
	})

	t.Run("Declines when no candidate survives the hit", func(t *testing.T) {
		state := botState()
		state.Parties["party-b"].Board = append(state.Parties["party-b"].Board,
			entity.Unit{ID: "b2", Attack: 1, Health: 2, Slot: 1, CanIntercept: true},
			entity.Unit{ID: "b3", Attack: 1, Health: 4, Slot: 2, CanIntercept: true},
		)

		_, accepted := provider.ChooseInterceptor(state, prompt)

		assert.False(t, accepted)
	})
}

func TestDecisionProvider_ChooseAction(t *testing.T) {
	provider := New()

	t.Run("Commits simultaneous phases", func(t *testing.T) {
		state := botState()
		state.Phase = entity.PhaseDiscard

		action, err := provider.ChooseAction(state, "party-b")
		require.NoError(t, err)

		assert.Equal(t, entity.KindAdvancePhase, action.Kind())
	})

	t.Run("Deploys an affordable card into a free slot", func(t *testing.T) {
		state := botState()
		state.Phase = entity.PhaseDeployment
		state.Parties["party-b"].Hand = []entity.Card{
			{ID: "cheap", Cost: 2, Power: 2},
			{ID: "pricey", Cost: 9, Power: 9},
		}

		action, err := provider.ChooseAction(state, "party-b")
		require.NoError(t, err)

		deploy, ok := action.(entity.DeployAction)
		require.True(t, ok)
		assert.Equal(t, "cheap", deploy.CardID)
		assert.Equal(t, 1, deploy.Slot, "slot 0 is occupied")
	})

	t.Run("Passes deployment when nothing is affordable", func(t *testing.T) {
		state := botState()
		state.Phase = entity.PhaseDeployment
		state.Parties["party-b"].Hand = []entity.Card{{ID: "pricey", Cost: 9}}

		action, err := provider.ChooseAction(state, "party-b")
		require.NoError(t, err)

		assert.Equal(t, entity.KindPass, action.Kind())
	})

	t.Run("Attacks the weakest enemy unit", func(t *testing.T) {
		state := botState()
		state.Parties["party-a"].Board = append(state.Parties["party-a"].Board,
			entity.Unit{ID: "a2", Attack: 1, Health: 1, Slot: 1})

		action, err := provider.ChooseAction(state, "party-b")
		require.NoError(t, err)

		attack, ok := action.(entity.AttackAction)
		require.True(t, ok)
		assert.Equal(t, "b1", attack.AttackerID)
		assert.Equal(t, "a2", attack.TargetID)
	})

	t.Run("Strikes shields when the enemy board is empty", func(t *testing.T) {
		state := botState()
		state.Parties["party-a"].Board = nil

		action, err := provider.ChooseAction(state, "party-b")
		require.NoError(t, err)

		attack, ok := action.(entity.AttackAction)
		require.True(t, ok)
		assert.Empty(t, attack.TargetID)
	})

	t.Run("Passes combat with an empty board", func(t *testing.T) {
		state := botState()
		state.Parties["party-b"].Board = nil

		action, err := provider.ChooseAction(state, "party-b")
		require.NoError(t, err)

		assert.Equal(t, entity.KindPass, action.Kind())
	})

	t.Run("Reports when the phase offers no moves", func(t *testing.T) {
		state := botState()
		state.Phase = entity.PhaseRoundEnd

		_, err := provider.ChooseAction(state, "party-b")
		require.ErrorIs(t, err, ErrNoAvailableMoves)
	})
}
