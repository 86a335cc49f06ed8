package rules

import (
	"fmt"
	"sort"

	"github.com/embergrid/skirmish-backend/internal/apperror"
	"github.com/embergrid/skirmish-backend/internal/entity"
)

// RunCascade resolves consecutive automatic phases until the session reaches
// a phase that needs external input (a simultaneous commit or a sequential
// turn). Both sides run the same cascade so a replica reaches the next
// checkpoint independently of the authoritative timeline.
func RunCascade(state *entity.GameState, layout Layout) (Resolution, error) {
	next := state.Clone()
	var anims []entity.AnimationEvent

	// a completed simultaneous phase enters the cascade through its successor
	if next.Phase.IsSimultaneous() && next.CommitmentsComplete(next.Phase) {
		if successors := entity.PhaseAdjacency[next.Phase]; len(successors) > 0 {
			next.Phase = successors[0]
		}
	}

	for next.Phase.IsAutomatic() {
		phase := next.Phase

		var err error
		var produced []entity.AnimationEvent
		switch phase {
		case entity.PhaseInitialization:
			produced = resolveInitialization(next, layout)
		case entity.PhaseFirstPlayer:
			resolveFirstPlayer(next)
		case entity.PhaseEnergyReset:
			produced = resolveEnergyReset(next, layout)
		case entity.PhaseDraw:
			produced = resolveDraw(next, layout)
		case entity.PhaseUnitLimit:
			produced = resolveUnitLimit(next, layout)
		case entity.PhaseRoundEnd:
			err = resolveRoundEnd(next)
		default:
			return Resolution{}, fmt.Errorf("%w: automatic phase %s", apperror.ErrUnknownAction, phase)
		}
		if err != nil {
			return Resolution{}, err
		}
		anims = append(anims, produced...)

		if next.Phase == entity.PhaseGameEnd {
			break
		}
		if next.Phase == phase {
			successors := entity.PhaseAdjacency[phase]
			if len(successors) == 0 {
				break
			}
			next.Phase = successors[0]
		}
	}

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolveRoundStart is the explicit round-start request: it enters the
// round-end cascade that rolls the session into the next round.
func ResolveRoundStart(details entity.StartRoundAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if state.Phase != entity.PhaseRoundEnd {
		return Resolution{}, apperror.NewValidation("round cannot start during %s", state.Phase)
	}
	return RunCascade(state, layout)
}

// ResolveFirstPlayer determines the first player outside the cascade, for
// the explicit first-player request.
func ResolveFirstPlayer(details entity.FirstPlayerAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if state.Phase != entity.PhaseFirstPlayer {
		return Resolution{}, apperror.NewValidation("first player cannot be determined during %s", state.Phase)
	}

	next := state.Clone()
	resolveFirstPlayer(next)

	return Resolution{Steps: []Step{{State: next}}}, nil
}

func resolveInitialization(state *entity.GameState, layout Layout) []entity.AnimationEvent {
	var anims []entity.AnimationEvent
	for partyID, party := range state.Parties {
		party.Energy = layout.StartingEnergy
		party.MaxEnergy = layout.StartingEnergy
		anims = append(anims, drawCards(state, partyID, layout.InitialHandSize)...)
	}
	state.AppendLog("session initialized")
	return anims
}

// resolveFirstPlayer is deterministic: parties alternate going first,
// anchored on the sorted party identifiers.
func resolveFirstPlayer(state *entity.GameState) {
	ids := make([]string, 0, len(state.Parties))
	for partyID := range state.Parties {
		ids = append(ids, partyID)
	}
	sort.Strings(ids)

	state.Round++
	state.ActivePartyID = ids[(state.Round-1)%len(ids)]
	state.AppendLog(fmt.Sprintf("round %d: party %s goes first", state.Round, state.ActivePartyID))
}

func resolveEnergyReset(state *entity.GameState, layout Layout) []entity.AnimationEvent {
	var anims []entity.AnimationEvent
	for partyID, party := range state.Parties {
		if party.MaxEnergy+layout.EnergyPerRound <= layout.EnergyCap {
			party.MaxEnergy += layout.EnergyPerRound
		}
		gained := party.MaxEnergy - party.Energy
		party.Energy = party.MaxEnergy
		anims = append(anims, entity.AnimationEvent{Name: entity.AnimEnergyGain, PartyID: partyID, Amount: gained})
	}
	return anims
}

func resolveDraw(state *entity.GameState, layout Layout) []entity.AnimationEvent {
	var anims []entity.AnimationEvent
	for partyID := range state.Parties {
		anims = append(anims, drawCards(state, partyID, layout.CardsPerDraw)...)
	}
	return anims
}

func drawCards(state *entity.GameState, partyID string, count int) []entity.AnimationEvent {
	party := state.Parties[partyID]
	var anims []entity.AnimationEvent
	for i := 0; i < count && len(party.Deck) > 0; i++ {
		card := party.Deck[0]
		party.Deck = party.Deck[1:]
		party.Hand = append(party.Hand, card)
		anims = append(anims, entity.AnimationEvent{Name: entity.AnimCardDraw, PartyID: partyID, CardID: card.ID})
	}
	return anims
}

// resolveUnitLimit destroys excess units beyond the layout limit, highest
// slots first.
func resolveUnitLimit(state *entity.GameState, layout Layout) []entity.AnimationEvent {
	var anims []entity.AnimationEvent
	for partyID, party := range state.Parties {
		if len(party.Board) <= layout.UnitLimit {
			continue
		}
		sort.Slice(party.Board, func(i, j int) bool { return party.Board[i].Slot < party.Board[j].Slot })
		for _, unit := range party.Board[layout.UnitLimit:] {
			anims = append(anims, entity.AnimationEvent{Name: entity.AnimUnitDestroyed, PartyID: partyID, UnitID: unit.ID})
			party.DiscardPile = append(party.DiscardPile, entity.Card{ID: unit.CardID, Name: unit.Name, Power: unit.Attack})
		}
		party.Board = party.Board[:layout.UnitLimit]
	}
	return anims
}

func resolveRoundEnd(state *entity.GameState) error {
	state.ResetPasses()
	delete(state.Commitments, entity.PhaseDiscard)
	delete(state.Commitments, entity.PhaseShieldAllocation)

	for partyID, party := range state.Parties {
		if len(party.Shields) == 0 && len(party.Board) == 0 && len(party.Deck) == 0 {
			state.Winner = state.OpponentID(partyID)
			state.Phase = entity.PhaseGameEnd
			state.AppendLog(fmt.Sprintf("party %s wins", state.Winner))
			return nil
		}
	}

	state.AppendLog(fmt.Sprintf("round %d ended", state.Round))
	state.Phase = entity.PhaseFirstPlayer
	return nil
}
