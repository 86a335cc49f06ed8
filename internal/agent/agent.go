package agent

import (
	"errors"
	"math/rand"
	"sort"

	"github.com/embergrid/skirmish-backend/internal/entity"
)

var ErrNoAvailableMoves = errors.New("no available moves")

// DecisionProvider supplies decisions for an automated party: interception
// choices mid-attack and whole turns when the bot party is active.
type DecisionProvider interface {
	ChooseInterceptor(state *entity.GameState, prompt entity.Interception) (string, bool)
	ChooseAction(state *entity.GameState, partyID string) (entity.Action, error)
}

type decisionProvider struct{}

func New() DecisionProvider {
	return &decisionProvider{}
}

// ChooseInterceptor intercepts with the healthiest candidate. Returns false
// to decline when no candidate survives the incoming hit.
func (that *decisionProvider) ChooseInterceptor(state *entity.GameState, prompt entity.Interception) (string, bool) {
	attacker, _, ok := state.FindUnit(prompt.AttackerUnitID)
	if !ok {
		return "", false
	}

	best := ""
	bestHealth := 0
	for _, candidate := range prompt.Candidates {
		unit, _, ok := state.FindUnit(candidate)
		if !ok {
			continue
		}
		if unit.Health > attacker.Attack && unit.Health > bestHealth {
			best = unit.ID
			bestHealth = unit.Health
		}
	}
	if best == "" {
		return "", false
	}

	return best, true
}

// ChooseAction picks the bot party's next request for the current phase.
func (that *decisionProvider) ChooseAction(state *entity.GameState, partyID string) (entity.Action, error) {
	party, err := state.Party(partyID)
	if err != nil {
		return nil, err
	}

	switch {
	case state.Phase.IsSimultaneous():
		return entity.AdvancePhaseAction{PartyID: partyID}, nil
	case state.Phase == entity.PhaseDeployment:
		return that.chooseDeployment(state, party)
	case state.Phase == entity.PhaseAction:
		return that.chooseCombat(state, party)
	default:
		return nil, ErrNoAvailableMoves
	}
}

func (that *decisionProvider) chooseDeployment(state *entity.GameState, party *entity.PartyState) (entity.Action, error) {
	occupied := map[int]bool{}
	for _, unit := range party.Board {
		occupied[unit.Slot] = true
	}

	var affordable []entity.Card
	for _, card := range party.Hand {
		if card.Cost <= party.Energy {
			affordable = append(affordable, card)
		}
	}
	if len(affordable) == 0 {
		return entity.PassAction{PartyID: party.ID}, nil
	}

	slot := -1
	for candidate := 0; candidate < 16; candidate++ {
		if !occupied[candidate] {
			slot = candidate
			break
		}
	}
	if slot < 0 {
		return entity.PassAction{PartyID: party.ID}, nil
	}

	card := affordable[rand.Intn(len(affordable))] //nolint: gosec // it's ok
	return entity.DeployAction{PartyID: party.ID, CardID: card.ID, Slot: slot}, nil
}

func (that *decisionProvider) chooseCombat(state *entity.GameState, party *entity.PartyState) (entity.Action, error) {
	if len(party.Board) == 0 {
		return entity.PassAction{PartyID: party.ID}, nil
	}

	opponent, err := state.Party(state.OpponentID(party.ID))
	if err != nil {
		return nil, err
	}

	attacker := party.Board[rand.Intn(len(party.Board))] //nolint: gosec // it's ok

	if len(opponent.Board) == 0 {
		return entity.AttackAction{PartyID: party.ID, AttackerID: attacker.ID}, nil
	}

	// prefer the weakest visible target
	targets := append([]entity.Unit(nil), opponent.Board...)
	sort.Slice(targets, func(i, j int) bool { return targets[i].Health < targets[j].Health })

	return entity.AttackAction{PartyID: party.ID, AttackerID: attacker.ID, TargetID: targets[0].ID}, nil
}
