// Package rules is the deterministic rule engine: pure functions from
// (action details, current state, layout) to (new state, animation events,
// log entries). Nothing here touches a store or performs IO.
package rules

import (
	"fmt"
	"sort"

	"github.com/embergrid/skirmish-backend/internal/apperror"
	"github.com/embergrid/skirmish-backend/internal/entity"
)

// Step is one {state, animation-batch} element of an ordered execution
// pipeline. Multi-step resolutions guarantee an entity visually disappears
// before any later animation assumes it is gone.
type Step struct {
	State      *entity.GameState
	Animations []entity.AnimationEvent
}

// Resolution is the outcome of resolving one action. Either Steps is
// populated, or NeedsInterception is set and the state was left untouched.
type Resolution struct {
	Steps             []Step
	NeedsInterception *entity.Interception
}

func (that Resolution) FinalState() *entity.GameState {
	if len(that.Steps) == 0 {
		return nil
	}
	return that.Steps[len(that.Steps)-1].State
}

// ResolveAttack resolves an attack by one unit against an enemy unit, or
// against the enemy shields when TargetID is empty. If the defender has
// valid interceptors the attack is paused: the returned resolution carries
// the interception prompt and no state change.
func ResolveAttack(details entity.AttackAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if err := requireSequentialTurn(state, details.PartyID, entity.PhaseAction); err != nil {
		return Resolution{}, err
	}
	if state.PendingInterception != nil {
		return Resolution{}, apperror.NewValidation("an interception decision is already pending")
	}

	next := state.Clone()

	attacker, attackerParty, ok := next.FindUnit(details.AttackerID)
	if !ok || attackerParty != details.PartyID {
		return Resolution{}, fmt.Errorf("%w: attacker %s", apperror.ErrUnitNotFound, details.AttackerID)
	}

	defenderID := next.OpponentID(details.PartyID)

	if details.TargetID == "" {
		return resolveShieldStrike(next, details, attacker, defenderID)
	}

	target, targetParty, ok := next.FindUnit(details.TargetID)
	if !ok || targetParty != defenderID {
		return Resolution{}, fmt.Errorf("%w: target %s", apperror.ErrUnitNotFound, details.TargetID)
	}

	candidates := interceptorCandidates(next, defenderID, target.ID)
	if len(candidates) > 0 {
		return Resolution{NeedsInterception: &entity.Interception{
			AttackerPartyID: details.PartyID,
			DefenderPartyID: defenderID,
			AttackerUnitID:  details.AttackerID,
			TargetUnitID:    details.TargetID,
			Candidates:      candidates,
		}}, nil
	}

	return resolveStrike(next, details.PartyID, details.AttackerID, details.TargetID, nil)
}

// ResolveInterceptDecision resumes the attack recorded in the pending
// interception: either against the chosen interceptor or, when declined,
// against the original target.
func ResolveInterceptDecision(details entity.InterceptDecisionAction, state *entity.GameState, layout Layout) (Resolution, error) {
	pending := state.PendingInterception
	if pending == nil {
		return Resolution{}, apperror.ErrNoPendingChoice
	}
	if details.PartyID != pending.DefenderPartyID {
		return Resolution{}, apperror.NewValidation("only the defending party may decide the interception")
	}

	next := state.Clone()
	next.PendingInterception = nil

	if details.Declined {
		return resolveStrike(next, pending.AttackerPartyID, pending.AttackerUnitID, pending.TargetUnitID, nil)
	}

	valid := false
	for _, candidate := range pending.Candidates {
		if candidate == details.InterceptorID {
			valid = true
			break
		}
	}
	if !valid {
		return Resolution{}, apperror.NewValidation("unit %s cannot intercept this attack", details.InterceptorID)
	}

	interceptAnim := []entity.AnimationEvent{{
		Name:    entity.AnimIntercept,
		PartyID: pending.DefenderPartyID,
		UnitID:  details.InterceptorID,
	}}

	return resolveStrike(next, pending.AttackerPartyID, pending.AttackerUnitID, details.InterceptorID, interceptAnim)
}

// resolveStrike applies the mutual-damage exchange. When the target slot is
// mined the resolution is two-phase: an intermediate state removing only the
// mine, then the final state carrying the damage.
func resolveStrike(next *entity.GameState, attackerPartyID, attackerID, targetID string, leadAnims []entity.AnimationEvent) (Resolution, error) {
	var steps []Step

	attacker, _, ok := next.FindUnit(attackerID)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: attacker %s", apperror.ErrUnitNotFound, attackerID)
	}
	target, targetPartyID, ok := next.FindUnit(targetID)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: target %s", apperror.ErrUnitNotFound, targetID)
	}

	if mine, ok := mineAt(next, targetPartyID, target.Slot); ok {
		intermediate := next.Clone()
		removeUnit(intermediate, targetPartyID, mine.ID)
		steps = append(steps, Step{
			State: intermediate,
			Animations: append(leadAnims, entity.AnimationEvent{
				Name:    entity.AnimMineDestroyed,
				PartyID: targetPartyID,
				UnitID:  mine.ID,
			}),
		})
		leadAnims = nil

		next = intermediate.Clone()
		attacker, _, _ = next.FindUnit(attackerID)
		target, _, _ = next.FindUnit(targetID)
	}

	anims := append(leadAnims,
		entity.AnimationEvent{Name: entity.AnimAttackDamage, PartyID: targetPartyID, UnitID: target.ID, Amount: attacker.Attack},
		entity.AnimationEvent{Name: entity.AnimAttackDamage, PartyID: attackerPartyID, UnitID: attacker.ID, Amount: target.Attack},
	)

	target.Health -= attacker.Attack
	attacker.Health -= target.Attack

	anims = append(anims, reapDead(next)...)
	next.AppendLog(fmt.Sprintf("unit %s attacked %s", attackerID, targetID))
	yieldTurn(next, attackerPartyID)

	steps = append(steps, Step{State: next, Animations: anims})

	return Resolution{Steps: steps}, nil
}

func resolveShieldStrike(next *entity.GameState, details entity.AttackAction, attacker *entity.Unit, defenderID string) (Resolution, error) {
	defender, err := next.Party(defenderID)
	if err != nil {
		return Resolution{}, err
	}
	if len(defender.Board) > 0 {
		return Resolution{}, apperror.NewValidation("cannot strike shields while defending units remain")
	}

	anims := []entity.AnimationEvent{{
		Name:    entity.AnimShieldHit,
		PartyID: defenderID,
		UnitID:  attacker.ID,
		Amount:  1,
	}}

	if len(defender.Shields) > 0 {
		defender.Shields = defender.Shields[:len(defender.Shields)-1]
	}
	if len(defender.Shields) == 0 {
		next.Winner = details.PartyID
		next.Phase = entity.PhaseGameEnd
	}

	next.AppendLog(fmt.Sprintf("party %s struck the shields of %s", details.PartyID, defenderID))
	yieldTurn(next, details.PartyID)

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolveMove relocates a unit to an empty slot.
func ResolveMove(details entity.MoveAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if err := requireSequentialTurn(state, details.PartyID, entity.PhaseAction); err != nil {
		return Resolution{}, err
	}

	next := state.Clone()
	unit, partyID, ok := next.FindUnit(details.UnitID)
	if !ok || partyID != details.PartyID {
		return Resolution{}, fmt.Errorf("%w: %s", apperror.ErrUnitNotFound, details.UnitID)
	}
	if details.ToSlot < 0 || details.ToSlot >= layout.BoardSlots {
		return Resolution{}, apperror.NewValidation("slot %d is outside the board", details.ToSlot)
	}
	party, _ := next.Party(details.PartyID)
	for _, other := range party.Board {
		if other.Slot == details.ToSlot && other.ID != unit.ID {
			return Resolution{}, apperror.NewValidation("slot %d is occupied", details.ToSlot)
		}
	}

	unit.Slot = details.ToSlot
	next.AppendLog(fmt.Sprintf("unit %s moved to slot %d", unit.ID, details.ToSlot))
	yieldTurn(next, details.PartyID)

	anims := []entity.AnimationEvent{{Name: entity.AnimUnitMove, PartyID: details.PartyID, UnitID: unit.ID, Amount: details.ToSlot}}

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolveAbility activates a unit ability. The only built-in ability is
// "repair", restoring 2 health to the target.
func ResolveAbility(details entity.AbilityAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if err := requireSequentialTurn(state, details.PartyID, entity.PhaseAction); err != nil {
		return Resolution{}, err
	}

	next := state.Clone()
	if _, partyID, ok := next.FindUnit(details.UnitID); !ok || partyID != details.PartyID {
		return Resolution{}, fmt.Errorf("%w: %s", apperror.ErrUnitNotFound, details.UnitID)
	}

	if details.Ability != "repair" {
		return Resolution{}, apperror.NewValidation("unknown ability %q", details.Ability)
	}

	target, _, ok := next.FindUnit(details.TargetID)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: target %s", apperror.ErrUnitNotFound, details.TargetID)
	}

	target.Health += 2
	next.AppendLog(fmt.Sprintf("unit %s repaired %s", details.UnitID, details.TargetID))
	yieldTurn(next, details.PartyID)

	anims := []entity.AnimationEvent{{Name: entity.AnimAbility, PartyID: details.PartyID, UnitID: details.UnitID, Amount: 2}}

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolveDeploy plays a card from hand onto the board. A concealed deploy
// produces the entry-reveal animation instead of the plain one.
func ResolveDeploy(details entity.DeployAction, state *entity.GameState, layout Layout) (Resolution, error) {
	phase := entity.PhaseDeployment
	if state.Phase == entity.PhasePlacement {
		phase = entity.PhasePlacement
	}
	if state.Phase != phase {
		return Resolution{}, apperror.NewValidation("cannot deploy during %s", state.Phase)
	}
	if phase == entity.PhaseDeployment {
		if err := requireSequentialTurn(state, details.PartyID, entity.PhaseDeployment); err != nil {
			return Resolution{}, err
		}
	}

	next := state.Clone()
	party, err := next.Party(details.PartyID)
	if err != nil {
		return Resolution{}, err
	}

	card, ok := takeCard(&party.Hand, details.CardID)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", apperror.ErrCardNotFound, details.CardID)
	}
	if card.Cost > party.Energy {
		return Resolution{}, apperror.NewValidation("not enough energy for %s: need %d, have %d", card.Name, card.Cost, party.Energy)
	}
	if len(party.Board) >= layout.UnitLimit {
		return Resolution{}, apperror.NewValidation("unit limit of %d reached", layout.UnitLimit)
	}
	if details.Slot < 0 || details.Slot >= layout.BoardSlots {
		return Resolution{}, apperror.NewValidation("slot %d is outside the board", details.Slot)
	}
	for _, other := range party.Board {
		if other.Slot == details.Slot {
			return Resolution{}, apperror.NewValidation("slot %d is occupied", details.Slot)
		}
	}

	party.Energy -= card.Cost
	unit := entity.Unit{
		ID:     "u:" + card.ID,
		CardID: card.ID,
		Name:   card.Name,
		Attack: card.Power,
		Health: card.Power,
		Slot:   details.Slot,
	}
	party.Board = append(party.Board, unit)

	animName := entity.AnimUnitDeploy
	if details.Concealed {
		animName = entity.AnimUnitDeployReveal
	}
	anims := []entity.AnimationEvent{{Name: animName, PartyID: details.PartyID, UnitID: unit.ID, CardID: card.ID}}

	next.AppendLog(fmt.Sprintf("party %s deployed %s", details.PartyID, card.Name))
	if phase == entity.PhaseDeployment {
		yieldTurn(next, details.PartyID)
	}

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolveDiscard moves cards from hand to the discard pile during the
// simultaneous discard phase.
func ResolveDiscard(details entity.DiscardAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if state.Phase != entity.PhaseDiscard {
		return Resolution{}, apperror.NewValidation("cannot discard during %s", state.Phase)
	}

	next := state.Clone()
	party, err := next.Party(details.PartyID)
	if err != nil {
		return Resolution{}, err
	}

	var anims []entity.AnimationEvent
	for _, cardID := range details.CardIDs {
		card, ok := takeCard(&party.Hand, cardID)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: %s", apperror.ErrCardNotFound, cardID)
		}
		party.DiscardPile = append(party.DiscardPile, card)
		anims = append(anims, entity.AnimationEvent{Name: entity.AnimCardDiscard, PartyID: details.PartyID, CardID: cardID})
	}

	next.AppendLog(fmt.Sprintf("party %s discarded %d cards", details.PartyID, len(details.CardIDs)))

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolveShield allocates hand cards as shields during the simultaneous
// shield allocation phase.
func ResolveShield(details entity.ShieldAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if state.Phase != entity.PhaseShieldAllocation {
		return Resolution{}, apperror.NewValidation("cannot allocate shields during %s", state.Phase)
	}

	next := state.Clone()
	party, err := next.Party(details.PartyID)
	if err != nil {
		return Resolution{}, err
	}
	if len(party.Shields)+len(details.CardIDs) > layout.ShieldLimit {
		return Resolution{}, apperror.NewValidation("shield limit of %d exceeded", layout.ShieldLimit)
	}

	var anims []entity.AnimationEvent
	for _, cardID := range details.CardIDs {
		card, ok := takeCard(&party.Hand, cardID)
		if !ok {
			return Resolution{}, fmt.Errorf("%w: %s", apperror.ErrCardNotFound, cardID)
		}
		party.Shields = append(party.Shields, card)
		anims = append(anims, entity.AnimationEvent{Name: entity.AnimShieldGain, PartyID: details.PartyID, CardID: cardID})
	}

	next.AppendLog(fmt.Sprintf("party %s allocated %d shields", details.PartyID, len(details.CardIDs)))

	return Resolution{Steps: []Step{{State: next, Animations: anims}}}, nil
}

// ResolvePass records a pass in a sequential phase. Passing while the other
// party has not yields the turn; both parties passing advances the phase.
func ResolvePass(details entity.PassAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if !state.Phase.IsSequential() {
		return Resolution{}, apperror.NewValidation("cannot pass during %s", state.Phase)
	}
	if _, err := state.Party(details.PartyID); err != nil {
		return Resolution{}, err
	}

	next := state.Clone()
	next.Passes[details.PartyID] = true
	next.AppendLog(fmt.Sprintf("party %s passed", details.PartyID))

	if next.BothPassed() {
		successor, ok := next.Phase.SequentialSuccessor()
		if !ok {
			return Resolution{}, apperror.NewValidation("phase %s has no successor", next.Phase)
		}
		next.Phase = successor
		next.ResetPasses()
	} else {
		next.ActivePartyID = next.OpponentID(details.PartyID)
	}

	return Resolution{Steps: []Step{{State: next}}}, nil
}

// ResolveCommit records a party's completion of a simultaneous phase and
// advances the phase once both parties committed.
func ResolveCommit(details entity.AdvancePhaseAction, state *entity.GameState, layout Layout) (Resolution, error) {
	if !state.Phase.IsSimultaneous() {
		return Resolution{}, apperror.NewValidation("phase %s takes no commitments", state.Phase)
	}
	if _, err := state.Party(details.PartyID); err != nil {
		return Resolution{}, err
	}

	next := state.Clone()
	next.Commit(next.Phase, details.PartyID)
	next.AppendLog(fmt.Sprintf("party %s committed %s", details.PartyID, next.Phase))

	if next.CommitmentsComplete(next.Phase) {
		successors := entity.PhaseAdjacency[next.Phase]
		if len(successors) > 0 {
			next.Phase = successors[0]
		}
	}

	return Resolution{Steps: []Step{{State: next}}}, nil
}

func requireSequentialTurn(state *entity.GameState, partyID string, phase entity.Phase) error {
	if state.Phase != phase {
		return apperror.NewValidation("action not legal during %s", state.Phase)
	}
	if _, err := state.Party(partyID); err != nil {
		return err
	}
	if state.ActivePartyID != partyID {
		return apperror.NewValidation("it is not party %s's turn", partyID)
	}
	return nil
}

// yieldTurn hands the turn to the opponent unless the opponent has passed.
func yieldTurn(state *entity.GameState, actingPartyID string) {
	opponent := state.OpponentID(actingPartyID)
	if !state.Passes[opponent] {
		state.ActivePartyID = opponent
	}
}

func interceptorCandidates(state *entity.GameState, defenderID, targetID string) []string {
	defender, err := state.Party(defenderID)
	if err != nil {
		return nil
	}
	var candidates []string
	for _, unit := range defender.Board {
		if unit.CanIntercept && unit.ID != targetID && unit.Health > 0 {
			candidates = append(candidates, unit.ID)
		}
	}
	sort.Strings(candidates)
	return candidates
}

func mineAt(state *entity.GameState, partyID string, slot int) (*entity.Unit, bool) {
	party, err := state.Party(partyID)
	if err != nil {
		return nil, false
	}
	for i := range party.Board {
		if party.Board[i].Trait == entity.TraitMine && party.Board[i].Slot == slot {
			return &party.Board[i], true
		}
	}
	return nil, false
}

func removeUnit(state *entity.GameState, partyID, unitID string) {
	party, err := state.Party(partyID)
	if err != nil {
		return
	}
	for i := range party.Board {
		if party.Board[i].ID == unitID {
			party.Board = append(party.Board[:i], party.Board[i+1:]...)
			return
		}
	}
}

// reapDead removes units at zero health and emits their destruction events.
func reapDead(state *entity.GameState) []entity.AnimationEvent {
	var anims []entity.AnimationEvent
	for partyID, party := range state.Parties {
		kept := party.Board[:0]
		for _, unit := range party.Board {
			if unit.Health > 0 {
				kept = append(kept, unit)
				continue
			}
			anims = append(anims, entity.AnimationEvent{Name: entity.AnimUnitDestroyed, PartyID: partyID, UnitID: unit.ID})
		}
		party.Board = kept
	}
	return anims
}

func takeCard(hand *[]entity.Card, cardID string) (entity.Card, bool) {
	for i, card := range *hand {
		if card.ID == cardID {
			*hand = append((*hand)[:i], (*hand)[i+1:]...)
			return card, true
		}
	}
	return entity.Card{}, false
}
