package entity

// Timing classifies when an animation may play relative to the snapshot swap.
type Timing string

const (
	// TimingPreState events reference soon-to-be-removed entities and must
	// visually resolve before the snapshot swap.
	TimingPreState Timing = "pre_state"
	// TimingPostState events play after the swap.
	TimingPostState Timing = "post_state"
	// TimingIndependent events carry no ordering constraint.
	TimingIndependent Timing = "independent"
)

const (
	AnimMineDestroyed    = "mine_destroyed"
	AnimUnitDestroyed    = "unit_destroyed"
	AnimAttackDamage     = "attack_damage"
	AnimShieldHit        = "shield_hit"
	AnimIntercept        = "intercept"
	AnimUnitDeploy       = "unit_deploy"
	AnimUnitDeployReveal = "unit_deploy_reveal"
	AnimUnitMove         = "unit_move"
	AnimCardDiscard      = "card_discard"
	AnimCardDraw         = "card_draw"
	AnimEnergyGain       = "energy_gain"
	AnimShieldGain       = "shield_gain"
	AnimAbility          = "ability"
)

// animationTimings is the static lookup the processor tags events with.
var animationTimings = map[string]Timing{
	AnimMineDestroyed:    TimingPreState,
	AnimUnitDestroyed:    TimingPreState,
	AnimAttackDamage:     TimingPostState,
	AnimShieldHit:        TimingPostState,
	AnimIntercept:        TimingPostState,
	AnimUnitDeploy:       TimingPostState,
	AnimUnitDeployReveal: TimingPostState,
	AnimUnitMove:         TimingPostState,
	AnimCardDiscard:      TimingPostState,
	AnimCardDraw:         TimingIndependent,
	AnimEnergyGain:       TimingIndependent,
	AnimShieldGain:       TimingIndependent,
	AnimAbility:          TimingPostState,
}

// TimingFor returns the timing classification for an animation name.
// Unknown names are treated as independent.
func TimingFor(name string) Timing {
	if timing, ok := animationTimings[name]; ok {
		return timing
	}
	return TimingIndependent
}

// AnimationEvent is a declarative playback descriptor produced per action.
type AnimationEvent struct {
	Name    string `json:"name"`
	Timing  Timing `json:"timing"`
	PartyID string `json:"party_id,omitempty"`
	UnitID  string `json:"unit_id,omitempty"`
	CardID  string `json:"card_id,omitempty"`
	Amount  int    `json:"amount,omitempty"`
}

// Key identifies an event for optimistic deduplication: a locally-predicted
// event with the same key accounts for the broadcast one.
func (that AnimationEvent) Key() string {
	return that.Name + "/" + that.PartyID + "/" + that.UnitID + "/" + that.CardID
}

// IsReveal reports whether the event requires the suppressed-then-revealed
// two-variant application.
func (that AnimationEvent) IsReveal() bool {
	return that.Name == AnimUnitDeployReveal
}
