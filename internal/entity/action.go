package entity

// ActionKind tags the closed set of request variants.
type ActionKind string

const (
	KindAttack            ActionKind = "attack"
	KindMove              ActionKind = "move"
	KindAbility           ActionKind = "ability"
	KindDeploy            ActionKind = "deploy"
	KindDiscard           ActionKind = "discard"
	KindShield            ActionKind = "shield"
	KindPass              ActionKind = "pass"
	KindAdvancePhase      ActionKind = "advance_phase"
	KindStartRound        ActionKind = "start_round"
	KindFirstPlayer       ActionKind = "first_player"
	KindBotTurn           ActionKind = "bot_turn"
	KindInterceptDecision ActionKind = "intercept_decision"
)

// Action is a request consumed exactly once by the action queue. The closed
// set of implementations below is matched exhaustively by the processor.
type Action interface {
	Kind() ActionKind
}

type AttackAction struct {
	PartyID    string
	AttackerID string
	TargetID   string
}

func (AttackAction) Kind() ActionKind { return KindAttack }

type MoveAction struct {
	PartyID string
	UnitID  string
	ToSlot  int
}

func (MoveAction) Kind() ActionKind { return KindMove }

type AbilityAction struct {
	PartyID  string
	UnitID   string
	Ability  string
	TargetID string
}

func (AbilityAction) Kind() ActionKind { return KindAbility }

type DeployAction struct {
	PartyID   string
	CardID    string
	Slot      int
	Concealed bool
}

func (DeployAction) Kind() ActionKind { return KindDeploy }

type DiscardAction struct {
	PartyID string
	CardIDs []string
}

func (DiscardAction) Kind() ActionKind { return KindDiscard }

type ShieldAction struct {
	PartyID string
	CardIDs []string
}

func (ShieldAction) Kind() ActionKind { return KindShield }

type PassAction struct {
	PartyID string
}

func (PassAction) Kind() ActionKind { return KindPass }

// AdvancePhaseAction commits the party in a simultaneous phase; the phase
// advances once both parties committed.
type AdvancePhaseAction struct {
	PartyID string
}

func (AdvancePhaseAction) Kind() ActionKind { return KindAdvancePhase }

type StartRoundAction struct{}

func (StartRoundAction) Kind() ActionKind { return KindStartRound }

type FirstPlayerAction struct{}

func (FirstPlayerAction) Kind() ActionKind { return KindFirstPlayer }

type BotTurnAction struct {
	PartyID string
}

func (BotTurnAction) Kind() ActionKind { return KindBotTurn }

// InterceptDecisionAction resumes an attack paused on a pending interception.
type InterceptDecisionAction struct {
	PartyID       string
	InterceptorID string
	Declined      bool
}

func (InterceptDecisionAction) Kind() ActionKind { return KindInterceptDecision }
