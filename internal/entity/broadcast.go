package entity

const (
	BroadcastActionResult = "action_result"
	BroadcastPhaseSync    = "phase_sync"
)

// Broadcast is the envelope the authoritative side publishes after each
// action: the resulting snapshot plus the animation descriptors it produced.
type Broadcast struct {
	Type       string           `json:"type"`
	Seq        int64            `json:"seq"`
	State      *GameState       `json:"state"`
	Animations []AnimationEvent `json:"animations,omitempty"`
}
