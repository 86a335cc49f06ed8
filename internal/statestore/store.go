package statestore

import (
	"log/slog"
	"sync"

	"github.com/embergrid/skirmish-backend/internal/entity"
)

// Role is the session role driving party identity resolution.
type Role string

const (
	RoleSolo    Role = "solo"
	RoleHost    Role = "host"
	RoleReplica Role = "replica"
)

// Notification is delivered to subscribers on every applied write.
type Notification struct {
	Type  string
	Tag   string
	State *entity.GameState
}

// Store holds the canonical snapshot of a session. It is the only mutation
// path for the snapshot; every write passes the phase-adjacency, invariant
// and concurrency guards.
type Store struct {
	logger *slog.Logger

	role        Role
	localParty  string
	remoteParty string

	mu        sync.RWMutex
	state     *entity.GameState
	subs      map[int]func(Notification)
	nextSubID int

	execMu   sync.Mutex
	execTag  string
	inAction bool
}

func New(logger *slog.Logger, role Role, localParty, remoteParty string, initial *entity.GameState) *Store {
	return &Store{
		logger:      logger.With("component", "statestore"),
		role:        role,
		localParty:  localParty,
		remoteParty: remoteParty,
		state:       initial.Clone(),
		subs:        make(map[int]func(Notification)),
	}
}

// Read returns an independent copy of the current snapshot.
func (that *Store) Read() *entity.GameState {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.state.Clone()
}

// Write applies a new snapshot under the guards and notifies subscribers.
// An illegal phase hop or an out-of-execution write is logged as a
// diagnostic, not blocked; an invariant violation rejects the write.
func (that *Store) Write(next *entity.GameState, tag string) error {
	if err := next.Validate(); err != nil {
		that.logger.Error("rejected invalid snapshot", "tag", tag, "error", err)
		return err
	}

	that.checkWriter(tag)

	that.mu.Lock()
	current := that.state
	if next.Phase != current.Phase && !current.Phase.CanTransitionTo(next.Phase) {
		that.logger.Warn("illegal phase transition",
			"from", current.Phase, "to", next.Phase, "tag", tag)
	}
	that.state = next.Clone()
	notified := that.state
	subs := make([]func(Notification), 0, len(that.subs))
	for _, fn := range that.subs {
		subs = append(subs, fn)
	}
	that.mu.Unlock()

	for _, fn := range subs {
		fn(Notification{Type: "state", Tag: tag, State: notified.Clone()})
	}

	return nil
}

// Subscribe registers fn for write notifications and returns an unsubscribe
// func. Subscribers are invoked synchronously after each applied write.
func (that *Store) Subscribe(fn func(Notification)) func() {
	that.mu.Lock()
	id := that.nextSubID
	that.nextSubID++
	that.subs[id] = fn
	that.mu.Unlock()

	return func() {
		that.mu.Lock()
		delete(that.subs, id)
		that.mu.Unlock()
	}
}

// BeginExecution marks the processor's current action; writes carrying a
// different tag while an action is mid-execution are flagged as diagnostic
// violations. Fail-open: the write is still applied.
func (that *Store) BeginExecution(tag string) {
	that.execMu.Lock()
	that.execTag = tag
	that.inAction = true
	that.execMu.Unlock()
}

func (that *Store) EndExecution() {
	that.execMu.Lock()
	that.execTag = ""
	that.inAction = false
	that.execMu.Unlock()
}

func (that *Store) checkWriter(tag string) {
	that.execMu.Lock()
	defer that.execMu.Unlock()

	if that.inAction && tag != that.execTag {
		that.logger.Warn("write bypassing the executing action",
			"tag", tag, "executing", that.execTag)
	}
}

func (that *Store) Role() Role {
	return that.role
}

// LocalPartyID returns the party this process acts for. In solo sessions the
// local party is the human-controlled one.
func (that *Store) LocalPartyID() string {
	return that.localParty
}

func (that *Store) RemotePartyID() string {
	return that.remoteParty
}

// IsLocalTurn reports whether the local party is the active one in the
// current snapshot.
func (that *Store) IsLocalTurn() bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.state.ActivePartyID == that.localParty
}
