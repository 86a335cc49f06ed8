package reconcile

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embergrid/skirmish-backend/internal/entity"
	"github.com/embergrid/skirmish-backend/internal/rules"
	"github.com/embergrid/skirmish-backend/internal/statestore"
)

// eventRecorder collects the interleaving of store writes and animation
// playback, the ordering the reconciler exists to guarantee.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
}

func (that *eventRecorder) add(event string) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.events = append(that.events, event)
}

func (that *eventRecorder) list() []string {
	that.mu.Lock()
	defer that.mu.Unlock()
	return append([]string(nil), that.events...)
}

type recordingPlayer struct {
	rec *eventRecorder
}

func (that *recordingPlayer) Play(_ context.Context, events []entity.AnimationEvent) error {
	for _, event := range events {
		that.rec.add("play:" + event.Name)
	}
	return nil
}

func replicaState() *entity.GameState {
	state := entity.NewGameState("party-a", "party-b")
	state.Phase = entity.PhaseAction
	state.Round = 2
	state.ActivePartyID = "party-a"

	partyA := state.Parties["party-a"]
	partyA.Energy = 5
	partyA.MaxEnergy = 5
	partyA.Shields = []entity.Card{{ID: "sa1"}}
	partyA.Deck = []entity.Card{{ID: "da1"}, {ID: "da2"}}
	partyA.Board = []entity.Unit{{ID: "a1", Name: "Raider", Attack: 3, Health: 4, Slot: 0}}

	partyB := state.Parties["party-b"]
	partyB.Energy = 5
	partyB.MaxEnergy = 5
	partyB.Shields = []entity.Card{{ID: "sb1"}}
	partyB.Deck = []entity.Card{{ID: "db1"}, {ID: "db2"}}
	partyB.Board = []entity.Unit{{ID: "b1", Name: "Sentry", Attack: 2, Health: 5, Slot: 1}}

	return state
}

type replicaFixture struct {
	reconciler *Reconciler
	store      *statestore.Store
	rec        *eventRecorder
	logs       *bytes.Buffer
}

// newReplica builds a reconciler acting for party-b against a live store.
// Store writes land in the recorder alongside playback events.
func newReplica(t *testing.T, initial *entity.GameState) *replicaFixture {
	t.Helper()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := statestore.New(logger, statestore.RoleReplica, "party-b", "party-a", initial)

	rec := &eventRecorder{}
	store.Subscribe(func(notification statestore.Notification) {
		rec.add("write:" + string(notification.State.Phase))
	})

	reconciler := New(logger, store, rules.DefaultLayout(), &recordingPlayer{rec: rec})

	return &replicaFixture{reconciler: reconciler, store: store, rec: rec, logs: &logs}
}

func TestReconciler_AppliesBroadcastInSequentialPhase(t *testing.T) {
	f := newReplica(t, replicaState())

	// Given: an authoritative result in the same phase
	next := replicaState()
	next.Parties["party-b"].Board[0].Health = 2
	next.ActivePartyID = "party-b"

	// When: reconciling it
	err := f.reconciler.process(context.Background(), entity.Broadcast{
		Type:  entity.BroadcastActionResult,
		Seq:   1,
		State: next,
	})
	require.NoError(t, err)

	// Then: the snapshot swapped in
	applied := f.store.Read()
	unit, _, _ := applied.FindUnit("b1")
	assert.Equal(t, 2, unit.Health)
	assert.Equal(t, "party-b", applied.ActivePartyID)
}

func TestReconciler_AppliesPausedAttackPrompt(t *testing.T) {
	f := newReplica(t, replicaState())

	// Given: the host paused an attack on us and broadcast only the prompt,
	// no animations and no other state change
	next := replicaState()
	next.PendingInterception = &entity.Interception{
		AttackerPartyID: "party-a",
		DefenderPartyID: "party-b",
		AttackerUnitID:  "a1",
		TargetUnitID:    "b1",
		Candidates:      []string{"b1"},
	}

	err := f.reconciler.process(context.Background(), entity.Broadcast{
		Type:  entity.BroadcastActionResult,
		Seq:   1,
		State: next,
	})
	require.NoError(t, err)

	// Then: the prompt reaches the defending party instead of being dropped
	// as redundant
	pending := f.store.Read().PendingInterception
	require.NotNil(t, pending)
	assert.Equal(t, "party-b", pending.DefenderPartyID)
	assert.Equal(t, []string{"b1"}, pending.Candidates)
}

func TestReconciler_DropsReplayedSequenceNumbers(t *testing.T) {
	f := newReplica(t, replicaState())

	next := replicaState()
	next.Parties["party-b"].Board[0].Health = 2
	broadcast := entity.Broadcast{Type: entity.BroadcastActionResult, Seq: 3, State: next}

	// When: the same broadcast is delivered twice
	require.NoError(t, f.reconciler.process(context.Background(), broadcast))
	writesAfterFirst := len(f.rec.list())
	require.NoError(t, f.reconciler.process(context.Background(), broadcast))

	// Then: the replay changed nothing
	assert.Len(t, f.rec.list(), writesAfterFirst)
	assert.Contains(t, f.logs.String(), "dropped replayed broadcast")
}

func TestReconciler_BothPassedInference(t *testing.T) {
	t.Run("Accepts the jump when the local pass is registered", func(t *testing.T) {
		// Given: we passed locally, the remote pass broadcast is in flight
		initial := replicaState()
		initial.Passes["party-b"] = true
		f := newReplica(t, initial)

		// stub cascade so the test observes only the admission
		f.reconciler.cascadeFn = func(state *entity.GameState, _ rules.Layout) (rules.Resolution, error) {
			return rules.Resolution{}, nil
		}

		next := replicaState()
		next.Phase = entity.PhaseRoundEnd

		err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: next})
		require.NoError(t, err)

		// Then: the phase jump was accepted as the inferred remote pass
		assert.Equal(t, entity.PhaseRoundEnd, f.store.Read().Phase)
		assert.Contains(t, f.logs.String(), "inferred remote pass")
	})

	t.Run("Defers the jump when we have not passed", func(t *testing.T) {
		f := newReplica(t, replicaState())

		next := replicaState()
		next.Phase = entity.PhaseRoundEnd

		err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: next})
		require.NoError(t, err)

		// Then: nothing was applied
		assert.Equal(t, entity.PhaseAction, f.store.Read().Phase)
		assert.Empty(t, f.rec.list())
	})
}

func TestReconciler_CheckpointFiltering(t *testing.T) {
	t.Run("Defers broadcasts outside the allow-list", func(t *testing.T) {
		// Given: the replica sits at the discard checkpoint
		initial := replicaState()
		initial.Phase = entity.PhaseDiscard
		f := newReplica(t, initial)

		// When: a deployment-phase broadcast arrives, past the next checkpoint
		next := replicaState()
		next.Phase = entity.PhaseDeployment

		err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: next})
		require.NoError(t, err)

		assert.Equal(t, entity.PhaseDiscard, f.store.Read().Phase)
		assert.Contains(t, f.logs.String(), "deferred broadcast outside checkpoint allow-list")
	})

	t.Run("Accepts a raced-ahead companion phase", func(t *testing.T) {
		// Given: the replica sits at shield allocation
		initial := replicaState()
		initial.Phase = entity.PhaseShieldAllocation
		f := newReplica(t, initial)

		// When: the authoritative side already resolved the unit limit
		next := replicaState()
		next.Phase = entity.PhaseUnitLimit

		err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: next})
		require.NoError(t, err)

		assert.NotEmpty(t, f.rec.list())
	})

	t.Run("Drops broadcasts while mid-cascade", func(t *testing.T) {
		initial := replicaState()
		initial.Phase = entity.PhaseEnergyReset
		f := newReplica(t, initial)

		err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: replicaState()})
		require.NoError(t, err)

		assert.Empty(t, f.rec.list())
		assert.Contains(t, f.logs.String(), "dropped broadcast between checkpoints")
	})

	t.Run("Fails loudly on a phase missing from the matrix", func(t *testing.T) {
		initial := replicaState()
		initial.Phase = entity.Phase("limbo")
		f := newReplica(t, initial)

		err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: replicaState()})
		require.NoError(t, err)

		assert.Empty(t, f.rec.list())
		assert.Contains(t, f.logs.String(), "phase missing from checkpoint matrix")
	})
}

func TestReconciler_PredictionConfirmed(t *testing.T) {
	f := newReplica(t, replicaState())

	// Given: a local prediction of our own attack's outcome
	predicted := replicaState()
	predicted.Parties["party-a"].Board[0].Health = 2
	predicted.Parties["party-b"].Board[0].Health = 2
	predicted.ActivePartyID = "party-b"
	require.NoError(t, f.reconciler.Predict(predicted, []entity.AnimationEvent{
		{Name: entity.AnimAttackDamage, Timing: entity.TimingPostState, PartyID: "party-a", UnitID: "a1"},
		{Name: entity.AnimAttackDamage, Timing: entity.TimingPostState, PartyID: "party-b", UnitID: "b1"},
	}))
	writesAfterPrediction := len(f.rec.list())

	// When: the confirming broadcast arrives with matching state and events
	confirming := predicted.Clone()
	confirming.AppendLog("unit b1 attacked a1")

	err := f.reconciler.process(context.Background(), entity.Broadcast{
		Seq:   1,
		State: confirming,
		Animations: []entity.AnimationEvent{
			{Name: entity.AnimAttackDamage, Timing: entity.TimingPostState, PartyID: "party-a", UnitID: "a1"},
			{Name: entity.AnimAttackDamage, Timing: entity.TimingPostState, PartyID: "party-b", UnitID: "b1"},
		},
	})
	require.NoError(t, err)

	// Then: no second swap, no re-played animations
	assert.Len(t, f.rec.list(), writesAfterPrediction)
	assert.Contains(t, f.logs.String(), "prediction confirmed")
}

func TestReconciler_DivergentPredictionIsOverwritten(t *testing.T) {
	f := newReplica(t, replicaState())

	// Given: a prediction that drifted from the rule engine
	predicted := replicaState()
	predicted.Parties["party-b"].Board[0].Health = 1
	require.NoError(t, f.reconciler.Predict(predicted, nil))

	// When: the authoritative result disagrees
	authoritative := replicaState()
	authoritative.Parties["party-b"].Board[0].Health = 3

	err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: authoritative})
	require.NoError(t, err)

	// Then: authoritative truth wins and the divergence is logged
	unit, _, _ := f.store.Read().FindUnit("b1")
	assert.Equal(t, 3, unit.Health)
	assert.Contains(t, f.logs.String(), "prediction diverged")
}

func TestReconciler_AnimationOrderingAroundTheSwap(t *testing.T) {
	f := newReplica(t, replicaState())

	// Given: a result removing a1 with a pre-state destruction event
	next := replicaState()
	next.Parties["party-a"].Board = nil
	next.Parties["party-b"].Board[0].Health = 2

	err := f.reconciler.process(context.Background(), entity.Broadcast{
		Seq:   1,
		State: next,
		Animations: []entity.AnimationEvent{
			{Name: entity.AnimAttackDamage, Timing: entity.TimingPostState, PartyID: "party-b", UnitID: "b1"},
			{Name: entity.AnimUnitDestroyed, Timing: entity.TimingPreState, PartyID: "party-a", UnitID: "a1"},
		},
	})
	require.NoError(t, err)

	// Then: destruction plays before the swap, damage after it
	assert.Equal(t, []string{
		"play:" + entity.AnimUnitDestroyed,
		"write:" + string(entity.PhaseAction),
		"play:" + entity.AnimAttackDamage,
	}, f.rec.list())
}

func TestReconciler_EntryRevealAppliesInTwoVariants(t *testing.T) {
	// Given: the replica in deployment
	initial := replicaState()
	initial.Phase = entity.PhaseDeployment
	f := newReplica(t, initial)

	var concealedSeen []bool
	f.store.Subscribe(func(notification statestore.Notification) {
		if unit, _, ok := notification.State.FindUnit("u:x1"); ok {
			concealedSeen = append(concealedSeen, unit.Concealed)
		}
	})

	// When: the remote party's concealed deploy is revealed by the broadcast
	next := initial.Clone()
	next.Parties["party-a"].Board = append(next.Parties["party-a"].Board,
		entity.Unit{ID: "u:x1", CardID: "x1", Name: "Lurker", Attack: 2, Health: 2, Slot: 3})

	err := f.reconciler.process(context.Background(), entity.Broadcast{
		Seq:   1,
		State: next,
		Animations: []entity.AnimationEvent{
			{Name: entity.AnimUnitDeployReveal, Timing: entity.TimingPostState, PartyID: "party-a", UnitID: "u:x1", CardID: "x1"},
		},
	})
	require.NoError(t, err)

	// Then: first write suppressed, reveal played between the two writes
	require.Equal(t, []bool{true, false}, concealedSeen)
	assert.Equal(t, []string{
		"write:" + string(entity.PhaseDeployment),
		"play:" + entity.AnimUnitDeployReveal,
		"write:" + string(entity.PhaseDeployment),
	}, f.rec.list())

	// Then: the final snapshot discloses the unit
	unit, _, ok := f.store.Read().FindUnit("u:x1")
	require.True(t, ok)
	assert.False(t, unit.Concealed)
}

func TestReconciler_SimultaneousCompletionTriggersCascadeOnce(t *testing.T) {
	// Given: the replica at shield allocation, already committed locally
	initial := replicaState()
	initial.Phase = entity.PhaseShieldAllocation
	initial.Commit(entity.PhaseShieldAllocation, "party-b")
	f := newReplica(t, initial)

	cascades := 0
	f.reconciler.cascadeFn = func(state *entity.GameState, _ rules.Layout) (rules.Resolution, error) {
		cascades++
		return rules.Resolution{}, nil
	}

	// Given: the authoritative side saw both commitments and raced ahead
	completed := replicaState()
	completed.Phase = entity.PhaseUnitLimit
	completed.Commit(entity.PhaseShieldAllocation, "party-a")
	completed.Commit(entity.PhaseShieldAllocation, "party-b")

	// When: the completion broadcast arrives
	err := f.reconciler.process(context.Background(), entity.Broadcast{Seq: 1, State: completed})
	require.NoError(t, err)

	// Then: the applied patch preserves our own phase
	assert.Equal(t, entity.PhaseShieldAllocation, f.store.Read().Phase)

	// Then: the local cascade ran exactly once, even for a redundant delivery
	assert.Equal(t, 1, cascades)

	redelivery := completed.Clone()
	err = f.reconciler.process(context.Background(), entity.Broadcast{Seq: 2, State: redelivery})
	require.NoError(t, err)
	assert.Equal(t, 1, cascades)
}

func TestReconciler_EnqueueDropsWhenFull(t *testing.T) {
	f := newReplica(t, replicaState())

	// When: overfilling the queue without a running drain loop
	for i := 0; i < queueCapacity+1; i++ {
		f.reconciler.Enqueue(entity.Broadcast{Seq: int64(i + 1), State: replicaState()})
	}

	assert.Contains(t, f.logs.String(), "reconcile queue full")
}
