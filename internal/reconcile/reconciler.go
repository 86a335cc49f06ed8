// Package reconcile is the replica-side reconciliation pipeline: it merges
// asynchronous, possibly-redundant authoritative broadcasts with locally
// predicted outcomes while keeping animation playback causally ordered
// against state changes.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/embergrid/skirmish-backend/internal/entity"
	"github.com/embergrid/skirmish-backend/internal/rules"
	"github.com/embergrid/skirmish-backend/internal/statestore"
)

const queueCapacity = 128

const writeTag = "reconcile"

// AnimationPlayer plays a batch of animation descriptors and blocks until
// playback resolved.
type AnimationPlayer interface {
	Play(ctx context.Context, events []entity.AnimationEvent) error
}

// prediction is the replica-local speculative outcome of an action executed
// before authoritative confirmation.
type prediction struct {
	state         *entity.GameState
	animationKeys map[string]bool
}

// Reconciler queues inbound broadcasts and processes exactly one at a time,
// including all its animation playback, before starting the next.
type Reconciler struct {
	logger *slog.Logger
	store  *statestore.Store
	layout rules.Layout
	player AnimationPlayer

	queue chan entity.Broadcast

	mu          sync.Mutex
	pred        *prediction
	lastSeq     int64
	cascadeDone map[string]bool

	// cascadeFn is swapped in tests to count triggers
	cascadeFn func(*entity.GameState, rules.Layout) (rules.Resolution, error)
}

func New(logger *slog.Logger, store *statestore.Store, layout rules.Layout, player AnimationPlayer) *Reconciler {
	return &Reconciler{
		logger:      logger.With("component", "reconciler"),
		store:       store,
		layout:      layout,
		player:      player,
		queue:       make(chan entity.Broadcast, queueCapacity),
		cascadeDone: make(map[string]bool),
		cascadeFn:   rules.RunCascade,
	}
}

// Enqueue queues a broadcast for reconciliation. A full queue drops the
// broadcast; per-connection FIFO delivery means the next one supersedes it.
func (that *Reconciler) Enqueue(broadcast entity.Broadcast) {
	select {
	case that.queue <- broadcast:
	default:
		that.logger.Error("reconcile queue full, dropping broadcast", "seq", broadcast.Seq)
	}
}

// Run drains the queue until the context is canceled.
func (that *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case broadcast := <-that.queue:
			if err := that.process(ctx, broadcast); err != nil {
				that.logger.Error("failed to reconcile broadcast", "seq", broadcast.Seq, "error", err)
			}
		}
	}
}

// Predict records a locally-predicted outcome: the speculative snapshot is
// applied immediately and the predicted animations are remembered so the
// confirming broadcast deduplicates against them.
func (that *Reconciler) Predict(state *entity.GameState, animations []entity.AnimationEvent) error {
	keys := make(map[string]bool, len(animations))
	for _, event := range animations {
		keys[event.Key()] = true
	}

	that.mu.Lock()
	that.pred = &prediction{state: state.Clone(), animationKeys: keys}
	that.mu.Unlock()

	if err := that.store.Write(state, "prediction"); err != nil {
		return fmt.Errorf("apply prediction: %w", err)
	}
	return nil
}

// process reconciles exactly one broadcast: checkpoint validation,
// optimistic deduplication, causally-ordered animation playback, state
// application and cascade triggering.
func (that *Reconciler) process(ctx context.Context, broadcast entity.Broadcast) error {
	if broadcast.State == nil {
		return fmt.Errorf("broadcast %d carries no state", broadcast.Seq)
	}

	that.mu.Lock()
	lastSeq := that.lastSeq
	that.mu.Unlock()
	if broadcast.Seq != 0 && broadcast.Seq <= lastSeq {
		that.logger.Debug("dropped replayed broadcast", "seq", broadcast.Seq)
		return nil
	}

	current := that.store.Read()

	if !that.admit(current, broadcast) {
		return nil
	}

	remaining := that.filterPredicted(broadcast.Animations)

	// prediction confirmed field-by-field: no state swap, no re-render
	if len(remaining) == 0 && current.GameplayEqual(broadcast.State) {
		that.logger.Debug("dropped redundant broadcast, prediction confirmed", "seq", broadcast.Seq)
		that.confirm(broadcast.Seq)
		return nil
	}

	that.mu.Lock()
	diverged := that.pred != nil && !current.GameplayEqual(broadcast.State)
	that.mu.Unlock()
	if diverged {
		// authoritative truth always wins; the divergence itself is the
		// diagnostic that local prediction drifted from the rule engine
		that.logger.Warn("optimistic prediction diverged from authoritative state",
			"seq", broadcast.Seq, "phase", broadcast.State.Phase)
	}

	pre, post := partitionByTiming(remaining)

	// pre-state events reference entities still present in the current
	// view; they must resolve before the snapshot swap
	if err := that.play(ctx, pre); err != nil {
		return err
	}

	next := broadcast.State.Clone()

	triggerCascade := false
	if current.Phase.IsSimultaneous() && broadcast.State.CommitmentsComplete(current.Phase) {
		key := cascadeKey(current.Phase, current.Round)
		that.mu.Lock()
		if !that.cascadeDone[key] {
			that.cascadeDone[key] = true
			triggerCascade = true
		}
		that.mu.Unlock()

		// keep our own phase in the applied patch: the visible order stays
		// announcement, automatic resolution, next checkpoint
		next.Phase = current.Phase
	}

	if err := that.apply(ctx, next, remaining); err != nil {
		return err
	}

	if err := that.play(ctx, post); err != nil {
		return err
	}

	that.confirm(broadcast.Seq)

	if triggerCascade {
		return that.runCascade(ctx)
	}
	if next.Phase.IsAutomatic() {
		return that.runCascade(ctx)
	}

	return nil
}

// admit runs the checkpoint matrix. Pre-game and sequential phases bypass
// filtering, with the both-passed inference guarding sequential phase jumps.
func (that *Reconciler) admit(current *entity.GameState, broadcast entity.Broadcast) bool {
	incoming := broadcast.State.Phase

	if current.Phase.IsPreGame() {
		return true
	}

	if current.Phase.IsSequential() {
		if incoming == current.Phase {
			return true
		}
		if that.inferBothPassed(current, incoming) {
			that.logger.Info("accepted phase jump as inferred remote pass",
				"from", current.Phase, "to", incoming)
			return true
		}
		that.logger.Info("deferred out-of-window broadcast in sequential phase",
			"replica", current.Phase, "authoritative", incoming, "seq", broadcast.Seq)
		return false
	}

	allowed, isCheckpoint := checkpointAllowLists[current.Phase]
	if !isCheckpoint {
		if current.Phase.IsAutomatic() {
			// mid-cascade: we resolve our own cascade and reach the next
			// checkpoint independently
			that.logger.Debug("dropped broadcast between checkpoints",
				"replica", current.Phase, "seq", broadcast.Seq)
			return false
		}
		// a phase missing from the matrix is a table omission, not a
		// protocol state: fail loudly instead of silently dropping
		that.logger.Error("phase missing from checkpoint matrix",
			"replica", current.Phase, "seq", broadcast.Seq)
		return false
	}

	if !phaseAllowed(allowed, incoming) {
		that.logger.Info("deferred broadcast outside checkpoint allow-list",
			"replica", current.Phase, "authoritative", incoming, "seq", broadcast.Seq)
		return false
	}

	return true
}

// inferBothPassed bridges the one-broadcast latency gap of asynchronous pass
// notification: our own pass is registered, the remote one not yet, and the
// incoming phase matches the sequential transition both passes would cause.
func (that *Reconciler) inferBothPassed(current *entity.GameState, incoming entity.Phase) bool {
	successor, ok := current.Phase.SequentialSuccessor()
	if !ok || incoming != successor {
		return false
	}
	return current.Passes[that.store.LocalPartyID()]
}

// apply swaps the snapshot in, handling the entry-reveal case: the revealed
// entity is applied suppressed at swap time, then disclosed by a second,
// smaller patch at the reveal point of the effect.
func (that *Reconciler) apply(ctx context.Context, next *entity.GameState, animations []entity.AnimationEvent) error {
	reveal, hasReveal := findReveal(animations)
	if !hasReveal {
		return that.store.Write(next, writeTag)
	}

	suppressed := next.Clone()
	if unit, _, ok := suppressed.FindUnit(reveal.UnitID); ok {
		unit.Concealed = true
	}
	if err := that.store.Write(suppressed, writeTag); err != nil {
		return err
	}

	if err := that.play(ctx, []entity.AnimationEvent{reveal}); err != nil {
		return err
	}

	return that.store.Write(next, writeTag)
}

// runCascade resolves the downstream automatic phases locally, exactly once
// per trigger.
func (that *Reconciler) runCascade(ctx context.Context) error {
	resolution, err := that.cascadeFn(that.store.Read(), that.layout)
	if err != nil {
		return fmt.Errorf("run cascade: %w", err)
	}

	for _, step := range resolution.Steps {
		if err := that.store.Write(step.State, writeTag); err != nil {
			return err
		}
		if err := that.play(ctx, step.Animations); err != nil {
			return err
		}
	}

	return nil
}

func (that *Reconciler) filterPredicted(animations []entity.AnimationEvent) []entity.AnimationEvent {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.pred == nil {
		return animations
	}

	var remaining []entity.AnimationEvent
	for _, event := range animations {
		if !that.pred.animationKeys[event.Key()] {
			remaining = append(remaining, event)
		}
	}
	return remaining
}

func (that *Reconciler) confirm(seq int64) {
	that.mu.Lock()
	that.pred = nil
	if seq > that.lastSeq {
		that.lastSeq = seq
	}
	that.mu.Unlock()
}

func (that *Reconciler) play(ctx context.Context, events []entity.AnimationEvent) error {
	if that.player == nil || len(events) == 0 {
		return nil
	}
	if err := that.player.Play(ctx, events); err != nil {
		return fmt.Errorf("animation playback: %w", err)
	}
	return nil
}

func partitionByTiming(events []entity.AnimationEvent) (pre, post []entity.AnimationEvent) {
	for _, event := range events {
		if event.IsReveal() {
			continue // handled by the two-variant apply
		}
		if event.Timing == entity.TimingPreState {
			pre = append(pre, event)
			continue
		}
		post = append(post, event)
	}
	return pre, post
}

func findReveal(events []entity.AnimationEvent) (entity.AnimationEvent, bool) {
	for _, event := range events {
		if event.IsReveal() {
			return event, true
		}
	}
	return entity.AnimationEvent{}, false
}

func cascadeKey(phase entity.Phase, round int) string {
	return fmt.Sprintf("%s:%d", phase, round)
}
