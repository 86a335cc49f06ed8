// Package processor serializes action requests on the authoritative side:
// a single drain loop executes requests strictly FIFO, resolves them through
// the rule engine, applies the resulting snapshots to the store and
// broadcasts {state, animations} to the replica.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/embergrid/skirmish-backend/internal/agent"
	"github.com/embergrid/skirmish-backend/internal/apperror"
	"github.com/embergrid/skirmish-backend/internal/entity"
	"github.com/embergrid/skirmish-backend/internal/rules"
	"github.com/embergrid/skirmish-backend/internal/statestore"
)

const queueCapacity = 128

// Broadcaster publishes an authoritative result to the replica side.
type Broadcaster interface {
	Publish(ctx context.Context, broadcast entity.Broadcast) error
}

// AnimationPlayer plays animation descriptors on the local presentation
// layer. Playback blocks until the batch visually resolved.
type AnimationPlayer interface {
	Play(ctx context.Context, events []entity.AnimationEvent) error
}

// Result is what a submitter gets back. Exactly one of the failure-ish
// fields is set on a non-nil error-free result: Rejected carries a rule
// violation the requester should surface, NeedsDecision means execution
// paused for a human interception choice.
type Result struct {
	State         *entity.GameState
	Animations    []entity.AnimationEvent
	NeedsDecision *entity.Interception
	Rejected      *apperror.ValidationError
}

type submissionOutcome struct {
	result Result
	err    error
}

type submission struct {
	action   entity.Action
	resultCh chan submissionOutcome
}

type Processor struct {
	logger      *slog.Logger
	store       *statestore.Store
	layout      rules.Layout
	provider    agent.DecisionProvider
	broadcaster Broadcaster
	player      AnimationPlayer
	settle      time.Duration

	queue chan submission
	depth atomic.Int64
	busy  atomic.Bool
	seq   atomic.Int64
}

// New builds a processor. player may be nil when the authoritative side has
// no local presentation (dedicated host).
func New(logger *slog.Logger, store *statestore.Store, layout rules.Layout, provider agent.DecisionProvider, broadcaster Broadcaster, player AnimationPlayer, settle time.Duration) *Processor {
	return &Processor{
		logger:      logger.With("component", "processor"),
		store:       store,
		layout:      layout,
		provider:    provider,
		broadcaster: broadcaster,
		player:      player,
		settle:      settle,
		queue:       make(chan submission, queueCapacity),
	}
}

// Run drains the queue one request at a time until the context is canceled.
func (that *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-that.queue:
			that.depth.Add(-1)
			that.busy.Store(true)
			outcome := that.execute(ctx, sub.action)
			that.busy.Store(false)
			sub.resultCh <- outcome
		}
	}
}

// Submit enqueues the request and blocks until it executed. Requests from
// concurrent submitters are serialized strictly FIFO.
func (that *Processor) Submit(ctx context.Context, action entity.Action) (Result, error) {
	sub := submission{
		action:   action,
		resultCh: make(chan submissionOutcome, 1),
	}

	that.depth.Add(1)
	select {
	case that.queue <- sub:
	case <-ctx.Done():
		that.depth.Add(-1)
		return Result{}, fmt.Errorf("submit: %w", ctx.Err())
	}

	select {
	case outcome := <-sub.resultCh:
		return outcome.result, outcome.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("await result: %w", ctx.Err())
	}
}

// IsBusy reports whether a request is mid-execution.
func (that *Processor) IsBusy() bool {
	return that.busy.Load()
}

// QueueDepth returns the number of requests waiting in the queue. The
// request mid-execution, if any, is reported by IsBusy instead.
func (that *Processor) QueueDepth() int {
	return int(that.depth.Load())
}

// DrainWithoutExecuting discards every queued request and fails its
// submitter. Recovery-only escape hatch, not a normal-path operation.
func (that *Processor) DrainWithoutExecuting() int {
	dropped := 0
	for {
		select {
		case sub := <-that.queue:
			that.depth.Add(-1)
			dropped++
			sub.resultCh <- submissionOutcome{err: apperror.ErrQueueDrained}
		default:
			if dropped > 0 {
				that.logger.Warn("emergency drain discarded queued requests", "dropped", dropped)
			}
			return dropped
		}
	}
}
