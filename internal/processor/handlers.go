package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/embergrid/skirmish-backend/internal/apperror"
	"github.com/embergrid/skirmish-backend/internal/entity"
	"github.com/embergrid/skirmish-backend/internal/rules"
)

// capability bundles what a handler may touch during one execution: the
// snapshot it resolves against, state application, log append, the animation
// sink and the sub-resolution callbacks into the rule engine and the
// decision provider.
type capability struct {
	processor *Processor
	tag       string
	snapshot  *entity.GameState
	captured  []entity.AnimationEvent
}

func (that *capability) State() *entity.GameState {
	return that.snapshot
}

// Apply writes an intermediate or final snapshot under the execution tag and
// refreshes the handler's view.
func (that *capability) Apply(next *entity.GameState) error {
	if err := that.processor.store.Write(next, that.tag); err != nil {
		return err
	}
	that.snapshot = next
	return nil
}

func (that *capability) Capture(events ...entity.AnimationEvent) {
	for _, event := range events {
		event.Timing = entity.TimingFor(event.Name)
		that.captured = append(that.captured, event)
	}
}

// Settle waits the fixed interval before querying the automated decision
// provider, so the pending prompt is observable.
func (that *capability) Settle(ctx context.Context) {
	if that.processor.settle <= 0 {
		return
	}
	timer := time.NewTimer(that.processor.settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// execute runs exactly one request: resolve, apply the step pipeline, play
// local animations, broadcast, then run any downstream automatic cascade.
func (that *Processor) execute(ctx context.Context, action entity.Action) submissionOutcome {
	tag := "action:" + string(action.Kind())

	that.store.BeginExecution(tag)
	defer that.store.EndExecution()

	caps := &capability{
		processor: that,
		tag:       tag,
		snapshot:  that.store.Read(),
	}

	resolution, err := that.dispatch(ctx, caps, action)
	if err != nil {
		if validation, ok := apperror.AsValidation(err); ok {
			that.logger.Info("request rejected", "kind", action.Kind(), "reason", validation.Reason)
			return submissionOutcome{result: Result{Rejected: validation}}
		}
		// lookup and internal failures abort only this request
		that.logger.Warn("request aborted", "kind", action.Kind(), "error", err)
		return submissionOutcome{err: err}
	}

	if resolution.NeedsInterception != nil {
		return that.pauseForDecision(ctx, caps, resolution.NeedsInterception)
	}

	result, err := that.applySteps(ctx, caps, resolution)
	if err != nil {
		return submissionOutcome{err: err}
	}

	that.publish(ctx, entity.BroadcastActionResult, result.State, result.Animations)

	if result.State.Phase.IsAutomatic() {
		cascaded, err := that.runCascade(ctx, caps)
		if err != nil {
			return submissionOutcome{err: err}
		}
		result.State = cascaded
	}

	return submissionOutcome{result: result}
}

// dispatch matches the closed action set exhaustively and resolves through
// the rule engine.
func (that *Processor) dispatch(ctx context.Context, caps *capability, action entity.Action) (rules.Resolution, error) {
	state := caps.State()

	switch details := action.(type) {
	case entity.AttackAction:
		return that.handleAttack(ctx, caps, details)
	case entity.MoveAction:
		return rules.ResolveMove(details, state, that.layout)
	case entity.AbilityAction:
		return rules.ResolveAbility(details, state, that.layout)
	case entity.DeployAction:
		return rules.ResolveDeploy(details, state, that.layout)
	case entity.DiscardAction:
		return rules.ResolveDiscard(details, state, that.layout)
	case entity.ShieldAction:
		return rules.ResolveShield(details, state, that.layout)
	case entity.PassAction:
		return rules.ResolvePass(details, state, that.layout)
	case entity.AdvancePhaseAction:
		return rules.ResolveCommit(details, state, that.layout)
	case entity.StartRoundAction:
		return rules.ResolveRoundStart(details, state, that.layout)
	case entity.FirstPlayerAction:
		return rules.ResolveFirstPlayer(details, state, that.layout)
	case entity.InterceptDecisionAction:
		return rules.ResolveInterceptDecision(details, state, that.layout)
	case entity.BotTurnAction:
		return that.handleBotTurn(ctx, caps, details)
	default:
		return rules.Resolution{}, fmt.Errorf("%w: %T", apperror.ErrUnknownAction, action)
	}
}

// handleAttack resolves an attack, running the interception sub-protocol
// when the defender has valid interceptors. An automated defender is queried
// synchronously after the settle interval and the attack completes within
// this execution; a human defender pauses the action instead.
func (that *Processor) handleAttack(ctx context.Context, caps *capability, details entity.AttackAction) (rules.Resolution, error) {
	resolution, err := rules.ResolveAttack(details, caps.State(), that.layout)
	if err != nil || resolution.NeedsInterception == nil {
		return resolution, err
	}

	prompt := resolution.NeedsInterception
	defender, err := caps.State().Party(prompt.DefenderPartyID)
	if err != nil {
		return rules.Resolution{}, err
	}
	if !defender.Automated {
		return resolution, nil
	}

	// record the prompt so the mid-action decision state is observable,
	// then decide and resume within the same execution
	pending := caps.State().Clone()
	pending.PendingInterception = prompt
	if err := caps.Apply(pending); err != nil {
		return rules.Resolution{}, err
	}

	caps.Settle(ctx)

	interceptorID, accepted := that.provider.ChooseInterceptor(caps.State(), *prompt)
	decision := entity.InterceptDecisionAction{
		PartyID:       prompt.DefenderPartyID,
		InterceptorID: interceptorID,
		Declined:      !accepted,
	}

	return rules.ResolveInterceptDecision(decision, caps.State(), that.layout)
}

// handleBotTurn asks the decision provider for the bot party's request and
// resolves it as a sub-resolution of this execution.
func (that *Processor) handleBotTurn(ctx context.Context, caps *capability, details entity.BotTurnAction) (rules.Resolution, error) {
	action, err := that.provider.ChooseAction(caps.State(), details.PartyID)
	if err != nil {
		return rules.Resolution{}, fmt.Errorf("choose bot action: %w", err)
	}
	if action.Kind() == entity.KindBotTurn {
		return rules.Resolution{}, fmt.Errorf("%w: recursive bot turn", apperror.ErrUnknownAction)
	}
	return that.dispatch(ctx, caps, action)
}

// pauseForDecision records the pending interception, releases the queue and
// returns the decision-needed result. The combat outcome is not applied.
func (that *Processor) pauseForDecision(ctx context.Context, caps *capability, prompt *entity.Interception) submissionOutcome {
	pending := caps.State().Clone()
	pending.PendingInterception = prompt
	if err := caps.Apply(pending); err != nil {
		return submissionOutcome{err: err}
	}

	that.publish(ctx, entity.BroadcastActionResult, pending, nil)
	that.logger.Info("attack paused for interception decision",
		"defender", prompt.DefenderPartyID, "target", prompt.TargetUnitID)

	return submissionOutcome{result: Result{State: pending, NeedsDecision: prompt}}
}

// applySteps walks the ordered {state, animation-batch} pipeline: apply a
// step's snapshot, play its animations, then move to the next. This is what
// guarantees an entity visually disappears before later animations assume
// it is gone.
func (that *Processor) applySteps(ctx context.Context, caps *capability, resolution rules.Resolution) (Result, error) {
	for _, step := range resolution.Steps {
		if err := caps.Apply(step.State); err != nil {
			return Result{}, err
		}
		caps.Capture(step.Animations...)

		if that.player != nil && len(step.Animations) > 0 {
			tagged := caps.captured[len(caps.captured)-len(step.Animations):]
			if err := that.player.Play(ctx, tagged); err != nil {
				that.logger.Warn("animation playback failed", "error", err)
			}
		}
	}

	return Result{State: caps.State(), Animations: caps.captured}, nil
}

// runCascade resolves downstream automatic phases and broadcasts the result
// as a phase sync.
func (that *Processor) runCascade(ctx context.Context, caps *capability) (*entity.GameState, error) {
	resolution, err := rules.RunCascade(caps.State(), that.layout)
	if err != nil {
		return nil, fmt.Errorf("run cascade: %w", err)
	}

	before := len(caps.captured)
	result, err := that.applySteps(ctx, caps, resolution)
	if err != nil {
		return nil, err
	}

	that.publish(ctx, entity.BroadcastPhaseSync, result.State, result.Animations[before:])

	return result.State, nil
}

func (that *Processor) publish(ctx context.Context, kind string, state *entity.GameState, anims []entity.AnimationEvent) {
	if that.broadcaster == nil {
		return
	}

	broadcast := entity.Broadcast{
		Type:       kind,
		Seq:        that.seq.Add(1),
		State:      state,
		Animations: anims,
	}
	if err := that.broadcaster.Publish(ctx, broadcast); err != nil {
		that.logger.Error("failed to publish broadcast", "type", kind, "error", err)
	}
}
