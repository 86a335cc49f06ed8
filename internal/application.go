package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/embergrid/skirmish-backend/internal/agent"
	"github.com/embergrid/skirmish-backend/internal/config"
	"github.com/embergrid/skirmish-backend/internal/entity"
	"github.com/embergrid/skirmish-backend/internal/processor"
	"github.com/embergrid/skirmish-backend/internal/reconcile"
	"github.com/embergrid/skirmish-backend/internal/repository"
	"github.com/embergrid/skirmish-backend/internal/repository/storage"
	"github.com/embergrid/skirmish-backend/internal/rules"
	"github.com/embergrid/skirmish-backend/internal/statestore"
	"github.com/embergrid/skirmish-backend/internal/transport/redischan"
	"github.com/embergrid/skirmish-backend/transport/rest"
)

var (
	ErrAddrNotFound = errors.New("redis address string is empty")
	ErrUnknownRole  = errors.New("unknown session role")
)

// RunApp - runs the application in the configured session role.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	role := statestore.Role(conf.Session.Role)
	switch role {
	case statestore.RoleSolo, statestore.RoleHost, statestore.RoleReplica:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRole, conf.Session.Role)
	}

	initial := entity.NewGameState(conf.Session.LocalPartyID, conf.Session.RemotePartyID)
	if role == statestore.RoleSolo {
		initial.Parties[conf.Session.RemotePartyID].Automated = true
	}

	store := statestore.New(logger, role, conf.Session.LocalPartyID, conf.Session.RemotePartyID, initial)
	channel := redischan.New(logger, redisStorage.Connection, conf.Session.ID)
	layout := rules.DefaultLayout()

	if role == statestore.RoleReplica {
		return runReplica(ctx, log, conf, store, channel, layout)
	}

	return runAuthoritative(ctx, log, conf, store, channel, redisStorage, layout)
}

func runAuthoritative(ctx context.Context, log *slog.Logger, conf *config.Config, store *statestore.Store, channel *redischan.Channel, redisStorage *storage.RedisStorage, layout rules.Layout) error {
	sessionRepo := repository.NewSessionRepository(redisStorage.Connection)
	proc := processor.New(log, store, layout, agent.New(), channel, nil, conf.Session.BotSettle)

	go proc.Run(ctx)

	// keep the latest snapshot around so a reconnecting replica can catch up
	unsubscribe := store.Subscribe(func(notification statestore.Notification) {
		if err := sessionRepo.CreateOrUpdate(ctx, conf.Session.ID, notification.State); err != nil {
			log.Error("failed to save session snapshot", "error", err)
		}
	})
	defer unsubscribe()

	if store.Role() == statestore.RoleSolo {
		stopBot := runBotDriver(ctx, log, store, proc)
		defer stopBot()
	}

	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort, proc); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

func runReplica(ctx context.Context, log *slog.Logger, conf *config.Config, store *statestore.Store, channel *redischan.Channel, layout rules.Layout) error {
	reconciler := reconcile.New(log, store, layout, nil)
	go reconciler.Run(ctx)

	broadcasts, err := channel.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("could not subscribe to session channel: %w", err)
	}

	go func() {
		for broadcast := range broadcasts {
			reconciler.Enqueue(broadcast)
		}
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(conf.HTTPPort, nil); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// runBotDriver submits a bot turn whenever a snapshot leaves the automated
// party active in a sequential phase.
func runBotDriver(ctx context.Context, log *slog.Logger, store *statestore.Store, proc *processor.Processor) func() {
	return store.Subscribe(func(notification statestore.Notification) {
		state := notification.State
		party := state.Parties[state.ActivePartyID]
		if party == nil || !party.Automated {
			return
		}
		if !state.Phase.IsSequential() || state.PendingInterception != nil || state.Passes[party.ID] {
			return
		}

		go func() {
			if _, err := proc.Submit(ctx, entity.BotTurnAction{PartyID: party.ID}); err != nil {
				log.Error("bot turn failed", "party", party.ID, "error", err)
			}
		}()
	})
}
