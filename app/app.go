package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/palantir/go-githubapp/githubapp"
	"go.uber.org/zap"

	"github.com/khrj/repl.deploy/deploy"
	"github.com/khrj/repl.deploy/types"
)

// Deployer runs the redeploy pipeline for a single push.
type Deployer interface {
	Run(ctx context.Context, event deploy.PushEvent) (deploy.Result, error)
}

type App struct {
	server   *http.Server
	deployer Deployer
	logger   *zap.Logger
	cfg      types.AppConfig
}

// NewApp wires the webhook route to deployer. metrics may be nil.
func NewApp(cfg types.AppConfig, deployer Deployer, logger *zap.Logger, metrics http.Handler) (*App, error) {
	if deployer == nil {
		return nil, fmt.Errorf("deployer is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	app := &App{
		deployer: deployer,
		logger:   logger,
		cfg:      cfg,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	webhookHandler := githubapp.NewDefaultEventDispatcher(cfg.Github, app)

	router.Handle(githubapp.DefaultWebhookRoute, webhookHandler)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if metrics != nil {
		router.Handle("/metrics", metrics)
	}

	app.server = &http.Server{
		Handler: router,
		Addr:    cfg.Server.Address,
	}

	return app, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := a.server.Shutdown(context.Background()); err != nil {
			a.logger.Error("failed to shut down server", zap.Error(err))
		}
	}()

	a.logger.Info("listening for webhooks",
		zap.String("address", a.server.Addr),
		zap.String("route", githubapp.DefaultWebhookRoute))

	if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (a *App) handlePush(ctx context.Context, eventType, deliveryID string, payload []byte) error {
	push, err := validatePush(eventType, deliveryID, payload)

	if err != nil {
		return err
	}

	result, err := a.deployer.Run(ctx, *push)

	if err != nil {
		return fmt.Errorf("deploy for %s@%s failed: %w", push.Slug, push.CommitID, err)
	}

	a.logger.Debug("push handled",
		zap.String("repo", push.Slug),
		zap.String("sha", push.CommitID),
		zap.Stringer("outcome", result.Outcome))

	return nil
}

func (a *App) Handle(ctx context.Context, eventType, deliveryID string, payload []byte) error {
	switch eventType {
	case "push":
		return a.handlePush(ctx, eventType, deliveryID, payload)
	}

	return nil
}

func (a *App) Handles() []string {
	return []string{
		"installation",
		"push",
	}
}
