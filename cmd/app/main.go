package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/palantir/go-githubapp/githubapp"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"

	"github.com/khrj/repl.deploy/app"
	"github.com/khrj/repl.deploy/checks"
	"github.com/khrj/repl.deploy/deploy"
	"github.com/khrj/repl.deploy/signer"
	"github.com/khrj/repl.deploy/types"
	"github.com/khrj/repl.deploy/util"
)

func newLogger(cfg types.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()

	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)

	if err != nil {
		return nil, err
	}

	zapCfg.Level = level

	return zapCfg.Build()
}

func loadSigner(ctx context.Context, cfg types.SigningConfig) (*signer.Signer, error) {
	source := signer.KeySource{}

	if signer.IsS3URI(cfg.Key) {
		client, err := util.NewS3Client(ctx)

		if err != nil {
			return nil, err
		}

		source.Objects = client
	}

	pemBytes, err := source.Resolve(ctx, cfg.Key)

	if err != nil {
		return nil, err
	}

	return signer.NewFromPEM(pemBytes, cfg.Passphrase)
}

func main() {
	configPath := flag.String("config", "./conf/app.yaml", "path to the app config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := types.ParseAppConfig(*configPath)

	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Log)

	if err != nil {
		panic(err)
	}

	defer func() { _ = logger.Sync() }()

	requestSigner, err := loadSigner(ctx, cfg.Signing)

	if err != nil {
		logger.Fatal("failed to load signing key", zap.Error(err))
	}

	cc, err := githubapp.NewDefaultCachingClientCreator(cfg.Github)

	if err != nil {
		logger.Fatal("failed to create github client creator", zap.Error(err))
	}

	notifier := &checks.Notifier{GithubClient: cc}

	var (
		scope          = tally.NoopScope
		metricsHandler http.Handler
	)

	if cfg.Metrics.IsEnabled() {
		var closer io.Closer
		scope, closer, metricsHandler = util.NewPrometheusScope(logger, cfg.Metrics.Prefix)
		defer func() { _ = closer.Close() }()
	}

	pipeline, err := deploy.NewPipeline(deploy.Options{
		Fetcher:    deploy.NewHTTPConfigFetcher(cfg.Deploy.ConfigHost, nil),
		Dispatcher: deploy.NewHTTPDispatcher(nil),
		Signer:     requestSigner,
		Checks:     notifier,
		CheckName:  cfg.Deploy.CheckName,
		Logger:     logger,
		Metrics:    scope,
		Now:        time.Now,
	})

	if err != nil {
		logger.Fatal("failed to create deploy pipeline", zap.Error(err))
	}

	a, err := app.NewApp(cfg, pipeline, logger, metricsHandler)

	if err != nil {
		logger.Fatal("failed to create app", zap.Error(err))
	}

	if err := a.Start(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
