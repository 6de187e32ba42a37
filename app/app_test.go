package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/palantir/go-githubapp/githubapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/khrj/repl.deploy/deploy"
	"github.com/khrj/repl.deploy/types"
)

const webhookSecret = "s3cr3t"

type fakeDeployer struct {
	mu     sync.Mutex
	events []deploy.PushEvent
	err    error
}

func (f *fakeDeployer) Run(_ context.Context, event deploy.PushEvent) (deploy.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)

	if f.err != nil {
		return deploy.Result{}, f.err
	}

	return deploy.Result{Outcome: deploy.OutcomeSucceeded, CheckID: 7}, nil
}

func (f *fakeDeployer) calls() []deploy.PushEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deploy.PushEvent(nil), f.events...)
}

func testConfig() types.AppConfig {
	cfg := types.AppConfig{}
	cfg.Github.App.WebhookSecret = webhookSecret
	cfg.Server.Address = "127.0.0.1:0"
	return cfg
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(eventType, payload, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, githubapp.DefaultWebhookRoute, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", signature)
	return req
}

func newTestApp(t *testing.T, deployer Deployer, metrics http.Handler) *App {
	t.Helper()

	a, err := NewApp(testConfig(), deployer, zaptest.NewLogger(t), metrics)
	require.NoError(t, err)
	return a
}

func TestNewAppRequiresDeployer(t *testing.T) {
	_, err := NewApp(testConfig(), nil, nil, nil)
	require.Error(t, err)
}

func TestWebhookPush(t *testing.T) {
	deployer := &fakeDeployer{}
	a := newTestApp(t, deployer, nil)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, webhookRequest("push", pushPayload, sign(webhookSecret, pushPayload)))

	assert.Equal(t, http.StatusOK, rec.Code)

	calls := deployer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, deploy.PushEvent{
		InstallationID: 42,
		DeliveryID:     "delivery-1",
		Owner:          "khrj",
		Repo:           "repl.deploy",
		Slug:           "khrj/repl.deploy",
		CommitID:       "abc123",
	}, calls[0])
}

func TestWebhookDeployerError(t *testing.T) {
	deployer := &fakeDeployer{err: errors.New("signing failed")}
	a := newTestApp(t, deployer, nil)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, webhookRequest("push", pushPayload, sign(webhookSecret, pushPayload)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, deployer.calls(), 1)
}

func TestWebhookBadSignature(t *testing.T) {
	deployer := &fakeDeployer{}
	a := newTestApp(t, deployer, nil)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, webhookRequest("push", pushPayload, sign("wrong", pushPayload)))

	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	assert.Empty(t, deployer.calls())
}

func TestWebhookUnhandledEvent(t *testing.T) {
	deployer := &fakeDeployer{}
	a := newTestApp(t, deployer, nil)

	payload := `{"action":"opened"}`
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, webhookRequest("issues", payload, sign(webhookSecret, payload)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, deployer.calls())
}

func TestWebhookInstallationEventIgnored(t *testing.T) {
	deployer := &fakeDeployer{}
	a := newTestApp(t, deployer, nil)

	payload := `{"action":"created","installation":{"id":42}}`
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, webhookRequest("installation", payload, sign(webhookSecret, payload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, deployer.calls())
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, &fakeDeployer{}, nil)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	t.Run("mounted when a handler is given", func(t *testing.T) {
		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("repldeploy_deploys 1"))
		})
		a := newTestApp(t, &fakeDeployer{}, metrics)

		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "repldeploy_deploys 1", rec.Body.String())
	})

	t.Run("absent otherwise", func(t *testing.T) {
		a := newTestApp(t, &fakeDeployer{}, nil)

		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStartStopsOnCancel(t *testing.T) {
	a := newTestApp(t, &fakeDeployer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- a.Start(ctx)
	}()

	cancel()
	require.NoError(t, <-done)
}
