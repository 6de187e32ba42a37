package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"

	"github.com/khrj/repl.deploy/checks"
	"github.com/khrj/repl.deploy/signer"
	"github.com/khrj/repl.deploy/util"
)

const (
	successTitle   = "Completed request to redeploy repl"
	successSummary = "Changes should reflect soon (once the repl finishes restarting)"
)

const (
	outcomeSkipped           = "skipped"
	outcomeSuccess           = "success"
	outcomeInvalidConfig     = "invalid_config"
	outcomeConfigFetchFailed = "config_fetch_failed"
	outcomeReplRequestFailed = "repl_request_failed"
	outcomeError             = "error"
)

// PushEvent is the part of a push webhook the pipeline needs.
type PushEvent struct {
	InstallationID int64
	DeliveryID     string
	Owner          string
	Repo           string
	Slug           string
	CommitID       string
	Deleted        bool
}

type CheckReporter interface {
	CreateCheck(ctx context.Context, opts checks.CheckRunOptions) (int64, error)
	UpdateCheck(ctx context.Context, id int64, opts checks.CheckRunOptions) error
}

type RequestSigner interface {
	Sign(body []byte) (string, error)
}

type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result describes a run that reached a terminal state. Failure is set only
// when Outcome is OutcomeFailed; CheckID is zero for skipped runs.
//
// When Run also returns an error, only CheckID is meaningful. A non-zero
// CheckID then names a check run that was created but never concluded and is
// still in_progress on GitHub; the caller decides whether to close it.
type Result struct {
	Outcome Outcome
	CheckID int64
	Failure *Failure
}

type Options struct {
	Fetcher    ConfigFetcher
	Dispatcher Dispatcher
	Signer     RequestSigner
	Checks     CheckReporter
	CheckName  string
	Logger     *zap.Logger
	Metrics    tally.Scope
	Now        func() time.Time
}

type Pipeline struct {
	fetcher    ConfigFetcher
	dispatcher Dispatcher
	signer     RequestSigner
	checks     CheckReporter
	checkName  string
	logger     *zap.Logger
	metrics    tally.Scope
	now        func() time.Time
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("config fetcher is required")
	}

	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	if opts.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}

	if opts.Checks == nil {
		return nil, fmt.Errorf("check reporter is required")
	}

	if opts.CheckName == "" {
		return nil, fmt.Errorf("check name is required")
	}

	p := &Pipeline{
		fetcher:    opts.Fetcher,
		dispatcher: opts.Dispatcher,
		signer:     opts.Signer,
		checks:     opts.Checks,
		checkName:  opts.CheckName,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}

	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	if p.metrics == nil {
		p.metrics = tally.NoopScope
	}

	if p.now == nil {
		p.now = time.Now
	}

	return p, nil
}

// Run takes one push event from config lookup to a concluded check run. A
// missing config file ends the run silently. Errors that are not a Failure
// are returned, and the check run (if any) is left to the caller.
func (p *Pipeline) Run(ctx context.Context, event PushEvent) (Result, error) {
	logger := p.logger.With(
		zap.String("repo", event.Slug),
		zap.String("sha", event.CommitID),
		zap.String("delivery_id", event.DeliveryID),
	)

	if event.Deleted {
		logger.Debug("ignoring push that deletes a ref")
		p.count(outcomeSkipped)
		return Result{Outcome: OutcomeSkipped}, nil
	}

	start := p.now()

	resp, err := p.fetcher.Fetch(ctx, event.Slug, event.CommitID)
	if err != nil {
		p.count(outcomeError)
		return Result{}, err
	}

	if resp.NotFound() {
		logger.Debug("repository has no deploy config", zap.String("config_url", resp.URL))
		p.count(outcomeSkipped)
		return Result{Outcome: OutcomeSkipped}, nil
	}

	opts := p.checkOptions(event)
	opts.Status = util.StringPtr(checks.StatusInProgress)

	checkID, err := p.checks.CreateCheck(ctx, opts)
	if err != nil {
		p.count(outcomeError)
		return Result{}, err
	}

	logger = logger.With(zap.Int64("check_id", checkID))

	endpoint, failure, err := p.deploy(ctx, logger, resp)
	if err != nil {
		logger.Error("deploy failed with an unclassified error", zap.Error(err))
		p.count(outcomeError)
		return Result{CheckID: checkID}, err
	}

	if err := p.conclude(ctx, checkID, event, resp.URL, endpoint, failure); err != nil {
		logger.Error("failed to conclude check run", zap.Error(err))
		p.count(outcomeError)
		return Result{CheckID: checkID}, err
	}

	result := Result{Outcome: OutcomeSucceeded, CheckID: checkID, Failure: failure}
	if failure != nil {
		result.Outcome = OutcomeFailed
	}

	outcome := outcomeSuccess
	if failure != nil {
		outcome = failure.Kind.outcome()
		logger.Info("deploy failed", zap.String("outcome", outcome), zap.String("reason", failure.Error()))
	} else {
		logger.Info("deploy requested", zap.String("outcome", outcome))
	}

	p.count(outcome)
	p.metrics.Timer("deploy_latency").Record(p.now().Sub(start))

	return result, nil
}

// deploy runs validate, sign and dispatch. A classified failure comes back as
// *Failure with a nil error; anything else is returned as the error.
func (p *Pipeline) deploy(ctx context.Context, logger *zap.Logger, resp *ConfigResponse) (any, *Failure, error) {
	if !resp.OK() {
		return nil, ConfigFetchFailed(fmt.Sprintf("HTTP request failed with code: %d", resp.StatusCode)), nil
	}

	cfg, err := ParseConfig(resp.Body)
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) {
			return nil, failure, nil
		}
		return nil, nil, err
	}

	body, err := signer.NewRequest(p.now(), cfg.Endpoint).Encode()
	if err != nil {
		return cfg.Endpoint, nil, err
	}

	signature, err := p.signer.Sign(body)
	if err != nil {
		return cfg.Endpoint, nil, err
	}

	if err := p.dispatcher.Dispatch(ctx, cfg.Endpoint, body, signature); err != nil {
		logger.Warn("redeploy request failed", zap.Error(err))
		return cfg.Endpoint, ReplRequestFailed(), nil
	}

	return cfg.Endpoint, nil, nil
}

func (p *Pipeline) conclude(ctx context.Context, checkID int64, event PushEvent, configURL string, endpoint any, failure *Failure) error {
	report := checks.Report{
		Details: []checks.Detail{
			{Name: "Commit", Value: event.CommitID},
			{Name: "Config", Value: configURL},
		},
	}

	if endpoint != nil {
		report.Details = append(report.Details, checks.Detail{Name: "Endpoint", Value: fmt.Sprint(endpoint)})
	}

	opts := p.checkOptions(event)
	opts.Status = util.StringPtr(checks.StatusCompleted)

	if failure == nil {
		report.Heading = successTitle
		opts.Conclusion = util.StringPtr(checks.ConclusionSuccess)
		opts.Title = util.StringPtr(successTitle)
		opts.Summary = util.StringPtr(successSummary)
	} else {
		report.Heading = failure.Kind.Title()
		report.Error = failure.Error()
		opts.Conclusion = util.StringPtr(checks.ConclusionFailure)
		opts.Title = util.StringPtr(failure.Kind.Title())
		opts.Summary = util.StringPtr(failure.Error())
	}

	text, err := report.Markdown()
	if err != nil {
		return fmt.Errorf("failed to render check report: %w", err)
	}

	opts.Text = text

	return p.checks.UpdateCheck(ctx, checkID, opts)
}

func (p *Pipeline) checkOptions(event PushEvent) checks.CheckRunOptions {
	return checks.CheckRunOptions{
		InstallationID: event.InstallationID,
		Owner:          event.Owner,
		Repo:           event.Repo,
		Name:           p.checkName,
		SHA:            event.CommitID,
	}
}

func (p *Pipeline) count(outcome string) {
	p.metrics.Tagged(map[string]string{"outcome": outcome}).Counter("deploys").Inc(1)
}
