package checks

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
	"github.com/palantir/go-githubapp/githubapp"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
)

// CheckRunOptions identifies a check run and carries the fields written to
// it. Conclusion and the output fields are only sent when a run is updated.
type CheckRunOptions struct {
	InstallationID int64
	Owner          string
	Repo           string
	Name           string
	SHA            string
	Status         *string
	Conclusion     *string
	Title          *string
	Summary        *string
	Text           string
}

// output is nil unless both title and summary are set, since GitHub rejects
// an output missing either.
func (o CheckRunOptions) output() *github.CheckRunOutput {
	if o.Title == nil || o.Summary == nil {
		return nil
	}

	output := &github.CheckRunOutput{
		Title:   o.Title,
		Summary: o.Summary,
	}

	if o.Text != "" {
		output.Text = github.String(o.Text)
	}

	return output
}

// Notifier creates and finalizes check runs through the app's installation
// clients.
type Notifier struct {
	GithubClient githubapp.ClientCreator
}

func (s *Notifier) installationClient(opts CheckRunOptions) (*github.Client, error) {
	client, err := s.GithubClient.NewInstallationClient(opts.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for installation %d: %w", opts.InstallationID, err)
	}

	return client, nil
}

// CreateCheck opens a check run on opts.SHA. Status defaults to in_progress.
func (s *Notifier) CreateCheck(ctx context.Context, opts CheckRunOptions) (int64, error) {
	client, err := s.installationClient(opts)
	if err != nil {
		return -1, err
	}

	status := opts.Status
	if status == nil {
		status = github.String(StatusInProgress)
	}

	checkRun, _, err := client.Checks.CreateCheckRun(ctx, opts.Owner, opts.Repo, github.CreateCheckRunOptions{
		Name:    opts.Name,
		HeadSHA: opts.SHA,
		Status:  status,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to create check run on %s/%s: %w", opts.Owner, opts.Repo, err)
	}

	return checkRun.GetID(), nil
}

func (s *Notifier) UpdateCheck(ctx context.Context, id int64, opts CheckRunOptions) error {
	client, err := s.installationClient(opts)
	if err != nil {
		return err
	}

	_, _, err = client.Checks.UpdateCheckRun(ctx, opts.Owner, opts.Repo, id, github.UpdateCheckRunOptions{
		Name:       opts.Name,
		Status:     opts.Status,
		Conclusion: opts.Conclusion,
		Output:     opts.output(),
	})
	if err != nil {
		return fmt.Errorf("failed to update check run %d on %s/%s: %w", id, opts.Owner, opts.Repo, err)
	}

	return nil
}
