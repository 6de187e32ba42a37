package app

import (
	"encoding/json"
	"fmt"

	github2 "github.com/google/go-github/v66/github"

	"github.com/khrj/repl.deploy/deploy"
)

func validatePush(eventType, deliveryID string, payload []byte) (*deploy.PushEvent, error) {
	if eventType != "push" {
		return nil, fmt.Errorf("event type %s is not a push", eventType)
	}

	var event github2.PushEvent

	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	installation := event.GetInstallation()

	if installation == nil {
		return nil, fmt.Errorf("installation id for %s is nil", deliveryID)
	}

	repo := event.GetRepo()

	if repo == nil {
		return nil, fmt.Errorf("repo for %s is nil", deliveryID)
	}

	owner := repo.GetOwner()

	if owner == nil {
		return nil, fmt.Errorf("owner for %s is nil", deliveryID)
	}

	// push payloads carry the owner's name; fall back to login for
	// payloads shaped like the rest of the API.
	ownerName := owner.GetName()

	if ownerName == "" {
		ownerName = owner.GetLogin()
	}

	if ownerName == "" {
		return nil, fmt.Errorf("owner name for %s is empty", deliveryID)
	}

	if repo.GetName() == "" || repo.GetFullName() == "" {
		return nil, fmt.Errorf("repo name for %s is empty", deliveryID)
	}

	after := event.GetAfter()

	if after == "" {
		return nil, fmt.Errorf("head commit for %s is empty", deliveryID)
	}

	return &deploy.PushEvent{
		InstallationID: installation.GetID(),
		DeliveryID:     deliveryID,
		Owner:          ownerName,
		Repo:           repo.GetName(),
		Slug:           repo.GetFullName(),
		CommitID:       after,
		Deleted:        event.GetDeleted(),
	}, nil
}
