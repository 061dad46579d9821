package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
)

const fallbackDisplayName = "Admin"

// Worker identifies the reviewer acting on the queue.
type Worker struct {
	UserID      string
	DisplayName string
	PhotoURL    string
	// AuthToken is the raw admin token presented with the request, if any.
	AuthToken string
}

// Authorizer decides whether a user may lease tasks. Implementations return
// nil to grant and an error wrapping ErrUnauthorized to deny.
type Authorizer interface {
	RequireAdmin(ctx context.Context, userID, authToken string) error
}

// AllowList grants the configured user ids.
type AllowList map[string]struct{}

func NewAllowList(ids []string) AllowList {
	list := make(AllowList, len(ids))
	for _, id := range ids {
		if id != "" {
			list[id] = struct{}{}
		}
	}
	return list
}

func (a AllowList) RequireAdmin(_ context.Context, userID, _ string) error {
	if _, ok := a[userID]; ok {
		return nil
	}
	return ErrUnauthorized
}

// StaticToken grants any caller presenting the shared admin token. An empty
// token grants nobody.
type StaticToken string

func (s StaticToken) RequireAdmin(_ context.Context, _, authToken string) error {
	if s == "" || authToken == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s), []byte(authToken)) == 1 {
		return nil
	}
	return ErrUnauthorized
}

// RoleAuthorizer grants users whose stored role is admin.
type RoleAuthorizer struct {
	repo repository.Repository
}

func NewRoleAuthorizer(repo repository.Repository) *RoleAuthorizer {
	return &RoleAuthorizer{repo: repo}
}

func (r *RoleAuthorizer) RequireAdmin(ctx context.Context, userID, _ string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	user, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("admin role lookup failed", "worker_id", userID, "error", err)
		}
		return ErrUnauthorized
	}
	if user.Role != models.RoleAdmin {
		return ErrUnauthorized
	}
	return nil
}

// AnyOf grants when any member grants. An empty AnyOf denies everyone.
type AnyOf []Authorizer

func (a AnyOf) RequireAdmin(ctx context.Context, userID, authToken string) error {
	for _, authz := range a {
		if authz.RequireAdmin(ctx, userID, authToken) == nil {
			return nil
		}
	}
	return ErrUnauthorized
}

type Profile struct {
	DisplayName string
	PhotoURL    string
}

// ProfileLookup resolves reviewer profiles for audit entries. A nil profile
// with a nil error means "unknown user".
type ProfileLookup interface {
	GetUserProfile(ctx context.Context, userID string) (*Profile, error)
}

type NoProfiles struct{}

func (NoProfiles) GetUserProfile(context.Context, string) (*Profile, error) {
	return nil, nil
}

// RepositoryProfiles reads profiles from the users table.
type RepositoryProfiles struct {
	repo repository.Repository
}

func NewRepositoryProfiles(repo repository.Repository) *RepositoryProfiles {
	return &RepositoryProfiles{repo: repo}
}

func (p *RepositoryProfiles) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := p.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Profile{DisplayName: user.DisplayName, PhotoURL: user.PhotoURL}, nil
}

// resolveDisplayName never fails; lookup problems degrade to "Admin".
func resolveDisplayName(ctx context.Context, lookup ProfileLookup, userID string) string {
	if lookup == nil {
		return fallbackDisplayName
	}
	profile, err := lookup.GetUserProfile(ctx, userID)
	if err != nil {
		slog.Warn("profile lookup failed", "worker_id", userID, "error", err)
		return fallbackDisplayName
	}
	if profile == nil || profile.DisplayName == "" {
		return fallbackDisplayName
	}
	return profile.DisplayName
}
