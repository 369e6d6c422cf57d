package repository

import (
	"context"
	"net/http"

	httpclient "codearena/internal/common/http"
	"codearena/internal/user/model"
	pkgerrors "codearena/pkg/errors"
)

const profilePath = "/auth/me"

// ProfileRepository fetches the backend-owned profile for a bearer token.
type ProfileRepository struct {
	client *httpclient.Client
}

func NewProfileRepository(client *httpclient.Client) *ProfileRepository {
	return &ProfileRepository{client: client}
}

// FetchProfile takes the token explicitly: reconciliation must use the token of
// the event being reconciled, not whatever the cache holds by the time it runs.
func (r *ProfileRepository) FetchProfile(ctx context.Context, token string) (model.Profile, error) {
	var profile model.Profile
	if token == "" {
		return profile, pkgerrors.AuthorizationError("missing session token")
	}
	if err := r.client.DoJSON(ctx, http.MethodGet, profilePath, httpclient.Bearer(token), nil, &profile); err != nil {
		return model.Profile{}, err
	}
	if profile.ID == "" {
		return model.Profile{}, pkgerrors.Newf(pkgerrors.MalformedResponse, "profile response has no id")
	}
	return profile, nil
}
