package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"codearena/internal/admin/model"
	httpclient "codearena/internal/common/http"
	problemmodel "codearena/internal/problem/model"
	pkgerrors "codearena/pkg/errors"
)

const (
	statsPath    = "/admin/stats"
	usersPath    = "/admin/users"
	problemsPath = "/admin/problems"
)

// AdminRepository wraps the admin endpoints. Every call needs an admin bearer token.
type AdminRepository interface {
	Stats(ctx context.Context, token string) (model.Stats, error)
	Users(ctx context.Context, token string) ([]model.UserSummary, error)
	CreateProblem(ctx context.Context, token string, in problemmodel.CreateInput) (problemmodel.Problem, error)
	DeleteProblem(ctx context.Context, token string, problemID string) error
}

type HTTPAdminRepository struct {
	client *httpclient.Client
}

func NewAdminRepository(client *httpclient.Client) *HTTPAdminRepository {
	return &HTTPAdminRepository{client: client}
}

func (r *HTTPAdminRepository) Stats(ctx context.Context, token string) (model.Stats, error) {
	var stats model.Stats
	if err := r.client.DoJSON(ctx, http.MethodGet, statsPath, httpclient.Bearer(token), nil, &stats); err != nil {
		return model.Stats{}, err
	}
	return stats, nil
}

func (r *HTTPAdminRepository) Users(ctx context.Context, token string) ([]model.UserSummary, error) {
	var resp model.UsersResponse
	if err := r.client.DoJSON(ctx, http.MethodGet, usersPath, httpclient.Bearer(token), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Users == nil {
		return []model.UserSummary{}, nil
	}
	return resp.Users, nil
}

// CreateProblem accepts either {"problem": {...}} or a bare problem object back.
func (r *HTTPAdminRepository) CreateProblem(ctx context.Context, token string, in problemmodel.CreateInput) (problemmodel.Problem, error) {
	var raw json.RawMessage
	if err := r.client.DoJSON(ctx, http.MethodPost, problemsPath, httpclient.Bearer(token), in, &raw); err != nil {
		return problemmodel.Problem{}, err
	}
	var created problemmodel.Problem
	if len(bytes.TrimSpace(raw)) == 0 {
		return created, nil
	}
	var envelope problemmodel.DetailResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Problem != nil {
		return *envelope.Problem, nil
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return problemmodel.Problem{}, pkgerrors.Wrapf(err, pkgerrors.MalformedResponse, "decode created problem failed: %v", err)
	}
	return created, nil
}

func (r *HTTPAdminRepository) DeleteProblem(ctx context.Context, token string, problemID string) error {
	return r.client.DoJSON(ctx, http.MethodDelete, problemsPath+"/"+url.PathEscape(problemID), httpclient.Bearer(token), nil, nil)
}
