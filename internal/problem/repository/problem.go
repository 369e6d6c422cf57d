package repository

import (
	"context"
	"net/http"
	"net/url"

	httpclient "codearena/internal/common/http"
	"codearena/internal/problem/model"
	pkgerrors "codearena/pkg/errors"
)

const problemsPath = "/problems/"

// ProblemRepository reads the problem catalog from the backend.
type ProblemRepository interface {
	List(ctx context.Context, userID, token string) ([]model.Problem, error)
	Get(ctx context.Context, problemID string) (model.Problem, error)
}

type HTTPProblemRepository struct {
	client *httpclient.Client
}

func NewProblemRepository(client *httpclient.Client) *HTTPProblemRepository {
	return &HTTPProblemRepository{client: client}
}

// List fetches GET /problems/. A non-empty userID asks the backend to
// annotate solved/attempts/best_score for that user.
func (r *HTTPProblemRepository) List(ctx context.Context, userID, token string) ([]model.Problem, error) {
	path := problemsPath
	if userID != "" {
		path += "?" + url.Values{"user_id": {userID}}.Encode()
	}
	var resp model.ListResponse
	if err := r.client.DoJSON(ctx, http.MethodGet, path, httpclient.Bearer(token), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Problems == nil {
		return []model.Problem{}, nil
	}
	return resp.Problems, nil
}

func (r *HTTPProblemRepository) Get(ctx context.Context, problemID string) (model.Problem, error) {
	if problemID == "" {
		return model.Problem{}, pkgerrors.ValidationError("problem_id", "must not be empty")
	}
	var resp model.DetailResponse
	err := r.client.DoJSON(ctx, http.MethodGet, problemsPath+url.PathEscape(problemID), nil, nil, &resp)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.NotFound) {
			return model.Problem{}, pkgerrors.Wrap(err, pkgerrors.ProblemNotFound)
		}
		return model.Problem{}, err
	}
	if resp.Problem == nil {
		return model.Problem{}, pkgerrors.Newf(pkgerrors.ProblemNotFound, "problem %s not found", problemID)
	}
	return *resp.Problem, nil
}
