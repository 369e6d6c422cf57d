package repository

import (
	"context"
	"net/http"
	"net/url"
	"time"

	httpclient "codearena/internal/common/http"
	"codearena/internal/submit/model"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/metrics"
)

const (
	runPath    = "/run/"
	submitPath = "/submit/"
)

// JudgeRepository talks to the remote judge.
type JudgeRepository interface {
	Run(ctx context.Context, problemID string, req model.Request) (model.RunResult, error)
	Submit(ctx context.Context, problemID string, req model.Request, token string) (model.SubmissionResult, error)
}

// HTTPJudgeRepository posts to /run/{id} and /submit/{id}. Judge calls are
// slow, so the client it is given should carry no timeout of its own.
type HTTPJudgeRepository struct {
	client *httpclient.Client
}

func NewJudgeRepository(client *httpclient.Client) *HTTPJudgeRepository {
	return &HTTPJudgeRepository{client: client}
}

// Run executes the sample case. No credential is sent.
func (r *HTTPJudgeRepository) Run(ctx context.Context, problemID string, req model.Request) (model.RunResult, error) {
	var out model.RunResult
	start := time.Now()
	err := r.client.DoJSON(ctx, http.MethodPost, runPath+url.PathEscape(problemID), nil, req, &out)
	metrics.JudgeLatency.WithLabelValues("run").Observe(time.Since(start).Seconds())
	if err != nil {
		return model.RunResult{}, judgeError(err)
	}
	return out, nil
}

// Submit runs the full evaluation with the caller's bearer token.
func (r *HTTPJudgeRepository) Submit(ctx context.Context, problemID string, req model.Request, token string) (model.SubmissionResult, error) {
	var out model.SubmissionResult
	start := time.Now()
	err := r.client.DoJSON(ctx, http.MethodPost, submitPath+url.PathEscape(problemID), httpclient.Bearer(token), req, &out)
	metrics.JudgeLatency.WithLabelValues("submit").Observe(time.Since(start).Seconds())
	if err != nil {
		return model.SubmissionResult{}, judgeError(err)
	}
	return out, nil
}

// judgeError keeps transport failures as they are, maps 401/403 to
// AuthorizationRequired and treats any other rejection as a judge failure.
func judgeError(err error) error {
	switch httpclient.StatusOf(err) {
	case 0:
		if pkgerrors.Is(err, pkgerrors.TransportFailed) {
			return err
		}
		return pkgerrors.Wrap(err, pkgerrors.JudgeFailed)
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.Wrap(err, pkgerrors.AuthorizationRequired)
	default:
		return pkgerrors.Wrap(err, pkgerrors.JudgeFailed)
	}
}
