package service

import (
	"context"
	"strings"
	"sync"

	"codearena/internal/submit/model"
	"codearena/internal/submit/repository"
	usermodel "codearena/internal/user/model"
	userrepo "codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/metrics"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	runFailedMessage    = "Execution failed"
	submitFailedMessage = "Submission failed"
)

// SessionReader is the workspace's view of the session controller.
type SessionReader interface {
	State() usermodel.SessionState
}

// CatalogInvalidator drops cached problem lists after a judged submission.
type CatalogInvalidator interface {
	Invalidate()
}

// WorkspaceListener observes workspace changes.
type WorkspaceListener func(ws model.WorkspaceSession)

// WorkspaceController drives one problem-solving view through Run and Submit.
// Judge calls run without the lock held; their results are applied only if the
// workspace they were issued for is still the active one.
type WorkspaceController struct {
	judge   repository.JudgeRepository
	session SessionReader
	creds   userrepo.CredentialReader
	catalog CatalogInvalidator

	mu        sync.Mutex
	gen       uint64
	ws        *model.WorkspaceSession
	nextID    int
	listeners map[int]WorkspaceListener
}

func NewWorkspaceController(judge repository.JudgeRepository, session SessionReader, creds userrepo.CredentialReader, catalog CatalogInvalidator) *WorkspaceController {
	return &WorkspaceController{
		judge:     judge,
		session:   session,
		creds:     creds,
		catalog:   catalog,
		listeners: make(map[int]WorkspaceListener),
	}
}

// Open replaces the active workspace with a fresh one for problemID.
func (c *WorkspaceController) Open(problemID string) (model.WorkspaceSession, error) {
	problemID = strings.TrimSpace(problemID)
	if problemID == "" {
		return model.WorkspaceSession{}, pkgerrors.ValidationError("problem_id", "must not be empty")
	}
	c.mu.Lock()
	c.gen++
	c.ws = model.NewWorkspaceSession(model.Key{ProblemID: problemID, Generation: c.gen})
	snap := c.ws.Clone()
	c.mu.Unlock()

	c.notify(snap)
	return snap, nil
}

// Close discards the active workspace. In-flight results for it will be dropped.
func (c *WorkspaceController) Close() {
	c.mu.Lock()
	c.ws = nil
	c.mu.Unlock()
}

// Snapshot returns a copy of the active workspace.
func (c *WorkspaceController) Snapshot() (model.WorkspaceSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return model.WorkspaceSession{}, false
	}
	return c.ws.Clone(), true
}

// SelectLanguage switches language while idle, resetting the buffer to the
// language template and clearing both results.
func (c *WorkspaceController) SelectLanguage(lang model.Language) error {
	if !lang.Valid() {
		return pkgerrors.Newf(pkgerrors.LanguageNotSupported, "language %q is not supported", lang)
	}
	c.mu.Lock()
	if c.ws == nil {
		c.mu.Unlock()
		return pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	if c.ws.Phase != model.PhaseIdle {
		c.mu.Unlock()
		return pkgerrors.Newf(pkgerrors.OperationInProgress, "cannot switch language while %s", c.ws.Phase)
	}
	c.ws.Language = lang
	c.ws.Code = lang.Template()
	c.ws.LastRun = nil
	c.ws.LastSubmission = nil
	snap := c.ws.Clone()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// SetCode replaces the code buffer.
func (c *WorkspaceController) SetCode(code string) error {
	c.mu.Lock()
	if c.ws == nil {
		c.mu.Unlock()
		return pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	c.ws.Code = code
	snap := c.ws.Clone()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// SelectTab switches the workspace between its code and result views.
func (c *WorkspaceController) SelectTab(tab model.Tab) error {
	c.mu.Lock()
	if c.ws == nil {
		c.mu.Unlock()
		return pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	c.ws.Tab = tab
	snap := c.ws.Clone()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Run executes the buffer against the sample case. Judge and transport
// failures come back inside the RunResult; the returned error is reserved for
// local rejections and for results dropped because the workspace changed.
func (c *WorkspaceController) Run(ctx context.Context) (model.RunResult, error) {
	key, req, snap, err := c.begin(model.PhaseRunning)
	if err != nil {
		return model.RunResult{}, err
	}
	c.notify(snap)
	ctx = context.WithValue(ctx, contextkey.ProblemID, key.ProblemID)

	result, err := c.judge.Run(ctx, key.ProblemID, req)
	outcome := "passed"
	if err != nil {
		logger.Warn(ctx, "run failed", zap.Error(err))
		result = model.RunResult{IsError: true, Error: failureMessage(err, runFailedMessage)}
		outcome = outcomeOf(err)
	} else if result.Failed() {
		result.IsError = true
		outcome = "judge_error"
	} else if !result.Passed {
		outcome = "wrong_answer"
	}

	c.mu.Lock()
	if c.ws == nil || c.ws.Key != key {
		c.mu.Unlock()
		return model.RunResult{}, c.discard(ctx, "run")
	}
	c.ws.LastRun = &result
	c.ws.Phase = model.PhaseIdle
	snap = c.ws.Clone()
	c.mu.Unlock()

	metrics.JudgeRequests.WithLabelValues("run", outcome).Inc()
	c.notify(snap)
	return result, nil
}

// Submit sends the buffer for full evaluation with the current credential.
// A missing session or a 401/403 from the judge yields AuthorizationRequired;
// every other failure is folded into SubmissionResult.Error.
func (c *WorkspaceController) Submit(ctx context.Context) (model.SubmissionResult, error) {
	state := c.session.State()
	if state.Phase != usermodel.SessionAuthenticated {
		return model.SubmissionResult{}, pkgerrors.AuthorizationError("please sign in to submit your solution")
	}
	token := c.creds.Credential()
	if token == "" {
		return model.SubmissionResult{}, pkgerrors.AuthorizationError("please sign in to submit your solution")
	}
	owner := state.UserID()

	key, req, snap, err := c.begin(model.PhaseSubmitting)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	c.notify(snap)
	ctx = context.WithValue(ctx, contextkey.ProblemID, key.ProblemID)
	ctx = context.WithValue(ctx, contextkey.UserID, owner)

	result, err := c.judge.Submit(ctx, key.ProblemID, req, token)
	authFailed := false
	outcome := ""
	if err != nil {
		logger.Warn(ctx, "submit failed", zap.Error(err))
		if pkgerrors.Is(err, pkgerrors.AuthorizationRequired) {
			authFailed = true
		} else {
			result = model.SubmissionResult{Error: failureMessage(err, submitFailedMessage)}
		}
		outcome = outcomeOf(err)
	} else {
		// The judge recorded an attempt; solved flags and counts are stale now.
		if c.catalog != nil {
			c.catalog.Invalidate()
		}
		outcome = verdictOutcome(result.Verdict())
	}

	currentUser := c.session.State().UserID()

	c.mu.Lock()
	if c.ws == nil || c.ws.Key != key {
		c.mu.Unlock()
		return model.SubmissionResult{}, c.discard(ctx, "submit")
	}
	if currentUser != owner {
		// Same view, different user: release the phase but keep no result.
		c.ws.Phase = model.PhaseIdle
		snap = c.ws.Clone()
		c.mu.Unlock()
		c.notify(snap)
		return model.SubmissionResult{}, c.discard(ctx, "submit")
	}
	c.ws.Phase = model.PhaseIdle
	if !authFailed {
		c.ws.LastSubmission = &result
	}
	snap = c.ws.Clone()
	c.mu.Unlock()

	metrics.JudgeRequests.WithLabelValues("submit", outcome).Inc()
	c.notify(snap)
	if authFailed {
		return model.SubmissionResult{}, pkgerrors.AuthorizationError("session expired, please sign in again")
	}
	return result, nil
}

// Subscribe registers fn for workspace changes and returns its cancel func.
func (c *WorkspaceController) Subscribe(fn WorkspaceListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// begin moves the active workspace from Idle into phase, clearing both
// results and switching to the results tab.
func (c *WorkspaceController) begin(phase model.Phase) (model.Key, model.Request, model.WorkspaceSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return model.Key{}, model.Request{}, model.WorkspaceSession{}, pkgerrors.New(pkgerrors.NoActiveWorkspace)
	}
	if c.ws.Phase != model.PhaseIdle {
		return model.Key{}, model.Request{}, model.WorkspaceSession{},
			pkgerrors.Newf(pkgerrors.OperationInProgress, "a %s request is still in flight", c.ws.Phase)
	}
	if strings.TrimSpace(c.ws.Code) == "" {
		return model.Key{}, model.Request{}, model.WorkspaceSession{}, pkgerrors.ValidationError("code", "please write some code first")
	}
	c.ws.Phase = phase
	c.ws.Tab = model.TabResults
	c.ws.LastRun = nil
	c.ws.LastSubmission = nil
	return c.ws.Key, model.Request{Language: c.ws.Language, Code: c.ws.Code}, c.ws.Clone(), nil
}

func (c *WorkspaceController) discard(ctx context.Context, kind string) error {
	logger.Info(ctx, "stale judge result discarded", zap.String("kind", kind))
	metrics.DiscardedResults.WithLabelValues(kind).Inc()
	return pkgerrors.New(pkgerrors.ResultDiscarded)
}

func (c *WorkspaceController) notify(ws model.WorkspaceSession) {
	c.mu.Lock()
	fns := make([]WorkspaceListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ws)
	}
}

// failureMessage prefers the backend's detail and falls back to fallback.
func failureMessage(err error, fallback string) string {
	if e := pkgerrors.GetError(err); e != nil && e.Message != "" {
		return e.Message
	}
	return fallback
}

func outcomeOf(err error) string {
	switch pkgerrors.GetCode(err) {
	case pkgerrors.TransportFailed:
		return "transport_error"
	case pkgerrors.AuthorizationRequired:
		return "unauthorized"
	default:
		return "judge_error"
	}
}

func verdictOutcome(v model.Verdict) string {
	switch v {
	case model.VerdictAccepted:
		return "accepted"
	case model.VerdictWrongAnswer:
		return "wrong_answer"
	default:
		return "judge_error"
	}
}
