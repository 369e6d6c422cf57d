package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codearena/internal/common/ids"
	"codearena/internal/submit/model"
	"codearena/internal/submit/service"
	"codearena/internal/testutil"
	usermodel "codearena/internal/user/model"
	pkgerrors "codearena/pkg/errors"
)

type fakeJudge struct {
	mu         sync.Mutex
	runGate    chan struct{}
	submitGate chan struct{}
	runResult  model.RunResult
	runErr     error
	subResult  model.SubmissionResult
	subErr     error
	lastToken  string
	lastReq    model.Request

	runs    atomic.Int32
	submits atomic.Int32
}

func (j *fakeJudge) Run(ctx context.Context, problemID string, req model.Request) (model.RunResult, error) {
	j.runs.Add(1)
	j.mu.Lock()
	gate := j.runGate
	j.lastReq = req
	j.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return j.runResult, j.runErr
}

func (j *fakeJudge) Submit(ctx context.Context, problemID string, req model.Request, token string) (model.SubmissionResult, error) {
	j.submits.Add(1)
	j.mu.Lock()
	gate := j.submitGate
	j.lastReq = req
	j.lastToken = token
	j.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return j.subResult, j.subErr
}

type fakeSession struct {
	mu    sync.Mutex
	state usermodel.SessionState
	token string
}

func (s *fakeSession) State() usermodel.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) Credential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) signIn(id, token string) {
	s.mu.Lock()
	s.state = usermodel.Authenticated(usermodel.User{ID: ids.ID(id)})
	s.token = token
	s.mu.Unlock()
}

func (s *fakeSession) signOut() {
	s.mu.Lock()
	s.state = usermodel.Anonymous()
	s.token = ""
	s.mu.Unlock()
}

type countingCatalog struct{ n atomic.Int32 }

func (c *countingCatalog) Invalidate() { c.n.Add(1) }

type fixture struct {
	judge   *fakeJudge
	session *fakeSession
	catalog *countingCatalog
	ctrl    *service.WorkspaceController
}

func newFixture() *fixture {
	f := &fixture{
		judge:   &fakeJudge{},
		session: &fakeSession{state: usermodel.Anonymous()},
		catalog: &countingCatalog{},
	}
	f.ctrl = service.NewWorkspaceController(f.judge, f.session, f.session, f.catalog)
	return f
}

func (f *fixture) open(t *testing.T, id string) {
	t.Helper()
	_, err := f.ctrl.Open(id)
	testutil.MustNoError(t, err)
}

func (f *fixture) snapshot(t *testing.T) model.WorkspaceSession {
	t.Helper()
	ws, ok := f.ctrl.Snapshot()
	testutil.AssertTrue(t, ok, "workspace should be open")
	return ws
}

func (f *fixture) waitPhase(t *testing.T, phase model.Phase) {
	t.Helper()
	testutil.Eventually(t, 2*time.Second, func() bool {
		ws, ok := f.ctrl.Snapshot()
		return ok && ws.Phase == phase
	}, "phase "+phase.String())
}

func TestOpenStartsWithDefaultTemplate(t *testing.T) {
	f := newFixture()
	ws, err := f.ctrl.Open("two-sum")
	testutil.MustNoError(t, err)

	testutil.AssertEqual(t, ws.Language, model.LanguagePython)
	testutil.AssertEqual(t, ws.Code, model.LanguagePython.Template())
	testutil.AssertEqual(t, ws.Phase, model.PhaseIdle)
	testutil.AssertEqual(t, ws.Tab, model.TabDescription)

	_, err = f.ctrl.Open("  ")
	testutil.AssertCode(t, err, pkgerrors.ValidationFailed)
}

// Scenario A.
func TestRunWithEmptyBufferIsRejectedLocally(t *testing.T) {
	f := newFixture()
	f.open(t, "two-sum")
	testutil.MustNoError(t, f.ctrl.SetCode(" \n\t "))

	_, err := f.ctrl.Run(context.Background())

	testutil.AssertCode(t, err, pkgerrors.ValidationFailed)
	testutil.AssertEqual(t, f.judge.runs.Load(), int32(0))
	testutil.AssertEqual(t, f.snapshot(t).Phase, model.PhaseIdle)
}

func TestRunStoresResultAndSwitchesTab(t *testing.T) {
	f := newFixture()
	f.judge.runResult = model.RunResult{Passed: true, Input: "1 2", Expected: "3", Output: "3"}
	f.open(t, "two-sum")
	testutil.MustNoError(t, f.ctrl.SetCode("print(3)"))

	res, err := f.ctrl.Run(context.Background())
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, res.Passed, "run passed")

	ws := f.snapshot(t)
	testutil.AssertEqual(t, ws.Tab, model.TabResults)
	testutil.AssertEqual(t, ws.Phase, model.PhaseIdle)
	testutil.AssertEqual(t, ws.LastRun.Output, "3")
	testutil.AssertEqual(t, f.judge.lastReq.Language, model.LanguagePython)
	testutil.AssertEqual(t, f.judge.lastReq.Code, "print(3)")
}

func TestRunFailureIsFoldedIntoResult(t *testing.T) {
	f := newFixture()
	f.judge.runErr = pkgerrors.TransportError(errors.New("connection refused"))
	f.open(t, "two-sum")

	res, err := f.ctrl.Run(context.Background())
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, res.IsError, "transport failure must become an error result")
	testutil.AssertTrue(t, res.Error != "", "error message expected")
	testutil.AssertEqual(t, f.snapshot(t).Phase, model.PhaseIdle)
}

func TestRunJudgeErrorBodyIsMarkedAsError(t *testing.T) {
	f := newFixture()
	f.judge.runResult = model.RunResult{Error: "SyntaxError: invalid syntax"}
	f.open(t, "two-sum")

	res, err := f.ctrl.Run(context.Background())
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, res.IsError, "error body must set IsError")
}

func TestSubmitRequiresSession(t *testing.T) {
	f := newFixture()
	f.open(t, "two-sum")

	_, err := f.ctrl.Submit(context.Background())
	testutil.AssertCode(t, err, pkgerrors.AuthorizationRequired)

	f.session.mu.Lock()
	f.session.state = usermodel.Authenticated(usermodel.User{ID: "u-1"})
	f.session.mu.Unlock()
	_, err = f.ctrl.Submit(context.Background())
	testutil.AssertCode(t, err, pkgerrors.AuthorizationRequired)

	testutil.AssertEqual(t, f.judge.submits.Load(), int32(0))
	testutil.AssertEqual(t, f.snapshot(t).Phase, model.PhaseIdle)
}

// Scenario B.
func TestSubmitAccepted(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.subResult = model.SubmissionResult{
		Passed: true, Score: 100, TotalTests: 3, PassedTests: 3,
		Results: []model.TestCaseResult{{Passed: true, RuntimeMs: 12}, {Passed: true, RuntimeMs: 9}, {Passed: true, RuntimeMs: 15}},
	}
	f.open(t, "two-sum")
	testutil.MustNoError(t, f.ctrl.SetCode("print(sum(map(int, input().split())))"))

	res, err := f.ctrl.Submit(context.Background())
	testutil.MustNoError(t, err)
	testutil.AssertTrue(t, res.Passed, "passed")
	testutil.AssertEqual(t, res.Score, 100)
	testutil.AssertEqual(t, res.Verdict(), model.VerdictAccepted)

	ws := f.snapshot(t)
	testutil.AssertEqual(t, len(ws.LastSubmission.Results), 3)
	testutil.AssertEqual(t, ws.Tab, model.TabResults)
	testutil.AssertEqual(t, f.judge.lastToken, "tok-1")
	testutil.AssertEqual(t, f.catalog.n.Load(), int32(1))
}

func TestSubmitPartialCreditIsWrongAnswerNotError(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.subResult = model.SubmissionResult{Passed: false, Score: 66, TotalTests: 3, PassedTests: 2}
	f.open(t, "two-sum")

	res, err := f.ctrl.Submit(context.Background())
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, res.Verdict(), model.VerdictWrongAnswer)
	testutil.AssertTrue(t, res.PartialCredit(), "partial credit")
	testutil.AssertEqual(t, res.Score, 66)
}

func TestSubmitJudgeFailureIsFolded(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.subErr = pkgerrors.JudgeError("Compilation timed out")
	f.open(t, "two-sum")

	res, err := f.ctrl.Submit(context.Background())
	testutil.MustNoError(t, err)
	testutil.AssertEqual(t, res.Verdict(), model.VerdictJudgeError)
	testutil.AssertEqual(t, res.Error, "Compilation timed out")
	testutil.AssertFalse(t, res.Passed, "failed submission is not passed")
	testutil.AssertEqual(t, f.catalog.n.Load(), int32(0))
}

func TestSubmitUnauthorizedByBackend(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.subErr = pkgerrors.New(pkgerrors.AuthorizationRequired)
	f.open(t, "two-sum")

	_, err := f.ctrl.Submit(context.Background())
	testutil.AssertCode(t, err, pkgerrors.AuthorizationRequired)

	ws := f.snapshot(t)
	testutil.AssertEqual(t, ws.Phase, model.PhaseIdle)
	testutil.AssertTrue(t, ws.LastSubmission == nil, "no submission result on authorization failure")
}

func TestRunAndSubmitAreMutuallyExclusive(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.runGate = make(chan struct{})
	f.open(t, "two-sum")

	done := make(chan struct{})
	go func() {
		_, _ = f.ctrl.Run(context.Background())
		close(done)
	}()
	f.waitPhase(t, model.PhaseRunning)

	_, err := f.ctrl.Submit(context.Background())
	testutil.AssertCode(t, err, pkgerrors.OperationInProgress)
	_, err = f.ctrl.Run(context.Background())
	testutil.AssertCode(t, err, pkgerrors.OperationInProgress)
	testutil.AssertCode(t, f.ctrl.SelectLanguage(model.LanguageJava), pkgerrors.OperationInProgress)

	close(f.judge.runGate)
	<-done
	testutil.AssertEqual(t, f.judge.runs.Load(), int32(1))
	testutil.AssertEqual(t, f.judge.submits.Load(), int32(0))
	testutil.AssertEqual(t, f.snapshot(t).Language, model.LanguagePython)
}

func TestLanguageSwitchResetsBufferAndResults(t *testing.T) {
	f := newFixture()
	f.judge.runResult = model.RunResult{Passed: true}
	f.open(t, "two-sum")
	_, err := f.ctrl.Run(context.Background())
	testutil.MustNoError(t, err)
	testutil.MustNoError(t, f.ctrl.SetCode("custom"))

	for _, lang := range model.Languages {
		testutil.MustNoError(t, f.ctrl.SelectLanguage(lang))
		ws := f.snapshot(t)
		testutil.AssertEqual(t, ws.Code, lang.Template())
		testutil.AssertTrue(t, ws.LastRun == nil, "run result cleared")
		testutil.AssertTrue(t, ws.LastSubmission == nil, "submission result cleared")
	}

	testutil.AssertCode(t, f.ctrl.SelectLanguage("cobol"), pkgerrors.LanguageNotSupported)
}

// Scenario C.
func TestSubmitResultForAbandonedProblemIsDiscarded(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.submitGate = make(chan struct{})
	f.judge.subResult = model.SubmissionResult{Passed: true, Score: 100, TotalTests: 1, PassedTests: 1}
	f.open(t, "two-sum")

	errc := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background())
		errc <- err
	}()
	f.waitPhase(t, model.PhaseSubmitting)

	f.open(t, "three-sum")
	close(f.judge.submitGate)
	testutil.AssertCode(t, <-errc, pkgerrors.ResultDiscarded)

	ws := f.snapshot(t)
	testutil.AssertEqual(t, ws.Key.ProblemID, "three-sum")
	testutil.AssertEqual(t, ws.Phase, model.PhaseIdle)
	testutil.AssertTrue(t, ws.LastSubmission == nil, "new workspace must stay untouched")
	testutil.AssertEqual(t, ws.Tab, model.TabDescription)
}

func TestReopeningSameProblemDiscardsOldRun(t *testing.T) {
	f := newFixture()
	f.judge.runGate = make(chan struct{})
	f.judge.runResult = model.RunResult{Passed: true}
	f.open(t, "two-sum")

	errc := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Run(context.Background())
		errc <- err
	}()
	f.waitPhase(t, model.PhaseRunning)

	f.open(t, "two-sum")
	close(f.judge.runGate)
	testutil.AssertCode(t, <-errc, pkgerrors.ResultDiscarded)
	testutil.AssertTrue(t, f.snapshot(t).LastRun == nil, "reopened workspace has no run result")
}

func TestSubmitResultAfterSignOutIsDiscarded(t *testing.T) {
	f := newFixture()
	f.session.signIn("u-1", "tok-1")
	f.judge.submitGate = make(chan struct{})
	f.judge.subResult = model.SubmissionResult{Passed: true, Score: 100}
	f.open(t, "two-sum")

	errc := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(context.Background())
		errc <- err
	}()
	f.waitPhase(t, model.PhaseSubmitting)

	f.session.signOut()
	close(f.judge.submitGate)
	testutil.AssertCode(t, <-errc, pkgerrors.ResultDiscarded)

	ws := f.snapshot(t)
	testutil.AssertEqual(t, ws.Phase, model.PhaseIdle)
	testutil.AssertTrue(t, ws.LastSubmission == nil, "result of the signed-out user must not show")
}

func TestClosedWorkspaceRejectsOperations(t *testing.T) {
	f := newFixture()
	_, err := f.ctrl.Run(context.Background())
	testutil.AssertCode(t, err, pkgerrors.NoActiveWorkspace)
	testutil.AssertCode(t, f.ctrl.SetCode("x"), pkgerrors.NoActiveWorkspace)

	f.open(t, "two-sum")
	f.ctrl.Close()
	_, ok := f.ctrl.Snapshot()
	testutil.AssertFalse(t, ok, "closed workspace")
}

func TestSubscribersSeePhaseTransitions(t *testing.T) {
	f := newFixture()
	f.judge.runResult = model.RunResult{Passed: true}
	var phases []model.Phase
	f.ctrl.Subscribe(func(ws model.WorkspaceSession) { phases = append(phases, ws.Phase) })

	f.open(t, "two-sum")
	_, err := f.ctrl.Run(context.Background())
	testutil.MustNoError(t, err)

	testutil.AssertEqual(t, len(phases), 3)
	testutil.AssertEqual(t, phases[1], model.PhaseRunning)
	testutil.AssertEqual(t, phases[2], model.PhaseIdle)
}
