package view_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	adminmodel "codearena/internal/admin/model"
	"codearena/internal/cli/view"
	problemmodel "codearena/internal/problem/model"
	submitmodel "codearena/internal/submit/model"
	"codearena/internal/testutil"
	usermodel "codearena/internal/user/model"
	pkgerrors "codearena/pkg/errors"
)

func assertContains(t *testing.T, out string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if !strings.Contains(out, part) {
			t.Fatalf("output missing %q:\n%s", part, out)
		}
	}
}

func TestSubmissionOutcomesAreDistinct(t *testing.T) {
	accepted := view.FormatSubmission(submitmodel.SubmissionResult{Passed: true, Score: 100, TotalTests: 2, PassedTests: 2,
		Results: []submitmodel.TestCaseResult{{Passed: true, RuntimeMs: 3}, {Passed: true, RuntimeMs: 4}}})
	wrong := view.FormatSubmission(submitmodel.SubmissionResult{Score: 0, TotalTests: 2})
	partial := view.FormatSubmission(submitmodel.SubmissionResult{Score: 50, TotalTests: 2, PassedTests: 1})
	judge := view.FormatSubmission(submitmodel.SubmissionResult{Error: "Time limit exceeded"})

	assertContains(t, accepted, "Accepted", "score 100", "passed 2/2", "#2", "4ms")
	assertContains(t, wrong, "Wrong Answer", "score 0")
	testutil.AssertFalse(t, strings.Contains(wrong, "partial credit"), "zero score is not partial credit")
	assertContains(t, partial, "Wrong Answer", "partial credit", "score 50", "passed 1/2")
	assertContains(t, judge, "Judge Error", "Time limit exceeded")
	testutil.AssertFalse(t, strings.Contains(judge, "Wrong Answer"), "judge error must not read as a wrong answer")
}

func TestRunResult(t *testing.T) {
	out := view.FormatRun(submitmodel.RunResult{Passed: false, Input: "1 2", Expected: "3", Output: "4"})
	assertContains(t, out, "Sample Failed", "1 2", "expected: 3", "output:   4")

	out = view.FormatRun(submitmodel.RunResult{IsError: true, Error: "SyntaxError: invalid syntax"})
	assertContains(t, out, "Execution Error", "SyntaxError")
}

func TestWorkspaceTabs(t *testing.T) {
	ws := *submitmodel.NewWorkspaceSession(submitmodel.Key{ProblemID: "7", Generation: 1})
	out := view.FormatWorkspace(ws)
	assertContains(t, out, "problem 7", "language python", "Read from stdin")

	ws.Tab = submitmodel.TabResults
	ws.Phase = submitmodel.PhaseSubmitting
	out = view.FormatWorkspace(ws)
	assertContains(t, out, "submitting...")
	testutil.AssertFalse(t, strings.Contains(out, "Read from stdin"), "results tab hides the code")
}

func TestProblemsTable(t *testing.T) {
	problems := []problemmodel.Problem{
		{ID: "1", Title: "Two Sum", Difficulty: problemmodel.DifficultyEasy, Tags: []string{"array"}, Solved: true, Attempts: 2, BestScore: 100},
		{ID: "2", Title: "LRU Cache", Difficulty: problemmodel.DifficultyMedium, Attempts: 1, BestScore: 40},
	}
	out := view.FormatProblems(problems, true)
	assertContains(t, out, "Two Sum", "LRU Cache", "solved", "attempted", "solved 1 / 2")

	anon := view.FormatProblems(problems, false)
	testutil.AssertFalse(t, strings.Contains(anon, "Attempts"), "anonymous lists carry no per-user columns")
}

func TestSessionAndAdmin(t *testing.T) {
	admin := usermodel.Authenticated(usermodel.User{ID: "u1", Username: "ada", DisplayName: "Ada", Role: usermodel.RoleAdmin})
	assertContains(t, view.FormatSession(admin), "Ada", "@ada", "[admin]")
	assertContains(t, view.FormatSession(usermodel.Anonymous()), "not signed in")

	stats := adminmodel.Stats{TotalUsers: 3, TotalProblems: 4, TotalSubmissions: 8, SuccessfulSubmissions: 2}
	assertContains(t, view.FormatAdminStats(stats), "users 3", "accepted 2 (25.0%)")

	users := []adminmodel.UserSummary{{ID: "9", Username: "bob", Role: "coder", CreatedAt: "2024-01-02T03:04:05Z"}}
	assertContains(t, view.FormatUsers(users), "bob", "2024-01-02")
}

func TestRendererErrors(t *testing.T) {
	var buf bytes.Buffer
	r := view.NewRenderer(&buf)
	r.Error(pkgerrors.New(pkgerrors.ResultDiscarded))
	r.Error(errors.New("boom"))
	r.Error(nil)
	assertContains(t, buf.String(), "discarded", "error: boom")
	testutil.AssertEqual(t, strings.Count(buf.String(), "\n"), 2)
}
