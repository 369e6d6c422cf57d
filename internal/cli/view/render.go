// Package view renders client state for the terminal.
package view

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	adminmodel "codearena/internal/admin/model"
	problemmodel "codearena/internal/problem/model"
	submitmodel "codearena/internal/submit/model"
	usermodel "codearena/internal/user/model"
	pkgerrors "codearena/pkg/errors"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	partStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Renderer writes views to one output. Calls from different goroutines do not
// interleave.
type Renderer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// SetOutput swaps the writer, e.g. once readline owns the terminal.
func (r *Renderer) SetOutput(w io.Writer) {
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}

func (r *Renderer) print(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, _ = io.WriteString(r.w, s)
}

// Printf writes a plain line.
func (r *Renderer) Printf(format string, args ...interface{}) {
	r.print(fmt.Sprintf(format, args...))
}

// Error prints an error for the user. Discarded results are a notice, not a failure.
func (r *Renderer) Error(err error) {
	if err == nil {
		return
	}
	if pkgerrors.Is(err, pkgerrors.ResultDiscarded) {
		r.print(dimStyle.Render("(result for a closed workspace was discarded)"))
		return
	}
	r.print(failStyle.Render("error: ") + err.Error())
}

func (r *Renderer) Session(state usermodel.SessionState) {
	r.print(FormatSession(state))
}

func FormatSession(state usermodel.SessionState) string {
	switch state.Phase {
	case usermodel.SessionInitializing:
		return dimStyle.Render("checking session...")
	case usermodel.SessionAuthenticated:
		u := state.User
		line := fmt.Sprintf("signed in as %s (@%s)", u.DisplayName, u.Username)
		if u.Email != "" {
			line += " <" + u.Email + ">"
		}
		if u.IsAdmin() {
			line += " " + partStyle.Render("[admin]")
		}
		return line
	default:
		return "not signed in"
	}
}

func (r *Renderer) Problems(problems []problemmodel.Problem, signedIn bool) {
	r.print(FormatProblems(problems, signedIn))
}

// FormatProblems renders the catalog table. Per-user columns appear only for
// signed-in lists.
func FormatProblems(problems []problemmodel.Problem, signedIn bool) string {
	if len(problems) == 0 {
		return dimStyle.Render("no problems found")
	}
	headers := []string{"ID", "Title", "Difficulty", "Tags"}
	if signedIn {
		headers = append(headers, "Status", "Attempts", "Best")
	}
	t := table.New().Border(lipgloss.NormalBorder()).Headers(headers...)
	for _, p := range problems {
		row := []string{p.ID.String(), p.Title, string(p.Difficulty), strings.Join(p.Tags, ", ")}
		if signedIn {
			status := ""
			if p.Solved {
				status = "solved"
			} else if p.Attempts > 0 {
				status = "attempted"
			}
			row = append(row, status, strconv.Itoa(p.Attempts), strconv.Itoa(p.BestScore))
		}
		t.Row(row...)
	}
	out := t.String()
	if signedIn {
		stats := problemmodel.Summarize(problems)
		out += fmt.Sprintf("\nsolved %d / %d", stats.Solved, stats.Total)
	}
	return out
}

func (r *Renderer) Problem(p problemmodel.Problem) {
	r.print(FormatProblem(p))
}

func FormatProblem(p problemmodel.Problem) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(p.Title))
	fmt.Fprintf(&b, "  [%s]", p.Difficulty)
	if len(p.Tags) > 0 {
		b.WriteString("  " + dimStyle.Render(strings.Join(p.Tags, ", ")))
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(p.Description))
	return b.String()
}

func (r *Renderer) Workspace(ws submitmodel.WorkspaceSession) {
	r.print(FormatWorkspace(ws))
}

// FormatWorkspace shows the status line and either the code buffer or the
// latest results, depending on the selected tab.
func FormatWorkspace(ws submitmodel.WorkspaceSession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "problem %s  language %s  tab %s", ws.Key.ProblemID, ws.Language, ws.Tab)
	if ws.Phase != submitmodel.PhaseIdle {
		b.WriteString("  " + partStyle.Render(ws.Phase.String()+"..."))
	}
	b.WriteString("\n")
	if ws.Tab == submitmodel.TabResults {
		switch {
		case ws.LastSubmission != nil:
			b.WriteString(FormatSubmission(*ws.LastSubmission))
		case ws.LastRun != nil:
			b.WriteString(FormatRun(*ws.LastRun))
		case ws.Phase == submitmodel.PhaseIdle:
			b.WriteString(dimStyle.Render("no results yet"))
		}
		return b.String()
	}
	lines := strings.Split(ws.Code, "\n")
	width := len(strconv.Itoa(len(lines)))
	for i, line := range lines {
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render(fmt.Sprintf("%*d", width, i+1)), line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) Run(res submitmodel.RunResult) {
	r.print(FormatRun(res))
}

func FormatRun(res submitmodel.RunResult) string {
	if res.Failed() {
		return errStyle.Render("Execution Error") + "\n" + res.Error
	}
	var b strings.Builder
	if res.Passed {
		b.WriteString(okStyle.Render("Sample Passed"))
	} else {
		b.WriteString(failStyle.Render("Sample Failed"))
	}
	fmt.Fprintf(&b, "\ninput:    %s\nexpected: %s\noutput:   %s", res.Input, res.Expected, res.Output)
	return b.String()
}

func (r *Renderer) Submission(res submitmodel.SubmissionResult) {
	r.print(FormatSubmission(res))
}

// FormatSubmission keeps the three outcomes visually apart: a judge error is
// never shown as a wrong answer, and partial credit is called out.
func FormatSubmission(res submitmodel.SubmissionResult) string {
	var b strings.Builder
	switch res.Verdict() {
	case submitmodel.VerdictJudgeError:
		return errStyle.Render(string(submitmodel.VerdictJudgeError)) + "\n" + res.Error
	case submitmodel.VerdictAccepted:
		b.WriteString(okStyle.Render(string(submitmodel.VerdictAccepted)))
	default:
		b.WriteString(failStyle.Render(string(submitmodel.VerdictWrongAnswer)))
		if res.PartialCredit() {
			b.WriteString(" " + partStyle.Render("(partial credit)"))
		}
	}
	fmt.Fprintf(&b, "\nscore %d  passed %d/%d tests", res.Score, res.PassedTests, res.TotalTests)
	for i, tc := range res.Results {
		mark := okStyle.Render("pass")
		if !tc.Passed {
			mark = failStyle.Render("fail")
		}
		fmt.Fprintf(&b, "\n  #%d %s %dms", i+1, mark, tc.RuntimeMs)
	}
	return b.String()
}

func (r *Renderer) AdminStats(s adminmodel.Stats) {
	r.print(FormatAdminStats(s))
}

func FormatAdminStats(s adminmodel.Stats) string {
	return fmt.Sprintf("users %d  problems %d  submissions %d  accepted %d (%.1f%%)",
		s.TotalUsers, s.TotalProblems, s.TotalSubmissions, s.SuccessfulSubmissions, s.SuccessRate())
}

func (r *Renderer) Users(users []adminmodel.UserSummary) {
	r.print(FormatUsers(users))
}

func FormatUsers(users []adminmodel.UserSummary) string {
	if len(users) == 0 {
		return dimStyle.Render("no users")
	}
	t := table.New().Border(lipgloss.NormalBorder()).
		Headers("ID", "User", "Name", "Role", "Solved", "Attempts", "Joined")
	for _, u := range users {
		joined := u.CreatedAt
		if len(joined) > 10 {
			joined = joined[:10]
		}
		t.Row(u.ID.String(), u.Username, u.DisplayName, u.Role,
			strconv.Itoa(u.ProblemsSolved), strconv.Itoa(u.TotalAttempts), joined)
	}
	return t.String()
}
