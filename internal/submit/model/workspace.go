package model

// Phase of a workspace. Running and Submitting exclude each other.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseSubmitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Tab is the selected panel.
type Tab int

const (
	TabDescription Tab = iota
	TabResults
)

func (t Tab) String() string {
	if t == TabResults {
		return "results"
	}
	return "description"
}

// Key identifies one opened workspace. Reopening the same problem yields a
// new generation, so results for the earlier view never leak into it.
type Key struct {
	ProblemID  string
	Generation uint64
}

// WorkspaceSession is the state of one problem-solving view.
type WorkspaceSession struct {
	Key            Key
	Language       Language
	Code           string
	Phase          Phase
	Tab            Tab
	LastRun        *RunResult
	LastSubmission *SubmissionResult
}

// NewWorkspaceSession starts a workspace with the default language template.
func NewWorkspaceSession(key Key) *WorkspaceSession {
	return &WorkspaceSession{
		Key:      key,
		Language: DefaultLanguage,
		Code:     DefaultLanguage.Template(),
		Phase:    PhaseIdle,
		Tab:      TabDescription,
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (w *WorkspaceSession) Clone() WorkspaceSession {
	out := *w
	if w.LastRun != nil {
		run := *w.LastRun
		out.LastRun = &run
	}
	if w.LastSubmission != nil {
		sub := *w.LastSubmission
		sub.Results = append([]TestCaseResult(nil), w.LastSubmission.Results...)
		out.LastSubmission = &sub
	}
	return out
}

// Request is the body of POST /run/{id} and /submit/{id}.
type Request struct {
	Language Language `json:"language"`
	Code     string   `json:"code"`
}
