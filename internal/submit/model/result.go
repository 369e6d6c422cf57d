package model

// RunResult is the judge's answer for the sample case. Either the comparison
// fields are set or IsError is true with Error describing the failure.
type RunResult struct {
	Passed   bool   `json:"passed"`
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Output   string `json:"output"`
	IsError  bool   `json:"is_error"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the run never produced a comparable output.
func (r RunResult) Failed() bool {
	return r.IsError || r.Error != ""
}

// TestCaseResult is one row of a full evaluation.
type TestCaseResult struct {
	Passed    bool `json:"passed"`
	RuntimeMs int  `json:"runtime_ms"`
}

// SubmissionResult is the judge-scored outcome of Submit. Score and the test
// counts are shown exactly as the judge reports them.
type SubmissionResult struct {
	Passed      bool             `json:"passed"`
	Score       int              `json:"score"`
	TotalTests  int              `json:"total_tests"`
	PassedTests int              `json:"passed_tests"`
	Results     []TestCaseResult `json:"results"`
	Error       string           `json:"error,omitempty"`
}

// Verdict classifies a submission for display.
type Verdict string

const (
	VerdictAccepted    Verdict = "Accepted"
	VerdictWrongAnswer Verdict = "Wrong Answer"
	VerdictJudgeError  Verdict = "Judge Error"
)

// Verdict keeps platform failures apart from legitimate wrong answers.
func (r SubmissionResult) Verdict() Verdict {
	switch {
	case r.Error != "":
		return VerdictJudgeError
	case r.Passed:
		return VerdictAccepted
	default:
		return VerdictWrongAnswer
	}
}

// PartialCredit is true for a failed submission that still scored.
func (r SubmissionResult) PartialCredit() bool {
	return r.Error == "" && !r.Passed && r.Score > 0
}
