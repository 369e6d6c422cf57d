package model

import "codearena/internal/common/ids"

// Stats is the body of GET /admin/stats.
type Stats struct {
	TotalUsers            int `json:"total_users"`
	TotalProblems         int `json:"total_problems"`
	TotalSubmissions      int `json:"total_submissions"`
	SuccessfulSubmissions int `json:"successful_submissions"`
}

// SuccessRate returns accepted submissions as a percentage of all submissions.
func (s Stats) SuccessRate() float64 {
	if s.TotalSubmissions == 0 {
		return 0
	}
	return float64(s.SuccessfulSubmissions) * 100 / float64(s.TotalSubmissions)
}

// UserSummary is one row of GET /admin/users.
type UserSummary struct {
	ID             ids.ID `json:"id"`
	Username       string `json:"username"`
	DisplayName    string `json:"display_name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	ProblemsSolved int    `json:"problems_solved"`
	TotalAttempts  int    `json:"total_attempts"`
	CreatedAt      string `json:"created_at"`
}

type UsersResponse struct {
	Users []UserSummary `json:"users"`
}

// ProblemDraft is what an admin types in; tags are comma separated.
type ProblemDraft struct {
	Title       string
	Slug        string
	Description string
	Difficulty  string
	Tags        string
}
