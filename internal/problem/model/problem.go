package model

import (
	"strings"

	"codearena/internal/common/ids"
	pkgerrors "codearena/pkg/errors"
)

// Difficulty is one of Easy, Medium or Hard.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

var difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty accepts any casing of the three levels.
func ParseDifficulty(raw string) (Difficulty, error) {
	for _, d := range difficulties {
		if strings.EqualFold(strings.TrimSpace(raw), string(d)) {
			return d, nil
		}
	}
	return "", pkgerrors.Newf(pkgerrors.InvalidDifficulty, "difficulty must be Easy, Medium or Hard, got %q", raw)
}

// Problem is read-only on the client except through admin create/delete.
type Problem struct {
	ID          ids.ID     `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
	Tags        []string   `json:"tags"`

	// Per-user annotations, present only on lists fetched with a user id.
	Solved    bool `json:"solved,omitempty"`
	Attempts  int  `json:"attempts,omitempty"`
	BestScore int  `json:"best_score,omitempty"`
}

// ListResponse is the body of GET /problems/.
type ListResponse struct {
	Problems []Problem `json:"problems"`
}

// DetailResponse is the body of GET /problems/{id}.
type DetailResponse struct {
	Problem *Problem `json:"problem"`
}

// Stats is the solved/total summary shown above the list.
type Stats struct {
	Solved int
	Total  int
}

// Filter keeps problems of the given difficulty. An empty value or "All"
// returns the input unchanged.
func Filter(problems []Problem, difficulty string) ([]Problem, error) {
	if difficulty == "" || strings.EqualFold(difficulty, "all") {
		return problems, nil
	}
	d, err := ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	out := make([]Problem, 0, len(problems))
	for _, p := range problems {
		if p.Difficulty == d {
			out = append(out, p)
		}
	}
	return out, nil
}

func Summarize(problems []Problem) Stats {
	stats := Stats{Total: len(problems)}
	for _, p := range problems {
		if p.Solved {
			stats.Solved++
		}
	}
	return stats
}

// CreateInput is the admin payload for POST /admin/problems.
type CreateInput struct {
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
	Tags        []string   `json:"tags"`
}

// SplitTags turns "a, b,,c" into [a b c].
func SplitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
