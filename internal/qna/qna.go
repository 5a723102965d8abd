// Package qna provides the knowledge-base lookup used when no dialog is active.
package qna

import (
	"context"
	"errors"
	"sort"
)

// ErrLookupUnavailable is returned when the knowledge base cannot be reached or answers malformed.
var ErrLookupUnavailable = errors.New("knowledge base lookup unavailable")

// Answer is a single knowledge-base result.
type Answer struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// KnowledgeBase answers free-text questions with a ranked list of answers.
// An empty list means no answer was found; that is not an error.
type KnowledgeBase interface {
	Query(ctx context.Context, text string) ([]Answer, error)
}

// Top returns the highest-scoring answer, or false if there is none.
func Top(answers []Answer) (Answer, bool) {
	if len(answers) == 0 {
		return Answer{}, false
	}
	best := answers[0]
	for _, a := range answers[1:] {
		if a.Score > best.Score {
			best = a
		}
	}
	return best, true
}

// sortAnswers orders answers by descending score, keeping ties in source order.
func sortAnswers(answers []Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].Score > answers[j].Score
	})
}

// Empty is a KnowledgeBase that never finds an answer.
type Empty struct{}

// Query always returns no answers.
func (Empty) Query(context.Context, string) ([]Answer, error) {
	return nil, nil
}
