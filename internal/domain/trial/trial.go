// Package trial reduces a trialist's quick ratings to a decision.
package trial

import (
	"errors"
	"fmt"
)

// ErrInvalidRating is returned for a rating outside -1, 0, +1.
var ErrInvalidRating = errors.New("rating must be -1, 0 or 1")

// Decision is the outcome of an evaluation.
type Decision string

// Decisions.
const (
	DecisionRecruit   Decision = "recruit"
	DecisionDecline   Decision = "decline"
	DecisionUndecided Decision = "undecided"
)

// Thresholds bound the decision on the rating total.
type Thresholds struct {
	Recruit int
	Decline int
}

// DefaultThresholds recruits on a net positive and declines on a net negative.
func DefaultThresholds() Thresholds {
	return Thresholds{Recruit: 1, Decline: -1}
}

// Evaluation summarizes a set of ratings.
type Evaluation struct {
	Total    int
	Positive int
	Neutral  int
	Negative int
	Decision Decision
}

// Evaluate validates ratings and applies the thresholds. No ratings means
// undecided regardless of thresholds.
func Evaluate(ratings []int, th Thresholds) (Evaluation, error) {
	var ev Evaluation
	for i, r := range ratings {
		switch r {
		case 1:
			ev.Positive++
		case 0:
			ev.Neutral++
		case -1:
			ev.Negative++
		default:
			return Evaluation{}, fmt.Errorf("rating %d (%d): %w", i, r, ErrInvalidRating)
		}
		ev.Total += r
	}

	switch {
	case len(ratings) == 0:
		ev.Decision = DecisionUndecided
	case ev.Total >= th.Recruit:
		ev.Decision = DecisionRecruit
	case ev.Total <= th.Decline:
		ev.Decision = DecisionDecline
	default:
		ev.Decision = DecisionUndecided
	}
	return ev, nil
}
