package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSettings is returned by ScoreSettings.Validate.
var ErrInvalidSettings = errors.New("invalid score settings")

// Weights holds the points awarded for each outcome of one event kind.
type Weights struct {
	OnTime     float64
	Late       float64
	Absent     float64
	NoResponse float64
}

// For returns the weight of an outcome.
func (w Weights) For(o Outcome) float64 {
	switch o {
	case OutcomePresentOnTime:
		return w.OnTime
	case OutcomePresentLate:
		return w.Late
	case OutcomeAbsent:
		return w.Absent
	default:
		return w.NoResponse
	}
}

func (w Weights) validate(kind string) error {
	for _, v := range []float64{w.OnTime, w.Late, w.Absent, w.NoResponse} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s weights must be finite", ErrInvalidSettings, kind)
		}
	}
	return nil
}

// ScoreSettings is a team's scoring configuration. Only one row per team is
// active at a time.
type ScoreSettings struct {
	ID          int64
	TeamID      string
	Training    Weights
	Match       Weights
	MVPBonus    float64
	MVPPerAward bool
	MinEvents   int
	Active      bool
	CreatedAt   time.Time
}

// WeightsFor returns the weight set of an event kind.
func (s *ScoreSettings) WeightsFor(k EventKind) Weights {
	if k == EventKindMatch {
		return s.Match
	}
	return s.Training
}

// Validate checks that the settings can be used for scoring.
func (s *ScoreSettings) Validate() error {
	if s.TeamID == "" {
		return fmt.Errorf("%w: team id is required", ErrInvalidSettings)
	}
	if err := s.Training.validate("training"); err != nil {
		return err
	}
	if err := s.Match.validate("match"); err != nil {
		return err
	}
	if math.IsNaN(s.MVPBonus) || math.IsInf(s.MVPBonus, 0) {
		return fmt.Errorf("%w: mvp bonus must be finite", ErrInvalidSettings)
	}
	if s.MinEvents < 0 {
		return fmt.Errorf("%w: min events must not be negative", ErrInvalidSettings)
	}
	return nil
}
