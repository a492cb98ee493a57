// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel kinds for parsing stored or submitted attendance values.
var (
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrUnknownOutcome   = errors.New("unknown outcome")
)

// EventKind is the type of session a player was called up for.
type EventKind uint8

// Event kinds.
const (
	EventKindTraining EventKind = iota
	EventKindMatch
)

func (k EventKind) String() string {
	switch k {
	case EventKindTraining:
		return "training"
	case EventKindMatch:
		return "match"
	default:
		return fmt.Sprintf("event_kind(%d)", uint8(k))
	}
}

// ParseEventKind parses the stored form of an event kind.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "training":
		return EventKindTraining, nil
	case "match":
		return EventKindMatch, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
	}
}

// Outcome is a player's response/attendance for one session.
type Outcome uint8

// Outcomes, ordered best to worst.
const (
	OutcomePresentOnTime Outcome = iota
	OutcomePresentLate
	OutcomeAbsent
	OutcomeNoResponse

	// OutcomeCount sizes per-outcome arrays.
	OutcomeCount = 4
)

func (o Outcome) String() string {
	switch o {
	case OutcomePresentOnTime:
		return "present_on_time"
	case OutcomePresentLate:
		return "present_late"
	case OutcomeAbsent:
		return "absent"
	case OutcomeNoResponse:
		return "no_response"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// ParseOutcome parses the stored form of an outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present_on_time":
		return OutcomePresentOnTime, nil
	case "present_late":
		return OutcomePresentLate, nil
	case "absent":
		return OutcomeAbsent, nil
	case "no_response":
		return OutcomeNoResponse, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
	}
}

// RawRecord is an attendance row as stored. Kind and Outcome are not yet
// validated; the aggregator parses them.
type RawRecord struct {
	RecordID   string
	TeamID     string
	PlayerID   string
	SessionID  string
	EventKind  string
	Outcome    string
	OccurredAt time.Time
}

// Record is a validated attendance record.
type Record struct {
	RecordID   string
	TeamID     string
	PlayerID   string
	SessionID  string
	Kind       EventKind
	Outcome    Outcome
	OccurredAt time.Time
}

// Raw converts a validated record into its stored form.
func (r Record) Raw() RawRecord {
	return RawRecord{
		RecordID:   r.RecordID,
		TeamID:     r.TeamID,
		PlayerID:   r.PlayerID,
		SessionID:  r.SessionID,
		EventKind:  r.Kind.String(),
		Outcome:    r.Outcome.String(),
		OccurredAt: r.OccurredAt,
	}
}

// MVPAward marks a player as the most valuable player of one match.
type MVPAward struct {
	AwardID   string
	TeamID    string
	PlayerID  string
	MatchID   string
	AwardedAt time.Time
}
