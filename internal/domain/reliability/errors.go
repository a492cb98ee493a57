package reliability

import "errors"

// Sentinel kinds for reliability errors.
var (
	ErrSettingsMissing = errors.New("score settings missing")
)

// Skip reasons reported by the aggregator.
const (
	SkipUnknownEventKind = "unknown_event_kind"
	SkipUnknownOutcome   = "unknown_outcome"
	SkipMissingPlayer    = "missing_player"
	SkipDuplicate        = "duplicate"
)
