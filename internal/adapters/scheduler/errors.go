package scheduler

import "errors"

// Sentinel kinds for scheduler errors.
var (
	ErrEmptyJobName  = errors.New("job name is required")
	ErrEmptyCronExpr = errors.New("cron expression is required")
)
