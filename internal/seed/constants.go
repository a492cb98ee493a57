package seed

// Request batching.
const (
	recordBatchSize = 500
)

// Schedule of a generated week.
const (
	trainingsPerWeek = 2
	matchesPerWeek   = 1
)

// Default squad settings.
const (
	defaultMVPBonus  = 2.0
	defaultMinEvents = 3
)

// File permission constants.
const (
	logFilePermission   = 0600
	directoryPermission = 0750
	outputFilePerm      = 0600
)
