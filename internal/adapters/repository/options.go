package repository

import "time"

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the time source used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithLoader sets the function used to hydrate a team missing from memory,
// typically from the latest persisted run.
func WithLoader(load LoadFunc) BoardOption {
	return func(b *Board) {
		if load != nil {
			b.load = load
		}
	}
}
