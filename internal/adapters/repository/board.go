package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/okian/rollcall/internal/domain/model"
	"golang.org/x/sync/singleflight"
)

// Snapshot is an immutable view of one team's latest run.
type Snapshot struct {
	Run model.ScoreRun
	// Ranked holds eligible players best first.
	Ranked []model.PlayerScore
	scores map[string]model.PlayerScore
}

// NewSnapshot indexes the scores of a run. Scores with a rank are ordered
// by it; the slice is copied.
func NewSnapshot(run model.ScoreRun, scores []model.PlayerScore) *Snapshot {
	snap := &Snapshot{
		Run:    run,
		scores: make(map[string]model.PlayerScore, len(scores)),
	}
	for _, sc := range scores {
		snap.scores[sc.PlayerID] = sc
		if sc.Rank > 0 {
			snap.Ranked = append(snap.Ranked, sc)
		}
	}
	slices.SortStableFunc(snap.Ranked, func(a, b model.PlayerScore) int { return a.Rank - b.Rank })
	return snap
}

// Player returns one player's score from the snapshot.
func (s *Snapshot) Player(playerID string) (model.PlayerScore, bool) {
	sc, ok := s.scores[playerID]
	return sc, ok
}

// Top returns up to n ranked players, best first or worst first.
func (s *Snapshot) Top(n int, worst bool) []model.PlayerScore {
	src := s.Ranked
	if worst {
		src = slices.Clone(src)
		slices.Reverse(src)
	}
	n = max(0, min(n, len(src)))
	return slices.Clone(src[:n])
}

// Players is the number of scored players, ranked or not.
func (s *Snapshot) Players() int { return len(s.scores) }

// LoadFunc fetches a team's snapshot when it is not in memory. It returns
// an error wrapping ErrNotFound when the team has never been computed.
type LoadFunc func(ctx context.Context, teamID string) (*Snapshot, error)

// Board keeps the latest snapshot per team. Readers never block writers:
// each team's snapshot is swapped with an atomic pointer.
type Board struct {
	mu    sync.RWMutex
	teams map[string]*atomic.Pointer[Snapshot]
	load  LoadFunc
	group singleflight.Group
}

// NewBoard creates an empty board.
func NewBoard(opts ...BoardOption) *Board {
	b := &Board{teams: make(map[string]*atomic.Pointer[Snapshot])}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// LoadFromStore hydrates a team from its latest persisted run.
func LoadFromStore(store Store) LoadFunc {
	return func(ctx context.Context, teamID string) (*Snapshot, error) {
		run, err := store.LatestRun(ctx, teamID)
		if err != nil {
			return nil, err
		}
		scores, err := store.RunScores(ctx, run.RunID)
		if err != nil {
			return nil, err
		}
		return NewSnapshot(run, scores), nil
	}
}

func (b *Board) slot(teamID string) *atomic.Pointer[Snapshot] {
	b.mu.RLock()
	p, ok := b.teams[teamID]
	b.mu.RUnlock()
	if ok {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok = b.teams[teamID]; !ok {
		p = &atomic.Pointer[Snapshot]{}
		b.teams[teamID] = p
	}
	return p
}

// Publish swaps in snap for its team unless a newer run is already
// published. It reports whether the swap happened.
func (b *Board) Publish(snap *Snapshot) bool {
	p := b.slot(snap.Run.TeamID)
	for {
		cur := p.Load()
		if cur != nil && cur.Run.ComputedAt.After(snap.Run.ComputedAt) {
			return false
		}
		if p.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

// Get returns the team's snapshot, hydrating it once through the loader.
func (b *Board) Get(ctx context.Context, teamID string) (*Snapshot, error) {
	const op = "repository.Board.Get"

	b.mu.RLock()
	p, ok := b.teams[teamID]
	b.mu.RUnlock()
	if ok {
		if snap := p.Load(); snap != nil {
			return snap, nil
		}
	}
	if b.load == nil {
		return nil, fmt.Errorf("%s: team %s: %w", op, teamID, ErrNotFound)
	}

	v, err, _ := b.group.Do(teamID, func() (any, error) {
		snap, err := b.load(ctx, teamID)
		if err != nil {
			return nil, err
		}
		b.Publish(snap)
		return b.slot(teamID).Load(), nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: team %s: %w", op, teamID, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v.(*Snapshot), nil
}

// TopN returns up to n ranked players, best first or worst first.
func (b *Board) TopN(ctx context.Context, teamID string, n int, worst bool) ([]model.PlayerScore, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	snap, err := b.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return snap.Top(n, worst), nil
}

// Player returns one player's latest score.
func (b *Board) Player(ctx context.Context, teamID, playerID string) (model.PlayerScore, error) {
	snap, err := b.Get(ctx, teamID)
	if err != nil {
		return model.PlayerScore{}, err
	}
	sc, ok := snap.Player(playerID)
	if !ok {
		return model.PlayerScore{}, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	return sc, nil
}

// Teams is the number of teams with a snapshot in memory.
func (b *Board) Teams() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, p := range b.teams {
		if p.Load() != nil {
			n++
		}
	}
	return n
}
