package seed

import "time"

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Teams          int           // Number of squads to create
	PlayersPerTeam int           // Squad size
	Weeks          int           // Weeks of history to generate, ending now
	Workers        int           // Squads seeded concurrently
	Seed           int64         // Random seed; equal seeds give equal datasets
	WindowDays     int           // Evaluation window the service scores with; 0 = all history
	Timeout        time.Duration // HTTP request timeout
	OutputFile     string        // Output file for the generated dataset
	LogFile        string        // Log file for run output
	Verbose        bool          // Enable verbose logging
}

// Weights mirrors the settings weight set on the wire.
type Weights struct {
	PresentOnTime float64 `json:"present_on_time"`
	PresentLate   float64 `json:"present_late"`
	Absent        float64 `json:"absent"`
	NoResponse    float64 `json:"no_response"`
}

// Settings is the body of PUT /teams/{team}/settings.
type Settings struct {
	Training    Weights `json:"training"`
	Match       Weights `json:"match"`
	MVPBonus    float64 `json:"mvp_bonus"`
	MVPPerAward bool    `json:"mvp_per_award"`
	MinEvents   int     `json:"min_events"`
}

// Record is one attendance record as posted to the service.
type Record struct {
	RecordID   string `json:"record_id"`
	PlayerID   string `json:"player_id"`
	SessionID  string `json:"session_id"`
	EventKind  string `json:"event_kind"`
	Outcome    string `json:"outcome"`
	OccurredAt string `json:"occurred_at"`
}

// Award is one MVP award as posted to the service.
type Award struct {
	AwardID   string `json:"award_id"`
	PlayerID  string `json:"player_id"`
	MatchID   string `json:"match_id"`
	AwardedAt string `json:"awarded_at"`
}

// Squad is the generated dataset of one team.
type Squad struct {
	TeamID   string            `json:"team_id"`
	Settings Settings          `json:"settings"`
	Profiles map[string]string `json:"profiles"` // player id -> profile name
	Records  []Record          `json:"records"`
	Awards   []Award           `json:"awards"`
}

// Entry represents a leaderboard entry.
type Entry struct {
	Rank            int     `json:"rank"`
	PlayerID        string  `json:"player_id"`
	Score           int     `json:"score"`
	NormalizedScore float64 `json:"normalized_score"`
	TotalEvents     int     `json:"total_events"`
	Eligible        bool    `json:"eligible"`
}

// Leaderboard is the body of GET /teams/{team}/leaderboard.
type Leaderboard struct {
	TeamID  string  `json:"team_id"`
	RunID   string  `json:"run_id"`
	Entries []Entry `json:"entries"`
}

// RunSummary is the summary returned by a synchronous recompute.
type RunSummary struct {
	RunID            string `json:"run_id"`
	ComputedAt       string `json:"computed_at"`
	RecordsProcessed int    `json:"records_processed"`
	RecordsSkipped   int    `json:"records_skipped"`
	PlayersScored    int    `json:"players_scored"`
	PlayersRanked    int    `json:"players_ranked"`
}

// Stats holds run statistics.
type Stats struct {
	TeamsSeeded      int
	RecordsGenerated int
	RecordsAccepted  int
	AwardsAccepted   int
	PlayersRanked    int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
