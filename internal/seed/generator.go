package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rollcall/pkg/logger"
)

// profile is a player's attendance habit: the chance of each outcome.
type profile struct {
	name       string
	onTime     float64
	late       float64
	absent     float64
	noResponse float64
}

// Profiles ordered from most to least reliable.
var profiles = []profile{
	{name: "reliable", onTime: 0.90, late: 0.07, absent: 0.02, noResponse: 0.01},
	{name: "late", onTime: 0.45, late: 0.45, absent: 0.05, noResponse: 0.05},
	{name: "flaky", onTime: 0.50, late: 0.10, absent: 0.25, noResponse: 0.15},
	{name: "ghost", onTime: 0.20, late: 0.05, absent: 0.25, noResponse: 0.50},
}

// profileRank orders profile names by expected reliability.
func profileRank(name string) int {
	for i, p := range profiles {
		if p.name == name {
			return i
		}
	}
	return len(profiles)
}

func (p profile) draw(rng *rand.Rand) string {
	x := rng.Float64()
	switch {
	case x < p.onTime:
		return "present_on_time"
	case x < p.onTime+p.late:
		return "present_late"
	case x < p.onTime+p.late+p.absent:
		return "absent"
	default:
		return "no_response"
	}
}

// DefaultSettings are the weights every generated squad is scored with.
func DefaultSettings() Settings {
	return Settings{
		Training:  Weights{PresentOnTime: 1, PresentLate: 0.5, Absent: -0.5, NoResponse: -1},
		Match:     Weights{PresentOnTime: 2, PresentLate: 1, Absent: -1, NoResponse: -2},
		MVPBonus:  defaultMVPBonus,
		MinEvents: defaultMinEvents,
	}
}

type session struct {
	id   string
	kind string
	at   time.Time
}

// schedule returns the sessions of weeks of history ending before now.
func schedule(rng *rand.Rand, weeks int, now time.Time) []session {
	start := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7*weeks)
	out := make([]session, 0, weeks*(trainingsPerWeek+matchesPerWeek))
	for w := 0; w < weeks; w++ {
		week := start.AddDate(0, 0, 7*w)
		for t := 0; t < trainingsPerWeek; t++ {
			out = append(out, session{
				id:   newID(rng),
				kind: "training",
				at:   week.AddDate(0, 0, 1+2*t).Add(18 * time.Hour),
			})
		}
		for m := 0; m < matchesPerWeek; m++ {
			out = append(out, session{
				id:   newID(rng),
				kind: "match",
				at:   week.AddDate(0, 0, 5+m).Add(15 * time.Hour),
			})
		}
	}
	return out
}

func newID(rng *rand.Rand) string {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Generate builds cfg.Teams squads. Players cycle through the profiles, so
// every squad of four or more has each habit represented.
func Generate(ctx context.Context, cfg *Config, now time.Time) []Squad {
	rng := rand.New(rand.NewSource(cfg.Seed))
	squads := make([]Squad, 0, cfg.Teams)

	for t := 0; t < cfg.Teams; t++ {
		sq := Squad{
			TeamID:   fmt.Sprintf("squad-%02d", t+1),
			Settings: DefaultSettings(),
			Profiles: make(map[string]string, cfg.PlayersPerTeam),
		}
		players := make([]string, cfg.PlayersPerTeam)
		for i := range players {
			players[i] = fmt.Sprintf("%s-p%02d", sq.TeamID, i+1)
			sq.Profiles[players[i]] = profiles[i%len(profiles)].name
		}

		for _, s := range schedule(rng, cfg.Weeks, now) {
			var present []string
			for i, player := range players {
				outcome := profiles[i%len(profiles)].draw(rng)
				sq.Records = append(sq.Records, Record{
					RecordID:   newID(rng),
					PlayerID:   player,
					SessionID:  s.id,
					EventKind:  s.kind,
					Outcome:    outcome,
					OccurredAt: s.at.Format(time.RFC3339),
				})
				if outcome == "present_on_time" || outcome == "present_late" {
					present = append(present, player)
				}
			}
			if s.kind == "match" && len(present) > 0 {
				sq.Awards = append(sq.Awards, Award{
					AwardID:   newID(rng),
					PlayerID:  present[rng.Intn(len(present))],
					MatchID:   s.id,
					AwardedAt: s.at.Add(2 * time.Hour).Format(time.RFC3339),
				})
			}
		}
		squads = append(squads, sq)
	}

	total := 0
	for _, sq := range squads {
		total += len(sq.Records)
	}
	logger.Get().Info(ctx, "generated squads",
		logger.Int("teams", len(squads)),
		logger.Int("records", total),
	)
	return squads
}
