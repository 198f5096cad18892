// Package achievements defines the achievement catalogue and the rules that
// unlock entries in it.
package achievements

import (
	"context"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"lg/fitquest-api/internal/logger"
)

const (
	FirstLog            = "first-log"
	AIGenius            = "ai-genius"
	CalorieGoal         = "calorie-goal"
	ConsistentWeek      = "consistent-week"
	WeightLossMilestone = "weight-loss-milestone"
	MonthlyMarathon     = "monthly-marathon"
)

// Definition is one catalogue entry. StreakDays is set for achievements
// unlocked by logging meals on that many consecutive days.
type Definition struct {
	ID          string `yaml:"id"          json:"id"`
	Name        string `yaml:"name"        json:"name"`
	Description string `yaml:"description" json:"description"`
	StreakDays  int    `yaml:"streak_days" json:"streak_days,omitempty"`
}

//go:embed catalogue.yaml
var catalogueYAML []byte

var loadCatalogue = sync.OnceValues(func() ([]Definition, error) {
	return Parse(catalogueYAML)
})

// Parse decodes a YAML catalogue and rejects empty or duplicate ids.
func Parse(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse achievement catalogue: %w", err)
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("achievement %q has no id", d.Name)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate achievement id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return defs, nil
}

// Catalogue returns the embedded catalogue. It panics if the embedded file
// is malformed, which the package tests rule out.
func Catalogue() []Definition {
	defs, err := loadCatalogue()
	if err != nil {
		panic(err)
	}
	return defs
}

// Store persists unlocked achievements and answers the meal-day queries
// streak achievements need.
type Store interface {
	UnlockAchievement(ctx context.Context, userID int, id string, at time.Time) (bool, error)
	UnlockedAchievements(ctx context.Context, userID int) (map[string]time.Time, error)
	MealDays(ctx context.Context, userID int, from time.Time, loc *time.Location) ([]string, error)
}

// Status is a catalogue entry with the user's unlock state.
type Status struct {
	Definition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

type Service struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log.With("service", "Achievements"), now: time.Now}
}

// Unlock unlocks id for userID and reports whether it was newly unlocked.
func (s *Service) Unlock(ctx context.Context, userID int, id string) (bool, error) {
	if !known(id) {
		return false, fmt.Errorf("unknown achievement %q", id)
	}
	unlocked, err := s.store.UnlockAchievement(ctx, userID, id, s.now())
	if err != nil {
		return false, err
	}
	if unlocked {
		s.log.Info("achievement unlocked", "user_id", userID, "achievement", id)
	}
	return unlocked, nil
}

// List returns the whole catalogue with userID's unlock state.
func (s *Service) List(ctx context.Context, userID int) ([]Status, error) {
	unlocked, err := s.store.UnlockedAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}
	defs := Catalogue()
	out := make([]Status, len(defs))
	for i, d := range defs {
		out[i] = Status{Definition: d}
		if at, ok := unlocked[d.ID]; ok {
			out[i].Unlocked = true
			out[i].UnlockedAt = &at
		}
	}
	return out, nil
}

// CheckMealStreaks unlocks every streak achievement whose length is reached
// by the run of consecutive meal days ending today (in loc). It returns the
// ids that were newly unlocked.
func (s *Service) CheckMealStreaks(ctx context.Context, userID int, loc *time.Location) ([]string, error) {
	longest := 0
	for _, d := range Catalogue() {
		if d.StreakDays > longest {
			longest = d.StreakDays
		}
	}
	if longest == 0 {
		return nil, nil
	}

	now := s.now().In(loc)
	today := now.Format("2006-01-02")
	from := time.Date(now.Year(), now.Month(), now.Day()-longest, 0, 0, 0, 0, loc)
	days, err := s.store.MealDays(ctx, userID, from, loc)
	if err != nil {
		return nil, err
	}
	streak := ConsecutiveDays(days, today)

	var newly []string
	for _, d := range Catalogue() {
		if d.StreakDays == 0 || streak < d.StreakDays {
			continue
		}
		ok, err := s.Unlock(ctx, userID, d.ID)
		if err != nil {
			return newly, err
		}
		if ok {
			newly = append(newly, d.ID)
		}
	}
	return newly, nil
}

// ConsecutiveDays counts the run of consecutive calendar days ending at
// today. days are YYYY-MM-DD strings in any order; unparsable entries are
// ignored. Returns 0 if today is not in days.
func ConsecutiveDays(days []string, today string) int {
	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	cur, err := time.Parse("2006-01-02", today)
	if err != nil {
		return 0
	}
	n := 0
	for set[cur.Format("2006-01-02")] {
		n++
		cur = cur.AddDate(0, 0, -1)
	}
	return n
}

func known(id string) bool {
	for _, d := range Catalogue() {
		if d.ID == id {
			return true
		}
	}
	return false
}
