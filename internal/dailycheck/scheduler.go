// Package dailycheck evaluates a user's previous local day against their
// calorie goal and applies the reward or penalty once per calendar day.
package dailycheck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/logger"
	"lg/fitquest-api/internal/xp"
)

const dayLayout = "2006-01-02"

// Kind classifies what a run did.
type Kind string

const (
	AlreadyChecked Kind = "already_checked"
	NoGoal         Kind = "no_goal"
	NoMeals        Kind = "no_meals"
	GoalMet        Kind = "goal_met"
	GoalExceeded   Kind = "goal_exceeded"
)

// Outcome describes one run. Result is nil when no XP change was applied.
type Outcome struct {
	Kind          Kind       `json:"outcome"`
	Day           string     `json:"day"`
	Yesterday     string     `json:"yesterday"`
	TotalCalories float64    `json:"total_calories"`
	Goal          *float64   `json:"daily_calorie_goal"`
	XPChange      int        `json:"xp_change"`
	Result        *xp.Result `json:"result,omitempty"`
	Unlocked      []string   `json:"unlocked_achievements,omitempty"`
}

// Event is the XP event the run applied, empty if none.
func (o Outcome) Event() xp.Event {
	switch o.Kind {
	case GoalMet:
		return xp.EventMetDailyCalorieGoal
	case GoalExceeded:
		return xp.EventExceededDailyCalorieGoal
	}
	return ""
}

// Store reads the profile and the calories logged in a time range.
type Store interface {
	xp.ProgressReader
	CaloriesBetween(ctx context.Context, userID int, from, to time.Time) (float64, error)
}

// Unlocker unlocks achievements; achievements.Service implements it.
type Unlocker interface {
	Unlock(ctx context.Context, userID int, id string) (bool, error)
}

// Observer is told about every completed run.
type Observer interface {
	DailyCheckCompleted(outcome string)
}

type Scheduler struct {
	applier  *xp.Applier
	store    Store
	unlocker Unlocker
	observer Observer
	log      *logger.Logger
	now      func() time.Time
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }
func WithUnlocker(u Unlocker) Option        { return func(s *Scheduler) { s.unlocker = u } }
func WithObserver(o Observer) Option        { return func(s *Scheduler) { s.observer = o } }

func New(applier *xp.Applier, store Store, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		applier: applier,
		store:   store,
		log:     log.With("service", "DailyCheck"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs the check for userID. The XP change (if any) and the day
// marker are committed in one transaction that re-reads the marker, so two
// concurrent runs on the same day apply the change at most once. On error
// the marker is not advanced and the run can be retried.
func (s *Scheduler) Run(ctx context.Context, userID int) (Outcome, error) {
	p, err := s.store.Progress(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}

	loc := s.location(p.Timezone)
	now := s.now().In(loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	yesterdayStart := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, loc)

	out := Outcome{
		Day:       todayStart.Format(dayLayout),
		Yesterday: yesterdayStart.Format(dayLayout),
		Goal:      p.DailyCalorieGoal,
	}
	if p.LastDailyXPCheck == out.Day {
		out.Kind = AlreadyChecked
		return out, nil
	}

	total, err := s.store.CaloriesBetween(ctx, userID, yesterdayStart, todayStart)
	if err != nil {
		return Outcome{}, fmt.Errorf("sum calories for %s: %w", out.Yesterday, err)
	}
	out.TotalCalories = total

	err = s.applier.RunInTx(ctx, userID, func(tx xp.Tx) error {
		out.Kind, out.XPChange, out.Result = "", 0, nil

		cur, err := tx.Progress(ctx)
		if err != nil {
			return err
		}
		if cur.LastDailyXPCheck == out.Day {
			out.Kind = AlreadyChecked
			return nil
		}
		out.Goal = cur.DailyCalorieGoal

		var event xp.Event
		out.Kind, event = classify(cur.DailyCalorieGoal, total)
		if event != "" {
			out.XPChange = s.applier.Rules().Amount(event)
			res, err := s.applier.ApplyInTx(ctx, tx, event, out.XPChange)
			if err != nil {
				return err
			}
			out.Result = &res
		}
		return tx.MarkDailyCheck(ctx, out.Day)
	})
	if err != nil {
		if errors.Is(err, xp.ErrConflictExhausted) {
			s.log.Warn("daily check gave up on conflicts", "user_id", userID, "day", out.Day)
		}
		return Outcome{}, err
	}

	if out.Kind == GoalMet && s.unlocker != nil {
		ok, err := s.unlocker.Unlock(ctx, userID, achievements.CalorieGoal)
		if err != nil {
			s.log.Error("unlock calorie goal achievement", "user_id", userID, "error", err)
		} else if ok {
			out.Unlocked = append(out.Unlocked, achievements.CalorieGoal)
		}
	}

	if s.observer != nil {
		s.observer.DailyCheckCompleted(string(out.Kind))
	}
	s.log.Info("daily check completed",
		"user_id", userID,
		"day", out.Day,
		"outcome", out.Kind,
		"total_calories", total,
		"xp_change", out.XPChange,
	)
	return out, nil
}

func classify(goal *float64, total float64) (Kind, xp.Event) {
	switch {
	case goal == nil || *goal <= 0:
		return NoGoal, ""
	case total <= 0:
		return NoMeals, ""
	case total <= *goal:
		return GoalMet, xp.EventMetDailyCalorieGoal
	default:
		return GoalExceeded, xp.EventExceededDailyCalorieGoal
	}
}

func (s *Scheduler) location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.log.Warn("unknown timezone, using UTC", "timezone", name)
		return time.UTC
	}
	return loc
}
