package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/fitquest-api/internal/dailycheck"
	"lg/fitquest-api/internal/logger"
	"lg/fitquest-api/internal/store"
	"lg/fitquest-api/internal/xp"
)

func TestRunAll(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	goal := 2000.0

	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{DailyCalorieGoal: &goal})
	mem.AddMeal(1, 1500, yesterday)
	mem.PutProfile(2, xp.Progress{DailyCalorieGoal: &goal})
	mem.AddMeal(2, 2600, yesterday)
	mem.PutProfile(3, xp.Progress{DailyCalorieGoal: &goal})
	mem.PutProfile(4, xp.Progress{})

	sched := dailycheck.New(xp.NewApplier(mem), mem, logger.Nop(),
		dailycheck.WithClock(func() time.Time { return now }))

	ids, err := mem.UserIDs(context.Background())
	require.NoError(t, err)
	// 99 has no profile.
	sum := runAll(context.Background(), sched, append(ids, 99), 2)

	assert.Equal(t, map[dailycheck.Kind]int{
		dailycheck.GoalMet:      1,
		dailycheck.GoalExceeded: 1,
		dailycheck.NoMeals:      1,
		dailycheck.NoGoal:       1,
	}, sum.Outcomes)
	require.Contains(t, sum.Failed, 99)

	again := runAll(context.Background(), sched, ids, 4)
	assert.Equal(t, map[dailycheck.Kind]int{dailycheck.AlreadyChecked: 4}, again.Outcomes)
	assert.Empty(t, again.Failed)
}
