package dailycheck_test

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/dailycheck"
	"lg/fitquest-api/internal/logger"
	"lg/fitquest-api/internal/store"
	"lg/fitquest-api/internal/xp"
)

type outcomeCounter map[string]int

func (o outcomeCounter) DailyCheckCompleted(outcome string) { o[outcome]++ }

func goal(v float64) *float64 { return &v }

// noon on 2025-03-10 UTC
var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newScheduler(mem *store.Memory, opts ...dailycheck.Option) *dailycheck.Scheduler {
	applier := xp.NewApplier(mem, xp.WithBackoff(0), xp.WithClock(func() time.Time { return fixedNow }))
	opts = append([]dailycheck.Option{dailycheck.WithClock(func() time.Time { return fixedNow })}, opts...)
	return dailycheck.New(applier, mem, logger.Nop(), opts...)
}

func TestRun_GoalMetAwardsOnceAndAdvancesMarker(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{XP: 0, Level: 1, DailyCalorieGoal: goal(2000), LastDailyXPCheck: "2025-03-09"})
	mem.AddMeal(1, 1000, time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC))
	mem.AddMeal(1, 800, time.Date(2025, 3, 9, 19, 0, 0, 0, time.UTC))
	// Today's meal does not count towards yesterday.
	mem.AddMeal(1, 900, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	counts := outcomeCounter{}
	s := newScheduler(mem,
		dailycheck.WithUnlocker(achievements.NewService(mem, logger.Nop())),
		dailycheck.WithObserver(counts),
	)

	out, err := s.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dailycheck.GoalMet, out.Kind)
	assert.Equal(t, "2025-03-10", out.Day)
	assert.Equal(t, "2025-03-09", out.Yesterday)
	assert.Equal(t, 1800.0, out.TotalCalories)
	assert.Equal(t, 25, out.XPChange)
	require.NotNil(t, out.Result)
	assert.Equal(t, xp.Result{NewXP: 25, NewLevel: 1}, *out.Result)
	assert.Equal(t, []string{achievements.CalorieGoal}, out.Unlocked)

	p, err := mem.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 25, p.XP)
	assert.Equal(t, "2025-03-10", p.LastDailyXPCheck)

	// Second run the same day is a no-op.
	out, err = s.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dailycheck.AlreadyChecked, out.Kind)
	assert.Nil(t, out.Result)

	p, err = mem.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 25, p.XP)
	assert.Len(t, mem.Changes(1), 1)
	assert.Equal(t, 1, counts[string(dailycheck.GoalMet)])
}

func TestRun_NoMealsAdvancesMarkerWithoutXP(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{XP: 40, Level: 2, DailyCalorieGoal: goal(2000)})

	out, err := newScheduler(mem).Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dailycheck.NoMeals, out.Kind)
	assert.Equal(t, 0, out.XPChange)
	assert.Nil(t, out.Result)

	p, err := mem.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 40, p.XP)
	assert.Equal(t, "2025-03-10", p.LastDailyXPCheck)
	assert.Empty(t, mem.Changes(1))
}

func TestRun_GoalExceededPenalises(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{XP: 5, Level: 3, DailyCalorieGoal: goal(1500)})
	mem.AddMeal(1, 2100, time.Date(2025, 3, 9, 13, 0, 0, 0, time.UTC))

	out, err := newScheduler(mem).Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, dailycheck.GoalExceeded, out.Kind)
	assert.Equal(t, -10, out.XPChange)
	assert.Equal(t, xp.Result{NewXP: 0, NewLevel: 3}, *out.Result)
	assert.Empty(t, out.Unlocked)
}

func TestRun_ExactlyOnGoalCountsAsMet(t *testing.T) {
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{Level: 1, DailyCalorieGoal: goal(2000)})
	mem.AddMeal(1, 2000, time.Date(2025, 3, 9, 13, 0, 0, 0, time.UTC))

	out, err := newScheduler(mem).Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, dailycheck.GoalMet, out.Kind)
}

func TestRun_NoGoal(t *testing.T) {
	for name, g := range map[string]*float64{"unset": nil, "zero": goal(0), "negative": goal(-5)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mem := store.NewMemory()
			mem.PutProfile(1, xp.Progress{Level: 1, DailyCalorieGoal: g})
			mem.AddMeal(1, 1800, time.Date(2025, 3, 9, 13, 0, 0, 0, time.UTC))

			out, err := newScheduler(mem).Run(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, dailycheck.NoGoal, out.Kind)

			p, err := mem.Progress(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 0, p.XP)
			assert.Equal(t, "2025-03-10", p.LastDailyXPCheck)
		})
	}
}

// TestRun_UsesProfileTimezone checks that day boundaries follow the user's
// timezone. At 2025-03-10 03:00 UTC it is still 2025-03-09 in New York, so
// "yesterday" there is 2025-03-08 local.
func TestRun_UsesProfileTimezone(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)

	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{Level: 1, DailyCalorieGoal: goal(2000), Timezone: "America/New_York"})
	// 2025-03-08 23:30 in New York, i.e. 2025-03-09 04:30 UTC.
	mem.AddMeal(1, 1200, time.Date(2025, 3, 8, 23, 30, 0, 0, ny))
	// 2025-03-09 10:00 in New York: local today, excluded.
	mem.AddMeal(1, 5000, time.Date(2025, 3, 9, 10, 0, 0, 0, ny))

	applier := xp.NewApplier(mem, xp.WithBackoff(0))
	s := dailycheck.New(applier, mem, logger.Nop(), dailycheck.WithClock(func() time.Time { return now }))

	out, err := s.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", out.Day)
	assert.Equal(t, "2025-03-08", out.Yesterday)
	assert.Equal(t, 1200.0, out.TotalCalories)
	assert.Equal(t, dailycheck.GoalMet, out.Kind)
}

func TestRun_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{Level: 1, Timezone: "Mars/Olympus_Mons"})

	out, err := newScheduler(mem).Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", out.Day)
}

func TestRun_ConflictExhaustedLeavesMarker(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{XP: 10, Level: 1, DailyCalorieGoal: goal(2000), LastDailyXPCheck: "2025-03-09"})
	mem.AddMeal(1, 1500, time.Date(2025, 3, 9, 13, 0, 0, 0, time.UTC))
	mem.SimulateConcurrentWrites(1, 100)

	_, err := newScheduler(mem).Run(ctx, 1)
	require.ErrorIs(t, err, xp.ErrConflictExhausted)

	p, err := mem.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, p.XP)
	assert.Equal(t, "2025-03-09", p.LastDailyXPCheck)
}

func TestRun_ProfileNotFound(t *testing.T) {
	_, err := newScheduler(store.NewMemory()).Run(context.Background(), 9)
	assert.ErrorIs(t, err, xp.ErrProfileNotFound)
}

// TestRun_ConcurrentRunsAwardOnce runs the check from several goroutines at
// once. Exactly one of them applies the reward.
func TestRun_ConcurrentRunsAwardOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.PutProfile(1, xp.Progress{Level: 1, DailyCalorieGoal: goal(2000)})
	mem.AddMeal(1, 1500, time.Date(2025, 3, 9, 13, 0, 0, 0, time.UTC))

	applier := xp.NewApplier(mem, xp.WithBackoff(0), xp.WithMaxAttempts(50))
	s := dailycheck.New(applier, mem, logger.Nop(), dailycheck.WithClock(func() time.Time { return fixedNow }))

	const n = 8
	kinds := make(chan dailycheck.Kind, n)
	for i := 0; i < n; i++ {
		go func() {
			out, err := s.Run(ctx, 1)
			if err != nil {
				kinds <- ""
				return
			}
			kinds <- out.Kind
		}()
	}
	met := 0
	for i := 0; i < n; i++ {
		k := <-kinds
		require.NotEmpty(t, k)
		if k == dailycheck.GoalMet {
			met++
		}
	}
	assert.Equal(t, 1, met)

	p, err := mem.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 25, p.XP)
	assert.Len(t, mem.Changes(1), 1)
}
