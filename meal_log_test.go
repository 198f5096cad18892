package main

import (
	"net/http"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekMonday(t *testing.T) {
	lisbon, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)

	cases := []struct {
		name string
		in   time.Time
		want string
	}{
		{"monday", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), "2025-03-10"},
		{"sunday belongs to the previous week", time.Date(2025, 3, 16, 23, 0, 0, 0, time.UTC), "2025-03-10"},
		{"across a month boundary", time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), "2025-02-24"},
		{"across a year boundary", time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC), "2025-12-29"},
		{"keeps the location", time.Date(2025, 3, 12, 0, 30, 0, 0, lisbon), "2025-03-10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := weekMonday(tc.in)
			assert.Equal(t, tc.want, got.Format(dateLayout))
			assert.Equal(t, tc.in.Location(), got.Location())
			assert.Zero(t, got.Hour())
		})
	}
}

func TestDayRange_DSTDayIsShort(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	from, to, err := dayRange("2025-03-09", ny)
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, to.Sub(from))
	assert.Equal(t, time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC), from.UTC())

	_, _, err = dayRange("09/03/2025", ny)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	day := daySummary{Calories: 1500}

	noGoal := summarize(day, nil)
	assert.Nil(t, noGoal.DailyCalorieGoal)
	assert.Nil(t, noGoal.CaloriesLeft)

	withGoal := summarize(day, goal(2000))
	require.NotNil(t, withGoal.CaloriesLeft)
	assert.Equal(t, 500.0, *withGoal.CaloriesLeft)

	over := summarize(daySummary{Calories: 2300}, goal(2000))
	assert.Equal(t, -300.0, *over.CaloriesLeft)
}

func TestProgressFromRows(t *testing.T) {
	d := func(day int) DateOnly { return DateOnly{time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)} }
	rows := []dayDBRow{
		{Date: d(1), Calories: 1800, ProteinG: 100, Meals: 3},
		{Date: d(2), Calories: 2000, ProteinG: 80, Meals: 2},
		{Date: d(3), Calories: 2400, ProteinG: 120, Meals: 4},
	}

	resp := progressFromRows(rows, goal(2000))

	require.Len(t, resp.Days, 3)
	assert.True(t, resp.Days[0].HasData)
	assert.Equal(t, 3, resp.Stats.DaysTracked)
	assert.Equal(t, 2, resp.Stats.DaysOnGoal, "exactly on goal counts as met")
	assert.Equal(t, 6200.0, resp.Stats.TotalCaloriesIn)
	assert.InDelta(t, 2066.67, resp.Stats.AvgCalories, 0.01)
	assert.InDelta(t, 100, resp.Stats.AvgProteinG, 1e-9)

	empty := progressFromRows(nil, nil)
	assert.Empty(t, empty.Days)
	assert.NotNil(t, empty.Days)
	assert.Zero(t, empty.Stats.AvgCalories)
}

func TestValidateMeal(t *testing.T) {
	assert.Empty(t, validateMeal(createMealRequest{Name: "Toast", Calories: 120}))
	assert.Equal(t, "name is required", validateMeal(createMealRequest{Name: "  ", Calories: 120}))
}

func TestCreateMeal_RejectsInvalidBody(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	router := testRouter(h, 1)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"name":`, `{"error":"invalid request body"}`},
		{"missing name", `{"calories":120}`, `{"error":"name is required"}`},
		{"blank name", `{"name":"   ","calories":120}`, `{"error":"name is required"}`},
		{"negative calories", `{"name":"Soup","calories":-50}`, `{"error":"calories must be at least 0"}`},
		{"negative macro", `{"name":"Soup","fat_g":-2}`, `{"error":"fat_g must be at least 0"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/meals", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, tc.want, w.Body.String())
		})
	}
}

func TestUpsertWeight_RejectsOutOfRange(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	router := testRouter(h, 1)

	for body, want := range map[string]string{
		`{"date":"2025-03-10","weight_kg":0}`:   "weight_kg must be greater than 0",
		`{"date":"2025-03-10","weight_kg":701}`: "weight_kg must be at most 700",
		`{"date":"10/03/2025","weight_kg":80}`:  "invalid date, expected YYYY-MM-DD",
	} {
		w := doRequest(router, http.MethodPost, "/api/weight", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"`+want+`"}`, w.Body.String(), body)
	}
}
