package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/fitquest-api/internal/projection"
	"lg/fitquest-api/internal/xp"
)

// makeProfile returns a profile with every field the projection needs.
// Tests nil out fields to exercise the missing-field guards.
func makeProfile() *userProfile {
	weight, goalWeight, height := 85.0, 75.0, 180.0
	age, weeks := 30, 12
	gender, activity := "male", "lightly active"
	return &userProfile{
		CurrentWeightKg:   &weight,
		WeightGoalKg:      &goalWeight,
		HeightCm:          &height,
		Age:               &age,
		Gender:            &gender,
		ActivityLevel:     &activity,
		GoalTimelineWeeks: &weeks,
		XP:                30,
		Level:             2,
	}
}

/* ─── computeProjection ─────────────────────────────────────────────── */

func TestComputeProjection_MissingFields(t *testing.T) {
	cases := []struct {
		name  string
		mutFn func(p *userProfile)
	}{
		{"nil CurrentWeightKg", func(p *userProfile) { p.CurrentWeightKg = nil }},
		{"nil WeightGoalKg", func(p *userProfile) { p.WeightGoalKg = nil }},
		{"nil HeightCm", func(p *userProfile) { p.HeightCm = nil }},
		{"nil Age", func(p *userProfile) { p.Age = nil }},
		{"nil Gender", func(p *userProfile) { p.Gender = nil }},
		{"nil ActivityLevel", func(p *userProfile) { p.ActivityLevel = nil }},
		{"nil GoalTimelineWeeks", func(p *userProfile) { p.GoalTimelineWeeks = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := makeProfile()
			tc.mutFn(p)
			_, ok := computeProjection(projection.Calculator{}, p)
			assert.False(t, ok)
		})
	}
}

func TestComputeProjection_MatchesCalculator(t *testing.T) {
	res, ok := computeProjection(projection.Calculator{}, makeProfile())
	require.True(t, ok)
	assert.InDelta(t, 1830, res.BMR, 1e-9)
	assert.InDelta(t, 1599.58, res.RecommendedDailyCalories, 0.01)
}

// A goal at or above the current weight has no deficit to plan.
func TestComputeProjection_GoalNotBelowCurrent(t *testing.T) {
	p := makeProfile()
	*p.WeightGoalKg = *p.CurrentWeightKg
	_, ok := computeProjection(projection.Calculator{}, p)
	assert.False(t, ok)
}

func TestComputeProjection_OtherGenderUsesConfiguredConstant(t *testing.T) {
	p := makeProfile()
	*p.Gender = "other"

	avg, ok := computeProjection(projection.Calculator{Other: projection.OtherAverage}, p)
	require.True(t, ok)
	female, ok := computeProjection(projection.Calculator{Other: projection.OtherFemale}, p)
	require.True(t, ok)

	assert.InDelta(t, 1747, avg.BMR, 1e-9)
	assert.InDelta(t, 1664, female.BMR, 1e-9)
}

/* ─── populateComputed ──────────────────────────────────────────────── */

func TestPopulateComputed(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	p := makeProfile()

	h.populateComputed(p)

	require.NotNil(t, p.BMI)
	assert.Equal(t, 26.2, *p.BMI)
	assert.Equal(t, "overweight", *p.BMICategory)
	require.NotNil(t, p.Projection)
	assert.InDelta(t, 2516.25, p.Projection.TDEE, 1e-9)
	assert.Equal(t, 70, p.XPToNextLevel)
}

func TestPopulateComputed_PartialProfile(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	p := &userProfile{XP: 0, Level: 1}

	h.populateComputed(p)

	assert.Nil(t, p.BMI)
	assert.Nil(t, p.Projection)
	assert.Equal(t, xp.DefaultXPPerLevel, p.XPToNextLevel)
}

/* ─── autoCalorieGoal ────────────────────────────────────────────────── */

func TestAutoCalorieGoal(t *testing.T) {
	goal, warning, ok := autoCalorieGoal(projection.Calculator{}, makeProfile())
	require.True(t, ok)
	assert.Equal(t, 1600.0, goal)
	assert.Empty(t, warning)
}

// Losing 10 kg in one week needs a deficit larger than the whole TDEE.
func TestAutoCalorieGoal_TimelineTooShort(t *testing.T) {
	p := makeProfile()
	*p.GoalTimelineWeeks = 1

	res, ok := computeProjection(projection.Calculator{}, p)
	require.True(t, ok)
	require.Negative(t, res.RecommendedDailyCalories)

	goal, warning, ok := autoCalorieGoal(projection.Calculator{}, p)
	assert.False(t, ok)
	assert.Zero(t, goal)
	assert.Equal(t, tooShortTimelineWarning, warning)
}

func TestAutoCalorieGoal_IncompleteProfile(t *testing.T) {
	p := makeProfile()
	p.HeightCm = nil

	_, warning, ok := autoCalorieGoal(projection.Calculator{}, p)
	assert.False(t, ok)
	assert.Empty(t, warning)
}

/* ─── getProfile ────────────────────────────────────────────────────── */

func TestGetProfile(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	h.profiles = memProfiles{1: *makeProfile()}

	w := doRequest(testRouter(h, 1), http.MethodGet, "/api/profile", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[userProfile](t, w)
	require.NotNil(t, p.BMI)
	assert.Equal(t, 26.2, *p.BMI)
	require.NotNil(t, p.Projection)
	assert.InDelta(t, 1599.58, p.Projection.RecommendedDailyCalories, 0.01)
	assert.Equal(t, 70, p.XPToNextLevel)
}

func TestGetProfile_NotFound(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))

	w := doRequest(testRouter(h, 9), http.MethodGet, "/api/profile", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

/* ─── patchProfile validation ───────────────────────────────────────── */

func TestValidateProfilePatch(t *testing.T) {
	s := func(v string) *string { return &v }

	cases := []struct {
		name    string
		body    patchProfileRequest
		wantErr string
	}{
		{"empty", patchProfileRequest{}, ""},
		{"valid", patchProfileRequest{ActivityLevel: s("very active"), Timezone: s("Europe/Lisbon")}, ""},
		{"activity", patchProfileRequest{ActivityLevel: s("couch")},
			"activity_level must be one of: sedentary, lightly active, moderately active, very active, extra active"},
		{"timezone", patchProfileRequest{Timezone: s("Mars/Olympus")}, "timezone must be an IANA name such as Europe/Lisbon"},
		{"empty timezone", patchProfileRequest{Timezone: s("")}, "timezone must be an IANA name such as Europe/Lisbon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantErr, validateProfilePatch(tc.body))
		})
	}
}

// Every case is rejected before the update query runs.
func TestPatchProfile_RejectsInvalidBody(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	router := testRouter(h, 1)

	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed", `{"age":`, "invalid request body"},
		{"zero weight", `{"current_weight_kg":0}`, "current_weight_kg must be greater than 0"},
		{"negative goal", `{"daily_calorie_goal":-1}`, "daily_calorie_goal must be greater than 0"},
		{"age too low", `{"age":0}`, "age must be at least 1"},
		{"age too high", `{"age":200}`, "age must be at most 130"},
		{"timeline", `{"goal_timeline_weeks":0}`, "goal_timeline_weeks must be at least 1"},
		{"gender", `{"gender":"robot"}`, "gender must be one of: male, female, other"},
		{"activity", `{"activity_level":"couch"}`,
			"activity_level must be one of: sedentary, lightly active, moderately active, very active, extra active"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPatch, "/api/profile", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.wantErr, decode[struct {
				Error string `json:"error"`
			}](t, w).Error)
		})
	}
}
