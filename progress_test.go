package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/llm"
	"lg/fitquest-api/internal/xp"
)

func TestGetXPStatus(t *testing.T) {
	h, mem := newTestHandler(t, testConfig(""))
	mem.PutProfile(1, xp.Progress{XP: 50, Level: 3, LastDailyXPCheck: "2025-03-09"})

	w := doRequest(testRouter(h, 1), http.MethodGet, "/api/xp", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"xp": 50,
		"level": 3,
		"xp_per_level": 100,
		"xp_to_next_level": 50,
		"progress_percent": 50,
		"last_daily_xp_check": "2025-03-09"
	}`, w.Body.String())
}

func TestListAchievements(t *testing.T) {
	h, mem := newTestHandler(t, testConfig(""))
	mem.PutProfile(1, xp.Progress{})
	_, err := h.achievements.Unlock(t.Context(), 1, achievements.FirstLog)
	require.NoError(t, err)

	w := doRequest(testRouter(h, 1), http.MethodGet, "/api/achievements", "")

	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]achievements.Status](t, w)
	require.Len(t, list, len(achievements.Catalogue()))
	for _, s := range list {
		assert.Equal(t, s.ID == achievements.FirstLog, s.Unlocked, s.ID)
	}
}

const projectionBody = `{
	"current_weight_kg": 85,
	"goal_weight_kg": 75,
	"height_cm": 180,
	"age": 30,
	"gender": "male",
	"activity_level": "lightly active",
	"goal_timeline_weeks": 12
}`

func TestPostProjection(t *testing.T) {
	h, mem := newTestHandler(t, testConfig(""))
	mem.PutProfile(1, xp.Progress{})
	router := testRouter(h, 1)

	w := doRequest(router, http.MethodPost, "/api/projection", projectionBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[projectionResponse](t, w)
	assert.InDelta(t, 1830, resp.BMR, 1e-9)
	assert.InDelta(t, 2516.25, resp.TDEE, 1e-9)
	assert.InDelta(t, 1599.58, resp.RecommendedDailyCalories, 0.01)
	assert.InDelta(t, 12, resp.TimelineWeeks, 1e-9)
	assert.Nil(t, resp.Tips)
	assert.Equal(t, []string{achievements.AIGenius}, resp.Achievements)

	// Unlocks only once.
	w = doRequest(router, http.MethodPost, "/api/projection", projectionBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[projectionResponse](t, w).Achievements)
}

func TestPostProjection_CustomDeficit(t *testing.T) {
	h, mem := newTestHandler(t, testConfig(""))
	mem.PutProfile(1, xp.Progress{})

	body := `{"current_weight_kg":85,"goal_weight_kg":75,"height_cm":180,"age":30,"gender":"male",
		"activity_level":"lightly active","goal_timeline_weeks":12,"weekly_calorie_deficit":3500}`
	w := doRequest(testRouter(h, 1), http.MethodPost, "/api/projection", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 22, decode[projectionResponse](t, w).TimelineWeeks, 1e-9)
}

func TestPostProjection_InvalidGoal(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))

	w := doRequest(testRouter(h, 1), http.MethodPost, "/api/projection",
		`{"current_weight_kg":70,"goal_weight_kg":75,"height_cm":180,"age":30,"gender":"robot",
		  "activity_level":"couch","goal_timeline_weeks":0}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Equal(t, "invalid goal", resp.Error)
	assert.Contains(t, resp.Fields, "goal_weight_kg")
	assert.Contains(t, resp.Fields, "gender")
	assert.Contains(t, resp.Fields, "activity_level")
	assert.Contains(t, resp.Fields, "goal_timeline_weeks")
}

func TestPostProjection_WithTips(t *testing.T) {
	mock := newMockOpenAI(t)
	mock.content = `{"tips":"Walk 30 minutes a day."}`
	h, mem := newTestHandler(t, testConfig(mock.URL))
	mem.PutProfile(1, xp.Progress{})

	body := projectionBody[:len(projectionBody)-1] + `, "with_tips": true}`
	w := doRequest(testRouter(h, 1), http.MethodPost, "/api/projection", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[projectionResponse](t, w)
	require.NotNil(t, resp.Tips)
	assert.Equal(t, "Walk 30 minutes a day.", *resp.Tips)
}

func TestPostProjection_TipsFailure(t *testing.T) {
	mock := newMockOpenAI(t)
	mock.status = http.StatusInternalServerError
	h, mem := newTestHandler(t, testConfig(mock.URL))
	mem.PutProfile(1, xp.Progress{})

	body := projectionBody[:len(projectionBody)-1] + `, "with_tips": true}`
	w := doRequest(testRouter(h, 1), http.MethodPost, "/api/projection", body)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	unlocked, err := mem.UnlockedAchievements(t.Context(), 1)
	require.NoError(t, err)
	assert.Empty(t, unlocked)
}

func TestGetDailyTip_CachedPerDay(t *testing.T) {
	mock := newMockOpenAI(t)
	mock.content = `{"tip":"Drink a glass of water before each meal."}`
	h, mem := newTestHandler(t, testConfig(mock.URL))
	mem.PutProfile(1, xp.Progress{Timezone: "UTC"})
	router := testRouter(h, 1)

	w := doRequest(router, http.MethodGet, "/api/daily-tip", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"tip":"Drink a glass of water before each meal.","day":"2025-03-10","cached":false}`, w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/daily-tip", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tip":"Drink a glass of water before each meal.","day":"2025-03-10","cached":true}`, w.Body.String())
	assert.EqualValues(t, 1, mock.calls.Load())
}

func TestGetDailyTip_NotConfigured(t *testing.T) {
	cfg := testConfig("")
	cfg.OpenAIKey = ""
	h, _ := newTestHandler(t, cfg)

	w := doRequest(testRouter(h, 1), http.MethodGet, "/api/daily-tip", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTipProfile(t *testing.T) {
	h, _ := newTestHandler(t, testConfig(""))
	p := makeProfile()
	name, prefs := "Ana", "vegetarian"
	p.Name, p.DietaryPreferences = &name, &prefs
	h.profiles = memProfiles{1: *p}

	assert.Equal(t, llm.Profile{
		Name:               "Ana",
		CurrentWeightKg:    85,
		GoalWeightKg:       75,
		HeightCm:           180,
		Age:                30,
		Gender:             "male",
		ActivityLevel:      "lightly active",
		DietaryPreferences: "vegetarian",
	}, h.tipProfile(t.Context(), 1))

	// An unreadable profile still yields a tip prompt.
	assert.Equal(t, llm.Profile{}, h.tipProfile(t.Context(), 2))
}
