package main

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/llm"
	"lg/fitquest-api/internal/projection"
)

// getXPStatus returns the user's XP, level and progress toward the next level.
// GET /api/xp.
func (h *Handler) getXPStatus(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.core.Progress(c, userID)
	if err != nil {
		h.coreError(c, err, "fetch xp")
		return
	}

	rules := h.applier.Rules()
	c.JSON(http.StatusOK, xpStatus{
		XP:               p.XP,
		Level:            p.Level,
		XPPerLevel:       rules.XPPerLevel,
		XPToNextLevel:    rules.ToNextLevel(p.XP),
		ProgressPercent:  math.Round(float64(p.XP)/float64(rules.XPPerLevel)*1000) / 10,
		LastDailyXPCheck: p.LastDailyXPCheck,
	})
}

// listAchievements returns the whole catalogue with the user's unlock state.
// GET /api/achievements.
func (h *Handler) listAchievements(c *gin.Context) {
	userID := c.GetInt("user_id")

	list, err := h.achievements.List(c, userID)
	if err != nil {
		h.coreError(c, err, "list achievements")
		return
	}

	c.JSON(http.StatusOK, list)
}

// postProjection computes BMR, TDEE and the daily intake that reaches the
// goal weight within the timeline. With with_tips the LLM adds a
// personalised plan; a failure there fails the request with 502 since the
// caller asked for it.
// POST /api/projection.
func (h *Handler) postProjection(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body projectionRequest
	if !bindJSON(c, &body) {
		return
	}

	res, err := h.projection.Calculate(body.Input)
	if err != nil {
		h.coreError(c, err, "projection")
		return
	}

	weekly := res.RequiredWeeklyDeficit
	if body.WeeklyCalorieDeficit != nil {
		weekly = *body.WeeklyCalorieDeficit
	}
	weeks, err := projection.ProjectTimeline(body.CurrentWeightKg, body.GoalWeightKg, weekly)
	if err != nil {
		h.coreError(c, err, "projection")
		return
	}

	resp := projectionResponse{Result: res, TimelineWeeks: math.Round(weeks*10) / 10}

	if body.WithTips {
		tips, err := h.llm.ProjectionTips(c.Request.Context(), llm.Profile{
			CurrentWeightKg: body.CurrentWeightKg,
			GoalWeightKg:    body.GoalWeightKg,
			HeightCm:        body.HeightCm,
			Age:             body.Age,
			Gender:          string(body.Gender),
			ActivityLevel:   body.ActivityLevel,
		}, llm.Plan{
			TimelineWeeks:            float64(body.GoalTimelineWeeks),
			RequiredWeeklyDeficit:    res.RequiredWeeklyDeficit,
			RecommendedDailyCalories: res.RecommendedDailyCalories,
		})
		if err != nil {
			if errors.Is(err, llm.ErrNotConfigured) {
				h.coreError(c, err, "projection tips")
				return
			}
			h.log.Error("openai projection tips failed", "user_id", userID, "error", err)
			apiError(c, http.StatusBadGateway, "openai request failed")
			return
		}
		resp.Tips = &tips
	}

	resp.Achievements = h.unlock(c, userID, achievements.AIGenius)

	c.JSON(http.StatusOK, resp)
}

// tipProfile loads what the tip prompt needs. If the profile cannot be read
// the tip is written from an empty one.
func (h *Handler) tipProfile(ctx context.Context, userID int) llm.Profile {
	p, err := h.profiles.Profile(ctx, userID)
	if err != nil {
		h.log.Warn("tip profile lookup failed", "user_id", userID, "error", err)
		return llm.Profile{}
	}
	var out llm.Profile
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.CurrentWeightKg != nil {
		out.CurrentWeightKg = *p.CurrentWeightKg
	}
	if p.WeightGoalKg != nil {
		out.GoalWeightKg = *p.WeightGoalKg
	}
	if p.HeightCm != nil {
		out.HeightCm = *p.HeightCm
	}
	if p.Age != nil {
		out.Age = float64(*p.Age)
	}
	if p.Gender != nil {
		out.Gender = *p.Gender
	}
	if p.ActivityLevel != nil {
		out.ActivityLevel = *p.ActivityLevel
	}
	if p.DietaryPreferences != nil {
		out.DietaryPreferences = *p.DietaryPreferences
	}
	return out
}

// getDailyTip returns today's motivational tip, generating it on the first
// request of the user's local day.
// GET /api/daily-tip.
func (h *Handler) getDailyTip(c *gin.Context) {
	userID := c.GetInt("user_id")
	day := h.now().In(h.userLocation(c, userID)).Format(dateLayout)

	tip, ok, err := h.tips.Get(c, userID, day)
	if err != nil {
		h.log.Warn("tip cache read failed", "user_id", userID, "error", err)
	}
	if ok {
		c.JSON(http.StatusOK, gin.H{"tip": tip, "day": day, "cached": true})
		return
	}

	tip, err = h.llm.DailyTip(c.Request.Context(), h.tipProfile(c, userID))
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			h.coreError(c, err, "daily tip")
			return
		}
		h.log.Error("openai daily tip failed", "user_id", userID, "error", err)
		apiError(c, http.StatusBadGateway, "openai request failed")
		return
	}

	if err := h.tips.Set(c, userID, day, tip); err != nil {
		h.log.Warn("tip cache write failed", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"tip": tip, "day": day, "cached": false})
}
