package main

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/projection"
)

// projectionInput builds a projection input from the profile. ok is false
// when a field the calculator needs is missing.
func projectionInput(p *userProfile) (projection.Input, bool) {
	if p.CurrentWeightKg == nil || p.WeightGoalKg == nil || p.HeightCm == nil ||
		p.Age == nil || p.Gender == nil || p.ActivityLevel == nil || p.GoalTimelineWeeks == nil {
		return projection.Input{}, false
	}
	return projection.Input{
		CurrentWeightKg:   *p.CurrentWeightKg,
		GoalWeightKg:      *p.WeightGoalKg,
		HeightCm:          *p.HeightCm,
		Age:               float64(*p.Age),
		Gender:            projection.Gender(*p.Gender),
		ActivityLevel:     *p.ActivityLevel,
		GoalTimelineWeeks: *p.GoalTimelineWeeks,
	}, true
}

// computeProjection runs the goal projection for a complete profile.
// Returns ok=false when fields are missing or the goal is invalid, e.g. the
// goal weight is not below the current weight.
func computeProjection(calc projection.Calculator, p *userProfile) (projection.Result, bool) {
	in, ok := projectionInput(p)
	if !ok {
		return projection.Result{}, false
	}
	res, err := calc.Calculate(in)
	if err != nil {
		return projection.Result{}, false
	}
	return res, true
}

// tooShortTimelineWarning is returned when calorie_goal_auto cannot produce
// a positive goal.
const tooShortTimelineWarning = "goal timeline is too short for a positive daily calorie goal; " +
	"daily_calorie_goal was left unchanged"

// autoCalorieGoal returns the daily goal calorie_goal_auto writes for p: the
// projection's recommended intake rounded to whole calories. ok is false
// when there is nothing to write, either because the projection is
// incomplete or because the intake is not positive, which happens when the
// timeline is too short for the weight to lose. Only the latter sets warning.
func autoCalorieGoal(calc projection.Calculator, p *userProfile) (goal float64, warning string, ok bool) {
	res, ok := computeProjection(calc, p)
	if !ok {
		return 0, "", false
	}
	goal = math.Round(res.RecommendedDailyCalories)
	if goal <= 0 {
		return 0, tooShortTimelineWarning, false
	}
	return goal, "", true
}

// populateComputed fills the computed-only fields on p.
func (h *Handler) populateComputed(p *userProfile) {
	if p.CurrentWeightKg != nil && p.HeightCm != nil {
		if bmi, err := projection.BMI(*p.CurrentWeightKg, *p.HeightCm); err == nil {
			bmi = math.Round(bmi*10) / 10
			category := projection.BMICategory(bmi)
			p.BMI = &bmi
			p.BMICategory = &category
		}
	}
	if res, ok := computeProjection(h.projection, p); ok {
		p.Projection = &res
	}
	p.XPToNextLevel = h.applier.Rules().ToNextLevel(p.XP)
}

// getProfile returns the authenticated user's profile with BMI, projection
// and level progress.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.profiles.Profile(c, userID)
	if err != nil {
		apiError(c, http.StatusNotFound, "profile not found")
		return
	}

	h.populateComputed(&p)

	c.JSON(http.StatusOK, p)
}

// validateProfilePatch returns the first problem with body the binding tags
// cannot express, or "".
func validateProfilePatch(body patchProfileRequest) string {
	if body.ActivityLevel != nil {
		if _, ok := projection.ActivityMultipliers[*body.ActivityLevel]; !ok {
			return "activity_level must be one of: " + strings.Join(projection.ActivityLevels(), ", ")
		}
	}
	if body.Timezone != nil {
		if _, err := time.LoadLocation(*body.Timezone); err != nil || *body.Timezone == "" {
			return "timezone must be an IANA name such as Europe/Lisbon"
		}
	}
	return ""
}

// patchProfile updates only the provided profile fields.
// PATCH /api/profile. Pointer fields distinguish "not provided" from zero.
// When calorie_goal_auto is on after the update, daily_calorie_goal is
// overwritten with the projection's recommended intake, unless that intake
// is not positive; then the goal stays and the response carries a warning.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchProfileRequest
	if !bindJSON(c, &body) {
		return
	}
	if msg := validateProfilePatch(body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}

	setClauses := []string{}
	args := pgx.NamedArgs{"userID": userID}
	set := func(column, arg string, v any) {
		setClauses = append(setClauses, column+" = @"+arg)
		args[arg] = v
	}

	if body.Name != nil {
		set("name", "name", *body.Name)
	}
	if body.CurrentWeightKg != nil {
		set("current_weight_kg", "currentWeightKg", *body.CurrentWeightKg)
	}
	if body.WeightGoalKg != nil {
		set("weight_goal_kg", "weightGoalKg", *body.WeightGoalKg)
	}
	if body.HeightCm != nil {
		set("height_cm", "heightCm", *body.HeightCm)
	}
	if body.Age != nil {
		set("age", "age", *body.Age)
	}
	if body.Gender != nil {
		set("gender", "gender", *body.Gender)
	}
	if body.ActivityLevel != nil {
		set("activity_level", "activityLevel", *body.ActivityLevel)
	}
	if body.DietaryPreferences != nil {
		set("dietary_preferences", "dietaryPreferences", *body.DietaryPreferences)
	}
	if body.DailyCalorieGoal != nil {
		set("daily_calorie_goal", "dailyCalorieGoal", *body.DailyCalorieGoal)
	}
	if body.CalorieGoalAuto != nil {
		set("calorie_goal_auto", "calorieGoalAuto", *body.CalorieGoalAuto)
	}
	if body.GoalTimelineWeeks != nil {
		set("goal_timeline_weeks", "goalTimelineWeeks", *body.GoalTimelineWeeks)
	}
	if body.Timezone != nil {
		set("timezone", "timezone", *body.Timezone)
	}

	if len(setClauses) == 0 {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}

	query := "UPDATE user_profiles SET " +
		strings.Join(setClauses, ", ") +
		", updated_at = now() WHERE user_id = @userID RETURNING *"

	p, err := queryOne[userProfile](c, h.db, query, args)
	if err != nil {
		h.log.Error("update profile failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to update profile")
		return
	}

	var warning string
	if p.CalorieGoalAuto {
		goal, w, ok := autoCalorieGoal(h.projection, &p)
		switch {
		case ok:
			updated, err := queryOne[userProfile](c, h.db,
				"UPDATE user_profiles SET daily_calorie_goal = @goal WHERE user_id = @userID RETURNING *",
				pgx.NamedArgs{"goal": goal, "userID": userID})
			if err != nil {
				h.log.Warn("auto calorie goal update failed", "user_id", userID, "error", err)
			} else {
				p = updated
			}
		case w != "":
			h.log.Warn("auto calorie goal not positive, keeping current goal",
				"user_id", userID, "timeline_weeks", *p.GoalTimelineWeeks)
			warning = w
		}
	}

	h.populateComputed(&p)
	p.Warning = warning
	p.Achievements = h.unlock(c, userID, achievements.FirstLog)

	c.JSON(http.StatusOK, p)
}
