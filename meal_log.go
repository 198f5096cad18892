package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"lg/fitquest-api/internal/llm"
	"lg/fitquest-api/internal/xp"
)

const dateLayout = "2006-01-02"

// dayRange returns [start of date, start of next day) in loc.
func dayRange(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return d, time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc), nil
}

// weekMonday returns midnight on the Monday of the week containing t, in
// t's location. AddDate handles month and year boundaries.
func weekMonday(t time.Time) time.Time {
	weekday := int(t.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7
	}
	d := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// summarize fills the goal-dependent fields of a day summary.
func summarize(d daySummary, goal *float64) daySummary {
	if goal != nil && *goal > 0 {
		g := *goal
		left := g - d.Calories
		d.DailyCalorieGoal = &g
		d.CaloriesLeft = &left
	}
	return d
}

// perDayQuery groups a user's meals by local day within [from, to).
const perDayQuery = `SELECT
		(eaten_at AT TIME ZONE @tz)::date AS day,
		COALESCE(SUM(calories), 0)        AS calories,
		COALESCE(SUM(protein_g), 0)       AS protein_g,
		COALESCE(SUM(carbohydrates_g), 0) AS carbohydrates_g,
		COALESCE(SUM(fat_g), 0)           AS fat_g,
		COALESCE(SUM(fiber_g), 0)         AS fiber_g,
		COUNT(*)::int                     AS meals
	 FROM meals
	 WHERE user_id = @userID AND eaten_at >= @from AND eaten_at < @to
	 GROUP BY day
	 ORDER BY day ASC`

// getDailyMeals returns the meals and totals for one local day.
// GET /api/meals/daily?date=YYYY-MM-DD (defaults to today in the user's timezone).
func (h *Handler) getDailyMeals(c *gin.Context) {
	userID := c.GetInt("user_id")
	loc := h.userLocation(c, userID)
	date := c.DefaultQuery("date", h.now().In(loc).Format(dateLayout))

	from, to, err := dayRange(date, loc)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	items, err := queryMany[meal](c, h.db,
		`SELECT * FROM meals
		 WHERE user_id = @userID AND eaten_at >= @from AND eaten_at < @to
		 ORDER BY eaten_at`,
		pgx.NamedArgs{"userID": userID, "from": from, "to": to})
	if err != nil {
		h.log.Error("fetch meals failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch meals")
		return
	}
	if items == nil {
		items = []meal{}
	}

	day := daySummary{Date: DateOnly{from}, Meals: len(items), HasData: len(items) > 0}
	for _, m := range items {
		day.Calories += m.Calories
		day.ProteinG += m.ProteinG
		day.CarbohydratesG += m.CarbohydratesG
		day.FatG += m.FatG
		day.FiberG += m.FiberG
	}

	p, err := h.core.Progress(c, userID)
	if err != nil {
		h.coreError(c, err, "fetch profile")
		return
	}

	c.JSON(http.StatusOK, dailyMeals{daySummary: summarize(day, p.DailyCalorieGoal), Items: items})
}

// getWeekSummary returns per-day totals for the Mon-Sun week containing
// week_start. Days with no meals are included with has_data=false.
// GET /api/meals/week-summary?week_start=YYYY-MM-DD (defaults to the current week).
func (h *Handler) getWeekSummary(c *gin.Context) {
	userID := c.GetInt("user_id")
	loc := h.userLocation(c, userID)

	weekStart := weekMonday(h.now().In(loc))
	if s := c.Query("week_start"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid week_start, expected YYYY-MM-DD")
			return
		}
		weekStart = t
	}
	weekEnd := weekStart.AddDate(0, 0, 7)

	p, err := h.core.Progress(c, userID)
	if err != nil {
		h.coreError(c, err, "fetch profile")
		return
	}

	rows, err := queryMany[dayDBRow](c, h.db, perDayQuery,
		pgx.NamedArgs{"userID": userID, "tz": loc.String(), "from": weekStart, "to": weekEnd})
	if err != nil {
		h.log.Error("fetch week summary failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch week data")
		return
	}

	rowByDate := make(map[string]dayDBRow, len(rows))
	for _, r := range rows {
		rowByDate[r.Date.Time.Format(dateLayout)] = r
	}

	result := make([]daySummary, 7)
	for i := 0; i < 7; i++ {
		d := weekStart.AddDate(0, 0, i)
		day := daySummary{Date: DateOnly{d}}
		if row, ok := rowByDate[d.Format(dateLayout)]; ok {
			day = rowSummary(row)
		}
		result[i] = summarize(day, p.DailyCalorieGoal)
	}

	c.JSON(http.StatusOK, result)
}

func rowSummary(r dayDBRow) daySummary {
	return daySummary{
		Date:           r.Date,
		Calories:       r.Calories,
		ProteinG:       r.ProteinG,
		CarbohydratesG: r.CarbohydratesG,
		FatG:           r.FatG,
		FiberG:         r.FiberG,
		Meals:          r.Meals,
		HasData:        true,
	}
}

// progressFromRows builds per-day summaries and stats for the days with meals.
// A day counts as on goal when 0 < calories <= goal, matching the daily check.
func progressFromRows(rows []dayDBRow, goal *float64) progressResponse {
	days := make([]daySummary, 0, len(rows))
	var stats progressStats
	var protein float64
	for _, row := range rows {
		days = append(days, summarize(rowSummary(row), goal))
		stats.DaysTracked++
		if goal != nil && *goal > 0 && row.Calories > 0 && row.Calories <= *goal {
			stats.DaysOnGoal++
		}
		stats.TotalCaloriesIn += row.Calories
		protein += row.ProteinG
	}
	if stats.DaysTracked > 0 {
		stats.AvgCalories = stats.TotalCaloriesIn / float64(stats.DaysTracked)
		stats.AvgProteinG = protein / float64(stats.DaysTracked)
	}
	return progressResponse{Days: days, Stats: stats}
}

// getMealProgress returns per-day totals and aggregate stats for a date range.
// GET /api/meals/progress?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Only days with meals are returned.
func (h *Handler) getMealProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	loc := h.userLocation(c, userID)
	start, end := c.Query("start"), c.Query("end")

	if start == "" || end == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	from, _, err := dayRange(start, loc)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	_, to, err := dayRange(end, loc)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start > end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	p, err := h.core.Progress(c, userID)
	if err != nil {
		h.coreError(c, err, "fetch profile")
		return
	}

	rows, err := queryMany[dayDBRow](c, h.db, perDayQuery,
		pgx.NamedArgs{"userID": userID, "tz": loc.String(), "from": from, "to": to})
	if err != nil {
		h.log.Error("fetch progress failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch progress data")
		return
	}

	c.JSON(http.StatusOK, progressFromRows(rows, p.DailyCalorieGoal))
}

// getEarliestMealDate returns the earliest local day the user logged a meal.
// GET /api/meals/earliest-date. Returns {"date": null} if there are no meals.
func (h *Handler) getEarliestMealDate(c *gin.Context) {
	userID := c.GetInt("user_id")
	loc := h.userLocation(c, userID)

	var date *string
	err := h.db.QueryRow(c,
		`SELECT TO_CHAR(MIN(eaten_at AT TIME ZONE @tz), 'YYYY-MM-DD') FROM meals WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": userID, "tz": loc.String()}).Scan(&date)
	if err != nil {
		h.log.Error("fetch earliest meal date failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch earliest date")
		return
	}

	c.JSON(http.StatusOK, gin.H{"date": date})
}

// validateMeal covers what the binding tags cannot: a name of only
// whitespace.
func validateMeal(m createMealRequest) string {
	if strings.TrimSpace(m.Name) == "" {
		return "name is required"
	}
	return ""
}

// insertMeal persists a meal, awards LOG_MEAL XP and checks the logging
// streak achievements.
func (h *Handler) insertMeal(c *gin.Context, userID int, body createMealRequest) {
	eatenAt := h.now()
	if body.EatenAt != nil {
		eatenAt = *body.EatenAt
	}

	m, err := queryOne[meal](c, h.db,
		`INSERT INTO meals (user_id, name, description, calories, protein_g, carbohydrates_g, fat_g, fiber_g, eaten_at)
		 VALUES (@userID, @name, @description, @calories, @proteinG, @carbohydratesG, @fatG, @fiberG, @eatenAt)
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": userID, "name": strings.TrimSpace(body.Name), "description": body.Description,
			"calories": body.Calories, "proteinG": body.ProteinG, "carbohydratesG": body.CarbohydratesG,
			"fatG": body.FatG, "fiberG": body.FiberG, "eatenAt": eatenAt,
		})
	if err != nil {
		h.log.Error("create meal failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to create meal")
		return
	}

	resp := mealResponse{Meal: m, XP: h.award(c, userID, xp.EventLogMeal)}
	unlocked, err := h.achievements.CheckMealStreaks(c, userID, h.userLocation(c, userID))
	if err != nil {
		h.log.Error("meal streak check failed", "user_id", userID, "error", err)
	}
	h.announce(userID, unlocked...)
	resp.Achievements = unlocked

	c.JSON(http.StatusCreated, resp)
}

// createMeal inserts a meal with explicit nutrition facts.
// POST /api/meals.
func (h *Handler) createMeal(c *gin.Context) {
	var body createMealRequest
	if !bindJSON(c, &body) {
		return
	}
	if msg := validateMeal(body); msg != "" {
		apiError(c, http.StatusBadRequest, msg)
		return
	}
	h.insertMeal(c, c.GetInt("user_id"), body)
}

// logMeal parses a free-text description with the LLM and saves the result.
// POST /api/meals/log. Body: {"description": "2 eggs and toast", "eaten_at"?}.
func (h *Handler) logMeal(c *gin.Context) {
	var body logMealRequest
	if !bindJSON(c, &body) {
		return
	}
	if strings.TrimSpace(body.Description) == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}

	parsed, ok := h.parseMeal(c, body.Description)
	if !ok {
		return
	}
	h.insertMeal(c, c.GetInt("user_id"), createMealRequest{
		Name:           parsed.Name,
		Description:    &body.Description,
		Calories:       parsed.Calories,
		ProteinG:       parsed.ProteinG,
		CarbohydratesG: parsed.CarbohydratesG,
		FatG:           parsed.FatG,
		FiberG:         parsed.FiberG,
		EatenAt:        body.EatenAt,
	})
}

// updateMeal partially updates a meal. Omitted fields keep their value.
// PUT /api/meals/:id.
func (h *Handler) updateMeal(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	var body updateMealRequest
	if !bindJSON(c, &body) {
		return
	}

	m, err := queryOne[meal](c, h.db,
		`UPDATE meals SET
			name            = COALESCE(@name, name),
			calories        = COALESCE(@calories, calories),
			protein_g       = COALESCE(@proteinG, protein_g),
			carbohydrates_g = COALESCE(@carbohydratesG, carbohydrates_g),
			fat_g           = COALESCE(@fatG, fat_g),
			fiber_g         = COALESCE(@fiberG, fiber_g),
			eaten_at        = COALESCE(@eatenAt, eaten_at),
			updated_at      = now()
		 WHERE id = @id AND user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{
			"id": id, "userID": userID, "name": body.Name, "calories": body.Calories,
			"proteinG": body.ProteinG, "carbohydratesG": body.CarbohydratesG,
			"fatG": body.FatG, "fiberG": body.FiberG, "eatenAt": body.EatenAt,
		})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apiError(c, http.StatusNotFound, "meal not found")
		} else {
			h.log.Error("update meal failed", "user_id", userID, "meal_id", id, "error", err)
			apiError(c, http.StatusInternalServerError, "failed to update meal")
		}
		return
	}

	c.JSON(http.StatusOK, m)
}

// deleteMeal removes a meal. Returns 204 on success. XP already granted for
// it is kept.
// DELETE /api/meals/:id.
func (h *Handler) deleteMeal(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	result, err := h.db.Exec(c,
		"DELETE FROM meals WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
	if err != nil {
		h.log.Error("delete meal failed", "user_id", userID, "meal_id", id, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to delete meal")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "meal not found")
		return
	}

	c.Status(http.StatusNoContent)
}

// parseMeal runs the LLM meal parser and writes the error response itself
// when it fails. An unrecognized description answers 200 {"error":
// "unrecognized"} so the client can prompt for a clearer description.
func (h *Handler) parseMeal(c *gin.Context, description string) (llm.Meal, bool) {
	parsed, err := h.llm.ParseMeal(c.Request.Context(), description)
	switch {
	case err == nil:
		return parsed, true
	case errors.Is(err, llm.ErrUnrecognized):
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
	case errors.Is(err, llm.ErrNotConfigured):
		h.coreError(c, err, "parse meal")
	default:
		h.log.Error("openai meal parse failed", "user_id", c.GetInt("user_id"), "error", err)
		apiError(c, http.StatusBadGateway, "openai request failed")
	}
	return llm.Meal{}, false
}
