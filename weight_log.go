package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/xp"
)

// getWeightLog returns weight measurements within [start, end].
// GET /api/weight?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Returns an empty array (not null) if no measurements exist in the range.
func (h *Handler) getWeightLog(c *gin.Context) {
	userID := c.GetInt("user_id")
	start := c.Query("start")
	end := c.Query("end")

	if start == "" || end == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	if _, err := time.Parse(dateLayout, start); err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start > end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	entries, err := queryMany[weightMeasurement](c, h.db,
		`SELECT * FROM weight_measurements
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
	if err != nil {
		h.log.Error("fetch weight log failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to fetch weight log")
		return
	}
	if entries == nil {
		entries = []weightMeasurement{}
	}

	c.JSON(http.StatusOK, entries)
}

// weightUpsert is a measurement plus whether the upsert inserted it.
type weightUpsert struct {
	weightMeasurement
	Inserted bool `db:"inserted"`
}

// awardWeight grants LOG_WEIGHT XP for a newly inserted measurement.
// Replacing an existing day's value earns nothing.
func (h *Handler) awardWeight(ctx context.Context, userID int, inserted bool) *xpAward {
	if !inserted {
		return nil
	}
	return h.award(ctx, userID, xp.EventLogWeight)
}

// upsertWeight records the weight for a date, replacing an existing entry
// for the same date. Only a new entry earns LOG_WEIGHT XP, so re-posting a
// day cannot farm XP. The latest measurement becomes the profile's current
// weight, and reaching the goal weight unlocks the milestone achievement.
// POST /api/weight. Body: {"date"?: "YYYY-MM-DD", "weight_kg": 82.5}.
func (h *Handler) upsertWeight(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body weightRequest
	if !bindJSON(c, &body) {
		return
	}
	if body.Date == "" {
		body.Date = h.now().In(h.userLocation(c, userID)).Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, body.Date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	// xmax is 0 only on rows this statement inserted.
	up, err := queryOne[weightUpsert](c, h.db,
		`INSERT INTO weight_measurements (user_id, date, weight_kg)
		 VALUES (@userID, @date, @weightKg)
		 ON CONFLICT (user_id, date) DO UPDATE SET weight_kg = EXCLUDED.weight_kg
		 RETURNING *, (xmax = 0) AS inserted`,
		pgx.NamedArgs{"userID": userID, "date": body.Date, "weightKg": body.WeightKg})
	if err != nil {
		h.log.Error("upsert weight failed", "user_id", userID, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to save weight")
		return
	}

	resp := weightResponse{Measurement: up.weightMeasurement, XP: h.awardWeight(c, userID, up.Inserted)}

	var goal *float64
	err = h.db.QueryRow(c,
		`UPDATE user_profiles SET current_weight_kg = @weightKg, updated_at = now()
		 WHERE user_id = @userID
		   AND NOT EXISTS (SELECT 1 FROM weight_measurements WHERE user_id = @userID AND date > @date)
		 RETURNING weight_goal_kg`,
		pgx.NamedArgs{"userID": userID, "date": body.Date, "weightKg": body.WeightKg}).Scan(&goal)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// An older date; the current weight stays.
	case err != nil:
		h.log.Error("update current weight failed", "user_id", userID, "error", err)
	case goal != nil && body.WeightKg <= *goal:
		resp.Achievements = h.unlock(c, userID, achievements.WeightLossMilestone)
	}

	status := http.StatusOK
	if up.Inserted {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// updateWeight partially updates a measurement.
// PUT /api/weight/:id. Body: {"date"?, "weight_kg"?}. Omitted fields keep
// their current values.
func (h *Handler) updateWeight(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	var body updateWeightRequest
	if !bindJSON(c, &body) {
		return
	}
	if body.Date != nil {
		if _, err := time.Parse(dateLayout, *body.Date); err != nil {
			apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
	}

	entry, err := queryOne[weightMeasurement](c, h.db,
		`UPDATE weight_measurements SET
			date      = COALESCE(@date, date),
			weight_kg = COALESCE(@weightKg, weight_kg)
		 WHERE id = @id AND user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{"id": id, "userID": userID, "date": body.Date, "weightKg": body.WeightKg})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apiError(c, http.StatusNotFound, "weight entry not found")
		} else {
			h.log.Error("update weight failed", "user_id", userID, "weight_id", id, "error", err)
			apiError(c, http.StatusInternalServerError, "failed to update weight entry")
		}
		return
	}

	c.JSON(http.StatusOK, entry)
}

// deleteWeight removes a measurement by id.
// DELETE /api/weight/:id. Returns 204 on success, 404 if not found.
func (h *Handler) deleteWeight(c *gin.Context) {
	userID := c.GetInt("user_id")
	id := c.Param("id")

	result, err := h.db.Exec(c,
		"DELETE FROM weight_measurements WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
	if err != nil {
		h.log.Error("delete weight failed", "user_id", userID, "weight_id", id, "error", err)
		apiError(c, http.StatusInternalServerError, "failed to delete weight entry")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "weight entry not found")
		return
	}

	c.Status(http.StatusNoContent)
}
