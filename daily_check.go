package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lg/fitquest-api/internal/realtime"
)

// runDailyCheck evaluates yesterday's intake against the calorie goal and
// applies the reward or penalty at most once per local day.
// POST /api/daily-check. Safe to call on every app open.
func (h *Handler) runDailyCheck(c *gin.Context) {
	userID := c.GetInt("user_id")

	out, err := h.dailyCheck.Run(c.Request.Context(), userID)
	if err != nil {
		h.coreError(c, err, "daily check")
		return
	}

	if out.Result != nil {
		h.publishXP(userID, &xpAward{Event: out.Event(), Delta: out.XPChange, Result: *out.Result})
	}
	h.announce(userID, out.Unlocked...)
	h.hub.Publish(userID, realtime.Event{Type: realtime.EventDailyCheck, Data: out})

	c.JSON(http.StatusOK, out)
}
