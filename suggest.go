package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// suggestMeal handles POST /api/meals/suggest. It parses a meal description
// into nutrition facts with the LLM and returns them without saving, so the
// client can show the estimate before committing it.
func (h *Handler) suggestMeal(c *gin.Context) {
	var req logMealRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}

	parsed, ok := h.parseMeal(c, req.Description)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, parsed)
}
