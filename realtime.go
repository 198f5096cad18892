package main

import "github.com/gin-gonic/gin"

// serveRealtime upgrades to a websocket that receives the user's XP,
// level-up, achievement and daily-check events.
// GET /api/ws.
func (h *Handler) serveRealtime(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request, c.GetInt("user_id"))
}
