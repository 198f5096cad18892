package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/config"
	"lg/fitquest-api/internal/dailycheck"
	"lg/fitquest-api/internal/llm"
	"lg/fitquest-api/internal/logger"
	"lg/fitquest-api/internal/metrics"
	"lg/fitquest-api/internal/projection"
	"lg/fitquest-api/internal/realtime"
	"lg/fitquest-api/internal/tipcache"
	"lg/fitquest-api/internal/xp"
)

// coreStore is what the XP engine, the daily check and achievements need
// from persistence. store.Postgres serves it in production and store.Memory
// in tests.
type coreStore interface {
	xp.Store
	dailycheck.Store
	achievements.Store
}

// profileReader loads a user's profile row.
type profileReader interface {
	Profile(ctx context.Context, userID int) (userProfile, error)
}

// pgProfiles reads profiles from user_profiles.
type pgProfiles struct{ db *pgxpool.Pool }

func (p pgProfiles) Profile(ctx context.Context, userID int) (userProfile, error) {
	return queryOne[userProfile](ctx, p.db,
		"SELECT * FROM user_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

// Handler holds shared dependencies for all route handlers. db serves the
// plain CRUD queries; XP, the daily check and achievements go through core.
type Handler struct {
	db           *pgxpool.Pool
	core         coreStore
	profiles     profileReader
	applier      *xp.Applier
	dailyCheck   *dailycheck.Scheduler
	achievements *achievements.Service
	projection   projection.Calculator
	llm          *llm.Client
	tips         tipcache.Cache
	hub          *realtime.Hub
	metrics      *metrics.Collectors
	log          *logger.Logger
	now          func() time.Time
}

func newHandler(cfg config.Config, db *pgxpool.Pool, core coreStore, tips tipcache.Cache, log *logger.Logger) *Handler {
	m := metrics.New()
	applier := xp.NewApplier(core,
		xp.WithRules(cfg.XPRules),
		xp.WithMaxAttempts(cfg.XPTxMaxAttempts),
		xp.WithObserver(m),
	)
	ach := achievements.NewService(core, log)
	h := &Handler{
		db:           db,
		core:         core,
		profiles:     pgProfiles{db: db},
		applier:      applier,
		achievements: ach,
		projection:   projection.Calculator{Other: cfg.BMROther},
		llm:          llm.New(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel),
		tips:         tips,
		hub:          realtime.NewHub(log, m),
		metrics:      m,
		log:          log,
		now:          time.Now,
	}
	h.dailyCheck = dailycheck.New(applier, core, log,
		dailycheck.WithClock(func() time.Time { return h.now() }),
		dailycheck.WithUnlocker(ach),
		dailycheck.WithObserver(m),
	)
	return h
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
func queryOne[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// coreError maps errors from the XP engine, the daily check and the
// projection calculator to a status code.
func (h *Handler) coreError(c *gin.Context, err error, action string) {
	var invalid *projection.InvalidGoalError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid goal", "fields": invalid.Fields})
	case errors.Is(err, xp.ErrProfileNotFound):
		apiError(c, http.StatusNotFound, "profile not found")
	case errors.Is(err, xp.ErrConflictExhausted):
		c.Header("Retry-After", "1")
		apiError(c, http.StatusServiceUnavailable, "too many concurrent updates, try again")
	case errors.Is(err, llm.ErrNotConfigured):
		apiError(c, http.StatusServiceUnavailable, "ai features are not configured")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apiError(c, http.StatusGatewayTimeout, "request cancelled")
	default:
		h.log.Error(action+" failed", "user_id", c.GetInt("user_id"), "error", err)
		apiError(c, http.StatusInternalServerError, action+" failed")
	}
}

/* ─── XP and achievement side effects ─────────────────────────────────── */

// award applies event's XP for userID and pushes the change to the user's
// websocket clients. A failure is logged and reported as nil: the write
// that earned the XP has already been committed.
func (h *Handler) award(ctx context.Context, userID int, event xp.Event) *xpAward {
	res, err := h.applier.Award(ctx, userID, event)
	if err != nil {
		h.log.Error("xp award failed", "user_id", userID, "event", event, "error", err)
		return nil
	}
	a := &xpAward{Event: event, Delta: h.applier.Rules().Amount(event), Result: res}
	h.publishXP(userID, a)
	return a
}

func (h *Handler) publishXP(userID int, a *xpAward) {
	h.hub.Publish(userID, realtime.Event{Type: realtime.EventXPChanged, Data: a})
	if a.Result.LevelledUp {
		h.hub.Publish(userID, realtime.Event{Type: realtime.EventLevelUp, Data: gin.H{"level": a.Result.NewLevel}})
	}
}

// unlock unlocks id and announces it. It returns the ids that were newly
// unlocked (zero or one).
func (h *Handler) unlock(ctx context.Context, userID int, id string) []string {
	ok, err := h.achievements.Unlock(ctx, userID, id)
	if err != nil {
		h.log.Error("unlock achievement failed", "user_id", userID, "achievement", id, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	h.announce(userID, id)
	return []string{id}
}

func (h *Handler) announce(userID int, ids ...string) {
	for _, id := range ids {
		h.hub.Publish(userID, realtime.Event{Type: realtime.EventAchievementUnlocked, Data: gin.H{"id": id}})
	}
}

// userLocation returns the user's timezone, UTC if unset or unknown.
func (h *Handler) userLocation(ctx context.Context, userID int) *time.Location {
	p, err := h.core.Progress(ctx, userID)
	if err != nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// requestID tags each request with an id for log correlation, reusing the
// caller's X-Request-ID when present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	router.Use(requestID(), logger.RequestLogger(h.log), h.metrics.Middleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	// Public routes
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)

	api.GET("/meals/daily", h.getDailyMeals)
	api.GET("/meals/week-summary", h.getWeekSummary)
	api.GET("/meals/progress", h.getMealProgress)
	api.GET("/meals/earliest-date", h.getEarliestMealDate)
	api.POST("/meals", h.createMeal)
	api.POST("/meals/log", h.logMeal)
	api.POST("/meals/suggest", h.suggestMeal)
	api.PUT("/meals/:id", h.updateMeal)
	api.DELETE("/meals/:id", h.deleteMeal)

	api.GET("/weight", h.getWeightLog)
	api.POST("/weight", h.upsertWeight)
	api.PUT("/weight/:id", h.updateWeight)
	api.DELETE("/weight/:id", h.deleteWeight)

	api.POST("/daily-check", h.runDailyCheck)
	api.GET("/xp", h.getXPStatus)
	api.GET("/achievements", h.listAchievements)
	api.POST("/projection", h.postProjection)
	api.GET("/daily-tip", h.getDailyTip)
	api.GET("/ws", h.serveRealtime)
}
