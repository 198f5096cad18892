// Package store holds the persistence backends for the XP engine, the daily
// check and achievements: Postgres over a process-wide pgx pool, and an
// in-memory implementation with the same transactional behaviour.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lg/fitquest-api/internal/xp"
)

// DayLayout is the calendar-day format used for markers and day buckets.
const DayLayout = "2006-01-02"

var (
	poolOnce sync.Once
	pool     *pgxpool.Pool
	poolErr  error
)

// Pool returns the process-wide connection pool, creating it on first use.
// Later calls return the same pool (or the same error) regardless of dbURL.
// A pool (not a single conn) because Neon closes idle connections after ~5 minutes.
func Pool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	poolOnce.Do(func() {
		pool, poolErr = newPool(ctx, dbURL)
	})
	return pool, poolErr
}

func newPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if dbURL == "" {
		dbURL = os.Getenv("DB_URL")
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from Neon's server-side prepared statement cache after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return p, nil
}

// Postgres implements the XP, daily-check and achievement stores on the
// user_profiles, meals, xp_events and user_achievements tables.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const progressQuery = `SELECT xp, level, daily_calorie_goal, COALESCE(last_daily_xp_check, ''), timezone
	FROM user_profiles WHERE user_id = @userID`

func scanProgress(row pgx.Row) (xp.Progress, error) {
	var p xp.Progress
	err := row.Scan(&p.XP, &p.Level, &p.DailyCalorieGoal, &p.LastDailyXPCheck, &p.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return xp.Progress{}, xp.ErrProfileNotFound
	}
	if err != nil {
		return xp.Progress{}, fmt.Errorf("read progress: %w", err)
	}
	return p, nil
}

func (s *Postgres) Progress(ctx context.Context, userID int) (xp.Progress, error) {
	return scanProgress(s.db.QueryRow(ctx, progressQuery, pgx.NamedArgs{"userID": userID}))
}

// RunInTx runs fn in a SERIALIZABLE transaction. Serialization failures and
// deadlocks are reported as xp.ErrTxConflict so the applier can retry.
func (s *Postgres) RunInTx(ctx context.Context, userID int, fn func(tx xp.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, userID: userID}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps SQLSTATE 40001 (serialization_failure) and 40P01
// (deadlock_detected) to xp.ErrTxConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", xp.ErrTxConflict, pgErr.Message)
	}
	return err
}

type pgTx struct {
	tx     pgx.Tx
	userID int
}

func (t *pgTx) Progress(ctx context.Context) (xp.Progress, error) {
	return scanProgress(t.tx.QueryRow(ctx, progressQuery, pgx.NamedArgs{"userID": t.userID}))
}

func (t *pgTx) SetProgress(ctx context.Context, xpValue, level int) error {
	return t.exec(ctx,
		`UPDATE user_profiles SET xp = @xp, level = @level, updated_at = now() WHERE user_id = @userID`,
		pgx.NamedArgs{"xp": xpValue, "level": level, "userID": t.userID})
}

func (t *pgTx) MarkDailyCheck(ctx context.Context, day string) error {
	return t.exec(ctx,
		`UPDATE user_profiles SET last_daily_xp_check = @day, updated_at = now() WHERE user_id = @userID`,
		pgx.NamedArgs{"day": day, "userID": t.userID})
}

func (t *pgTx) RecordChange(ctx context.Context, c xp.Change) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO xp_events (user_id, event, delta, new_xp, new_level, levelled_up, created_at)
		 VALUES (@userID, @event, @delta, @newXP, @newLevel, @levelledUp, @at)`,
		pgx.NamedArgs{
			"userID": t.userID, "event": string(c.Event), "delta": c.Delta,
			"newXP": c.Result.NewXP, "newLevel": c.Result.NewLevel,
			"levelledUp": c.Result.LevelledUp, "at": c.At,
		})
	return err
}

func (t *pgTx) exec(ctx context.Context, sql string, args pgx.NamedArgs) error {
	tag, err := t.tx.Exec(ctx, sql, args)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return xp.ErrProfileNotFound
	}
	return nil
}

// CaloriesBetween sums meal calories with eaten_at in [from, to).
func (s *Postgres) CaloriesBetween(ctx context.Context, userID int, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(calories), 0) FROM meals
		 WHERE user_id = @userID AND eaten_at >= @from AND eaten_at < @to`,
		pgx.NamedArgs{"userID": userID, "from": from, "to": to}).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum calories: %w", err)
	}
	return total, nil
}

// MealDays returns the distinct local days (in loc) with at least one meal
// eaten at or after from, ascending.
func (s *Postgres) MealDays(ctx context.Context, userID int, from time.Time, loc *time.Location) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT to_char(eaten_at AT TIME ZONE @tz, 'YYYY-MM-DD') AS day
		 FROM meals WHERE user_id = @userID AND eaten_at >= @from
		 ORDER BY day`,
		pgx.NamedArgs{"userID": userID, "from": from, "tz": loc.String()})
	if err != nil {
		return nil, fmt.Errorf("query meal days: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UnlockAchievement records id for userID; it reports false if it was
// already unlocked.
func (s *Postgres) UnlockAchievement(ctx context.Context, userID int, id string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, unlocked_at)
		 VALUES (@userID, @id, @at)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		pgx.NamedArgs{"userID": userID, "id": id, "at": at})
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) UnlockedAchievements(ctx context.Context, userID int) (map[string]time.Time, error) {
	rows, err := s.db.Query(ctx,
		`SELECT achievement_id, unlocked_at FROM user_achievements WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": userID})
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out[id] = at
	}
	return out, rows.Err()
}

// UserIDs lists every user with a profile, ascending.
func (s *Postgres) UserIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}
