package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"lg/fitquest-api/internal/projection"
	"lg/fitquest-api/internal/xp"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format("2006-01-02") + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns into DateOnly. NULL zeroes the time so *DateOnly fields can be nil.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        int        `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// userProfile maps to user_profiles, one row per user. xp, level and
// last_daily_xp_check are only written by the XP applier and daily check.
type userProfile struct {
	UserID             int        `json:"user_id"             db:"user_id"`
	Name               *string    `json:"name"                db:"name"`
	CurrentWeightKg    *float64   `json:"current_weight_kg"   db:"current_weight_kg"`
	WeightGoalKg       *float64   `json:"weight_goal_kg"      db:"weight_goal_kg"`
	HeightCm           *float64   `json:"height_cm"           db:"height_cm"`
	Age                *int       `json:"age"                 db:"age"`
	Gender             *string    `json:"gender"              db:"gender"`
	ActivityLevel      *string    `json:"activity_level"      db:"activity_level"`
	DietaryPreferences *string    `json:"dietary_preferences" db:"dietary_preferences"`
	DailyCalorieGoal   *float64   `json:"daily_calorie_goal"  db:"daily_calorie_goal"`
	CalorieGoalAuto    bool       `json:"calorie_goal_auto"   db:"calorie_goal_auto"`
	GoalTimelineWeeks  *int       `json:"goal_timeline_weeks" db:"goal_timeline_weeks"`
	Timezone           string     `json:"timezone"            db:"timezone"`
	XP                 int        `json:"xp"                  db:"xp"`
	Level              int        `json:"level"               db:"level"`
	LastDailyXPCheck   *string    `json:"last_daily_xp_check" db:"last_daily_xp_check"`
	CreatedAt          *time.Time `json:"created_at"          db:"created_at"`
	UpdatedAt          *time.Time `json:"updated_at"          db:"updated_at"`

	// Computed server-side; db:"-" tells RowToStructByName to skip them.
	BMI           *float64           `json:"bmi,omitempty"            db:"-"`
	BMICategory   *string            `json:"bmi_category,omitempty"   db:"-"`
	Projection    *projection.Result `json:"projection,omitempty"     db:"-"`
	XPToNextLevel int                `json:"xp_to_next_level"         db:"-"`
	Achievements  []string           `json:"unlocked_achievements,omitempty" db:"-"`
	Warning       string             `json:"warning,omitempty"        db:"-"`
}

// meal maps to meals. eaten_at places the meal in a day of the user's timezone.
type meal struct {
	ID             int        `json:"id"              db:"id"`
	UserID         int        `json:"user_id"         db:"user_id"`
	Name           string     `json:"name"            db:"name"`
	Description    *string    `json:"description"     db:"description"`
	Calories       float64    `json:"calories"        db:"calories"`
	ProteinG       float64    `json:"protein_g"       db:"protein_g"`
	CarbohydratesG float64    `json:"carbohydrates_g" db:"carbohydrates_g"`
	FatG           float64    `json:"fat_g"           db:"fat_g"`
	FiberG         float64    `json:"fiber_g"         db:"fiber_g"`
	EatenAt        time.Time  `json:"eaten_at"        db:"eaten_at"`
	CreatedAt      *time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"      db:"updated_at"`
}

// weightMeasurement maps to weight_measurements; one row per user per date.
type weightMeasurement struct {
	ID        int        `json:"id"         db:"id"`
	UserID    int        `json:"user_id"    db:"user_id"`
	Date      DateOnly   `json:"date"       db:"date"`
	WeightKg  float64    `json:"weight_kg"  db:"weight_kg"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// dayDBRow is the shape of each row returned by the per-day GROUP BY query.
type dayDBRow struct {
	Date           DateOnly `db:"day"`
	Calories       float64  `db:"calories"`
	ProteinG       float64  `db:"protein_g"`
	CarbohydratesG float64  `db:"carbohydrates_g"`
	FatG           float64  `db:"fat_g"`
	FiberG         float64  `db:"fiber_g"`
	Meals          int      `db:"meals"`
}

// daySummary is one day's totals. Days with no meals have HasData=false.
// CaloriesLeft is nil when the user has no calorie goal.
type daySummary struct {
	Date             DateOnly `json:"date"`
	DailyCalorieGoal *float64 `json:"daily_calorie_goal"`
	Calories         float64  `json:"calories"`
	CaloriesLeft     *float64 `json:"calories_left"`
	ProteinG         float64  `json:"protein_g"`
	CarbohydratesG   float64  `json:"carbohydrates_g"`
	FatG             float64  `json:"fat_g"`
	FiberG           float64  `json:"fiber_g"`
	Meals            int      `json:"meals"`
	HasData          bool     `json:"has_data"`
}

// dailyMeals is the response shape for GET /api/meals/daily.
type dailyMeals struct {
	daySummary
	Items []meal `json:"items"`
}

type progressStats struct {
	DaysTracked     int     `json:"days_tracked"`
	DaysOnGoal      int     `json:"days_on_goal"`
	AvgCalories     float64 `json:"avg_calories"`
	AvgProteinG     float64 `json:"avg_protein_g"`
	TotalCaloriesIn float64 `json:"total_calories"`
}

type progressResponse struct {
	Days  []daySummary  `json:"days"`
	Stats progressStats `json:"stats"`
}

// xpStatus is the response for GET /api/xp.
type xpStatus struct {
	XP               int     `json:"xp"`
	Level            int     `json:"level"`
	XPPerLevel       int     `json:"xp_per_level"`
	XPToNextLevel    int     `json:"xp_to_next_level"`
	ProgressPercent  float64 `json:"progress_percent"`
	LastDailyXPCheck string  `json:"last_daily_xp_check,omitempty"`
}

// xpAward is attached to responses of writes that granted XP. Nil when the
// award failed; the write itself still succeeded.
type xpAward struct {
	Event  xp.Event  `json:"event"`
	Delta  int       `json:"delta"`
	Result xp.Result `json:"result"`
}

type mealResponse struct {
	Meal         meal     `json:"meal"`
	XP           *xpAward `json:"xp"`
	Achievements []string `json:"unlocked_achievements,omitempty"`
}

type weightResponse struct {
	Measurement  weightMeasurement `json:"measurement"`
	XP           *xpAward          `json:"xp"`
	Achievements []string          `json:"unlocked_achievements,omitempty"`
}

/* ─── Requests ───────────────────────────────────────────────────────── */

// createMealRequest is the body for POST /api/meals. eaten_at defaults to now.
type createMealRequest struct {
	Name           string     `json:"name"            binding:"required,max=200"`
	Description    *string    `json:"description"`
	Calories       float64    `json:"calories"        binding:"gte=0"`
	ProteinG       float64    `json:"protein_g"       binding:"gte=0"`
	CarbohydratesG float64    `json:"carbohydrates_g" binding:"gte=0"`
	FatG           float64    `json:"fat_g"           binding:"gte=0"`
	FiberG         float64    `json:"fiber_g"         binding:"gte=0"`
	EatenAt        *time.Time `json:"eaten_at"`
}

// updateMealRequest is the body for PUT /api/meals/:id.
type updateMealRequest struct {
	Name           *string    `json:"name"            binding:"omitempty,max=200"`
	Calories       *float64   `json:"calories"        binding:"omitempty,gte=0"`
	ProteinG       *float64   `json:"protein_g"       binding:"omitempty,gte=0"`
	CarbohydratesG *float64   `json:"carbohydrates_g" binding:"omitempty,gte=0"`
	FatG           *float64   `json:"fat_g"           binding:"omitempty,gte=0"`
	FiberG         *float64   `json:"fiber_g"         binding:"omitempty,gte=0"`
	EatenAt        *time.Time `json:"eaten_at"`
}

// logMealRequest is the body for POST /api/meals/log and /api/meals/suggest.
type logMealRequest struct {
	Description string     `json:"description" binding:"required"`
	EatenAt     *time.Time `json:"eaten_at"`
}

// weightRequest is the body for POST /api/weight. date defaults to the
// user's local today.
type weightRequest struct {
	Date     string  `json:"date"`
	WeightKg float64 `json:"weight_kg" binding:"gt=0,lte=700"`
}

// updateWeightRequest is the body for PUT /api/weight/:id.
type updateWeightRequest struct {
	Date     *string  `json:"date"`
	WeightKg *float64 `json:"weight_kg" binding:"omitempty,gt=0,lte=700"`
}

// patchProfileRequest is the body for PATCH /api/profile. Only non-nil
// fields are written.
type patchProfileRequest struct {
	Name               *string  `json:"name"                binding:"omitempty,max=100"`
	CurrentWeightKg    *float64 `json:"current_weight_kg"   binding:"omitempty,gt=0"`
	WeightGoalKg       *float64 `json:"weight_goal_kg"      binding:"omitempty,gt=0"`
	HeightCm           *float64 `json:"height_cm"           binding:"omitempty,gt=0"`
	Age                *int     `json:"age"                 binding:"omitempty,gte=1,lte=130"`
	Gender             *string  `json:"gender"              binding:"omitempty,oneof=male female other"`
	ActivityLevel      *string  `json:"activity_level"`
	DietaryPreferences *string  `json:"dietary_preferences"`
	DailyCalorieGoal   *float64 `json:"daily_calorie_goal"  binding:"omitempty,gt=0"`
	CalorieGoalAuto    *bool    `json:"calorie_goal_auto"`
	GoalTimelineWeeks  *int     `json:"goal_timeline_weeks" binding:"omitempty,gte=1"`
	Timezone           *string  `json:"timezone"`
}

// projectionRequest is the body for POST /api/projection.
// weekly_calorie_deficit, when set, projects the timeline at that deficit
// instead of the one the goal requires.
type projectionRequest struct {
	projection.Input
	WeeklyCalorieDeficit *float64 `json:"weekly_calorie_deficit"`
	WithTips             bool     `json:"with_tips"`
}

type projectionResponse struct {
	projection.Result
	TimelineWeeks float64  `json:"timeline_weeks"`
	Tips          *string  `json:"tips,omitempty"`
	Achievements  []string `json:"unlocked_achievements,omitempty"`
}
