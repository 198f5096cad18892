// Package xp implements experience points and levelling: the pure level
// calculator, the configurable event amounts, and the transactional applier
// that persists changes to a user's profile.
package xp

// DefaultXPPerLevel is the number of points needed to advance one level.
const DefaultXPPerLevel = 100

// Event names an XP-granting (or XP-removing) action. Stored in the audit
// log and used as the metrics label.
type Event string

const (
	EventLogMeal                  Event = "log_meal"
	EventLogWeight                Event = "log_weight"
	EventMetDailyCalorieGoal      Event = "met_daily_calorie_goal"
	EventExceededDailyCalorieGoal Event = "exceeded_daily_calorie_goal"
	EventAdjustment               Event = "adjustment"
)

// Rules holds the level threshold and the XP amount for each event.
type Rules struct {
	XPPerLevel               int `json:"xp_per_level"`
	LogMeal                  int `json:"log_meal"`
	LogWeight                int `json:"log_weight"`
	MetDailyCalorieGoal      int `json:"met_daily_calorie_goal"`
	ExceededDailyCalorieGoal int `json:"exceeded_daily_calorie_goal"`
}

// DefaultRules are the stock amounts: 100 XP per level, +10 per meal, +15 per
// weight entry, +25 for a day within the calorie goal, -10 for a day over it.
var DefaultRules = Rules{
	XPPerLevel:               DefaultXPPerLevel,
	LogMeal:                  10,
	LogWeight:                15,
	MetDailyCalorieGoal:      25,
	ExceededDailyCalorieGoal: -10,
}

// Amount returns the XP delta for e. Adjustments carry their own delta and
// return 0 here.
func (r Rules) Amount(e Event) int {
	switch e {
	case EventLogMeal:
		return r.LogMeal
	case EventLogWeight:
		return r.LogWeight
	case EventMetDailyCalorieGoal:
		return r.MetDailyCalorieGoal
	case EventExceededDailyCalorieGoal:
		return r.ExceededDailyCalorieGoal
	default:
		return 0
	}
}

// Result is the outcome of applying an XP change.
type Result struct {
	NewXP      int  `json:"new_xp"`
	NewLevel   int  `json:"new_level"`
	LevelledUp bool `json:"levelled_up"`
}

// Calculate applies xpChange to (currentXP, currentLevel).
//
// XP never goes below zero and a negative change never costs a level: the
// within-level XP is clamped to 0 instead. A large gain can cross several
// level thresholds at once. Because of the clamp the operation is not
// invertible: Calculate(x, L, d) followed by Calculate(.., .., -d) only
// returns to (x, L) when x+d stayed inside [0, XPPerLevel).
func (r Rules) Calculate(currentXP, currentLevel, xpChange int) Result {
	perLevel := r.XPPerLevel
	if perLevel <= 0 {
		perLevel = DefaultXPPerLevel
	}

	newXP := currentXP + xpChange
	newLevel := currentLevel
	levelledUp := false

	if newXP < 0 {
		newXP = 0
	}
	for newXP >= perLevel {
		newLevel++
		newXP -= perLevel
		levelledUp = true
	}

	return Result{NewXP: newXP, NewLevel: newLevel, LevelledUp: levelledUp}
}

// Calculate is DefaultRules.Calculate.
func Calculate(currentXP, currentLevel, xpChange int) Result {
	return DefaultRules.Calculate(currentXP, currentLevel, xpChange)
}

// ToNextLevel returns how many points remain before the next level.
func (r Rules) ToNextLevel(currentXP int) int {
	perLevel := r.XPPerLevel
	if perLevel <= 0 {
		perLevel = DefaultXPPerLevel
	}
	return perLevel - currentXP
}
