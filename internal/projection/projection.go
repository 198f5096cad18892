// Package projection computes calorie targets for a weight-loss goal:
// Mifflin-St Jeor BMR, TDEE from an activity multiplier, and a linear
// 7700 kcal/kg deficit model spread over the goal timeline.
package projection

import (
	"fmt"
	"sort"
	"strings"
)

// KcalPerKgFat approximates the energy content of one kilogram of body fat.
const KcalPerKgFat = 7700.0

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
	Other  Gender = "other"
)

// ActivityMultipliers maps activity levels to their TDEE multiplier. This is
// the single source of truth for valid activity levels, also used for input
// validation on profile updates.
var ActivityMultipliers = map[string]float64{
	"sedentary":         1.2,
	"lightly active":    1.375,
	"moderately active": 1.55,
	"very active":       1.725,
	"extra active":      1.9,
}

// ActivityLevels returns the valid activity levels ordered by multiplier.
func ActivityLevels() []string {
	levels := make([]string, 0, len(ActivityMultipliers))
	for l := range ActivityMultipliers {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool {
		return ActivityMultipliers[levels[i]] < ActivityMultipliers[levels[j]]
	})
	return levels
}

// OtherConvention selects the BMR constant used for Gender "other". Mifflin-St
// Jeor only defines male (+5) and female (-161) constants.
type OtherConvention string

const (
	// OtherAverage uses the mean of the two constants, -78.
	OtherAverage OtherConvention = "average"
	OtherMale    OtherConvention = "male"
	OtherFemale  OtherConvention = "female"
)

const (
	maleConstant   = 5.0
	femaleConstant = -161.0
)

// Input is a validated set of biometrics plus a goal.
type Input struct {
	CurrentWeightKg   float64 `json:"current_weight_kg"`
	GoalWeightKg      float64 `json:"goal_weight_kg"`
	HeightCm          float64 `json:"height_cm"`
	Age               float64 `json:"age"`
	Gender            Gender  `json:"gender"`
	ActivityLevel     string  `json:"activity_level"`
	GoalTimelineWeeks int     `json:"goal_timeline_weeks"`
}

// Result holds the projection. Values are unrounded; round at presentation.
type Result struct {
	BMR                      float64 `json:"bmr"`
	TDEE                     float64 `json:"tdee"`
	TotalDeficit             float64 `json:"total_deficit"`
	RequiredWeeklyDeficit    float64 `json:"required_weekly_deficit"`
	DailyDeficit             float64 `json:"daily_deficit"`
	RecommendedDailyCalories float64 `json:"recommended_daily_calories"`
}

// InvalidGoalError reports every input field that failed validation.
type InvalidGoalError struct {
	Fields map[string]string
}

func (e *InvalidGoalError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = f + ": " + e.Fields[f]
	}
	return "invalid goal: " + strings.Join(parts, "; ")
}

// Calculator computes projections with a fixed convention for Gender other.
type Calculator struct {
	Other OtherConvention
}

// Calculate uses the average convention for Gender other.
func Calculate(in Input) (Result, error) {
	return Calculator{Other: OtherAverage}.Calculate(in)
}

func (c Calculator) Calculate(in Input) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}

	bmr := c.BMR(in.CurrentWeightKg, in.HeightCm, in.Age, in.Gender)
	tdee := bmr * ActivityMultipliers[in.ActivityLevel]

	total := (in.CurrentWeightKg - in.GoalWeightKg) * KcalPerKgFat
	weekly := total / float64(in.GoalTimelineWeeks)
	daily := weekly / 7

	return Result{
		BMR:                      bmr,
		TDEE:                     tdee,
		TotalDeficit:             total,
		RequiredWeeklyDeficit:    weekly,
		DailyDeficit:             daily,
		RecommendedDailyCalories: tdee - daily,
	}, nil
}

// BMR is the Mifflin-St Jeor basal metabolic rate.
func (c Calculator) BMR(weightKg, heightCm, age float64, g Gender) float64 {
	return 10*weightKg + 6.25*heightCm - 5*age + c.genderConstant(g)
}

func (c Calculator) genderConstant(g Gender) float64 {
	switch g {
	case Male:
		return maleConstant
	case Female:
		return femaleConstant
	}
	switch c.Other {
	case OtherMale:
		return maleConstant
	case OtherFemale:
		return femaleConstant
	default:
		return (maleConstant + femaleConstant) / 2
	}
}

// Validate checks every field and collects all failures.
func Validate(in Input) error {
	fields := map[string]string{}
	if in.CurrentWeightKg <= 0 {
		fields["current_weight_kg"] = "must be positive"
	}
	if in.GoalWeightKg <= 0 {
		fields["goal_weight_kg"] = "must be positive"
	}
	if in.HeightCm <= 0 {
		fields["height_cm"] = "must be positive"
	}
	if in.Age <= 0 {
		fields["age"] = "must be positive"
	}
	if in.GoalTimelineWeeks < 1 {
		fields["goal_timeline_weeks"] = "must be at least 1"
	}
	switch in.Gender {
	case Male, Female, Other:
	default:
		fields["gender"] = "must be one of: male, female, other"
	}
	if _, ok := ActivityMultipliers[in.ActivityLevel]; !ok {
		fields["activity_level"] = "must be one of: " + strings.Join(ActivityLevels(), ", ")
	}
	if in.CurrentWeightKg > 0 && in.GoalWeightKg > 0 && in.GoalWeightKg >= in.CurrentWeightKg {
		fields["goal_weight_kg"] = "must be less than current weight"
	}
	if len(fields) > 0 {
		return &InvalidGoalError{Fields: fields}
	}
	return nil
}

// ProjectTimeline returns the number of weeks needed to go from current to
// goal weight at the given weekly calorie deficit.
func ProjectTimeline(currentWeightKg, goalWeightKg, weeklyDeficit float64) (float64, error) {
	fields := map[string]string{}
	if currentWeightKg <= 0 {
		fields["current_weight_kg"] = "must be positive"
	}
	if goalWeightKg <= 0 {
		fields["goal_weight_kg"] = "must be positive"
	} else if goalWeightKg >= currentWeightKg {
		fields["goal_weight_kg"] = "must be less than current weight"
	}
	if weeklyDeficit <= 0 {
		fields["weekly_calorie_deficit"] = "must be positive"
	}
	if len(fields) > 0 {
		return 0, &InvalidGoalError{Fields: fields}
	}
	return (currentWeightKg - goalWeightKg) * KcalPerKgFat / weeklyDeficit, nil
}

// BMI expects height in centimeters and weight in kilograms.
func BMI(weightKg, heightCm float64) (float64, error) {
	if weightKg <= 0 || heightCm <= 0 {
		return 0, fmt.Errorf("height and weight must be positive")
	}
	h := heightCm / 100
	return weightKg / (h * h), nil
}

func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "underweight"
	case bmi < 25:
		return "normal weight"
	case bmi < 30:
		return "overweight"
	case bmi < 35:
		return "obesity class I"
	case bmi < 40:
		return "obesity class II"
	default:
		return "obesity class III"
	}
}
