package llm

import (
	"context"
	"fmt"
	"strings"
)

/* ─── Meal parsing ───────────────────────────────────────────────────── */

// Meal is the nutrition estimate for a free-text meal description.
type Meal struct {
	Name           string  `json:"name"`
	Calories       float64 `json:"calories"`
	ProteinG       float64 `json:"protein_g"`
	CarbohydratesG float64 `json:"carbohydrates_g"`
	FatG           float64 `json:"fat_g"`
	FiberG         float64 `json:"fiber_g"`
	Confidence     int     `json:"confidence"`
}

const mealSystemPrompt = `You are an expert nutritionist. Analyze the food description and estimate its nutritional information. Return a JSON object with:
- "name" (string, short title case name of the meal)
- "calories" (number, total for the full quantity)
- "protein_g" (number, grams)
- "carbohydrates_g" (number, grams)
- "fat_g" (number, grams)
- "fiber_g" (number, grams)
- "confidence" (integer 1-5: 5=exact known nutritional data, 1=very uncertain)

Always provide your best estimate, even for vague items. Only return {"error": "unrecognized"} if the input is not food at all.
Return only valid JSON, no explanation.`

// ParseMeal estimates nutrition facts for description. It returns
// ErrUnrecognized when the model could not identify any food, or produced
// an estimate without a name or calories.
func (c *Client) ParseMeal(ctx context.Context, description string) (Meal, error) {
	var m Meal
	err := c.completeJSON(ctx, 0, &m,
		message{Role: "system", Content: mealSystemPrompt},
		message{Role: "user", Content: description},
	)
	if err != nil {
		return Meal{}, err
	}
	if m.Name == "" || m.Calories <= 0 {
		return Meal{}, ErrUnrecognized
	}
	if m.ProteinG < 0 || m.CarbohydratesG < 0 || m.FatG < 0 || m.FiberG < 0 {
		return Meal{}, fmt.Errorf("model returned negative macros for %q", m.Name)
	}
	return m, nil
}

/* ─── Coaching ───────────────────────────────────────────────────────── */

// Profile is the subset of the user's profile used to personalise tips.
// Zero values are left out of the prompt.
type Profile struct {
	Name               string
	CurrentWeightKg    float64
	GoalWeightKg       float64
	HeightCm           float64
	Age                float64
	Gender             string
	ActivityLevel      string
	DietaryPreferences string
}

func (p Profile) describe() string {
	var b strings.Builder
	line := func(format string, args ...any) {
		b.WriteString("- ")
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\n")
	}
	if p.Name != "" {
		line("Name: %s", p.Name)
	}
	if p.CurrentWeightKg > 0 {
		line("Current weight: %.1f kg", p.CurrentWeightKg)
	}
	if p.GoalWeightKg > 0 {
		line("Goal weight: %.1f kg", p.GoalWeightKg)
	}
	if p.HeightCm > 0 {
		line("Height: %.0f cm", p.HeightCm)
	}
	if p.Age > 0 {
		line("Age: %.0f", p.Age)
	}
	if p.Gender != "" {
		line("Gender: %s", p.Gender)
	}
	if p.ActivityLevel != "" {
		line("Activity level: %s", p.ActivityLevel)
	}
	if p.DietaryPreferences != "" {
		line("Dietary preferences: %s", p.DietaryPreferences)
	}
	if b.Len() == 0 {
		return "- No profile data available.\n"
	}
	return b.String()
}

const tipSystemPrompt = `You are a health and wellness coach. Write one short, motivational, personalised daily tip for the user based on their data. Be creative and avoid generic advice.
Return a JSON object with a single field "tip" (string).`

// DailyTip writes a short motivational tip for the user.
func (c *Client) DailyTip(ctx context.Context, p Profile) (string, error) {
	var out struct {
		Tip string `json:"tip"`
	}
	err := c.completeJSON(ctx, 0.9, &out,
		message{Role: "system", Content: tipSystemPrompt},
		message{Role: "user", Content: "User data:\n" + p.describe()},
	)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Tip) == "" {
		return "", ErrUnrecognized
	}
	return strings.TrimSpace(out.Tip), nil
}

const projectionSystemPrompt = `You are an expert weight loss coach. Given the user's data and their computed calorie plan, write personalised tips to help them reach their goal. Consider their dietary preferences and activity level.
Return a JSON object with a single field "tips" (string).`

// Plan is the locally computed projection the tips should build on.
type Plan struct {
	TimelineWeeks            float64
	RequiredWeeklyDeficit    float64
	RecommendedDailyCalories float64
}

// ProjectionTips writes tips for reaching the goal described by plan.
func (c *Client) ProjectionTips(ctx context.Context, p Profile, plan Plan) (string, error) {
	user := fmt.Sprintf("User data:\n%sPlan:\n- Timeline: %.1f weeks\n- Weekly calorie deficit: %.0f kcal\n- Recommended daily calories: %.0f kcal\n",
		p.describe(), plan.TimelineWeeks, plan.RequiredWeeklyDeficit, plan.RecommendedDailyCalories)

	var out struct {
		Tips string `json:"tips"`
	}
	err := c.completeJSON(ctx, 0.7, &out,
		message{Role: "system", Content: projectionSystemPrompt},
		message{Role: "user", Content: user},
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Tips), nil
}
