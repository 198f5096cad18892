// CLI tool to run the daily goal check outside the app, e.g. from cron just
// after midnight. Each user is checked at most once per local day, so
// overlapping runs with the API are safe.
// Usage: go run ./cmd/daily-check --all
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lg/fitquest-api/internal/achievements"
	"lg/fitquest-api/internal/config"
	"lg/fitquest-api/internal/dailycheck"
	"lg/fitquest-api/internal/logger"
	"lg/fitquest-api/internal/store"
	"lg/fitquest-api/internal/xp"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		userIDs     []int
		all         bool
		concurrency int
		outputJSON  bool
	)
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:   "daily-check",
		Short: "Apply yesterday's calorie goal reward or penalty",
		Long: `Evaluate each user's previous local day against their calorie goal and
apply the XP reward or penalty once.

Examples:
  daily-check --user 7              # One user
  daily-check --user 7 --user 9     # Several users
  daily-check --all --concurrency 8 # Every user with a profile
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(userIDs) > 0) {
				return errors.New("pass either --all or at least one --user")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := store.Pool(ctx, cfg.DBURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			pg := store.NewPostgres(pool)

			if all {
				if userIDs, err = pg.UserIDs(ctx); err != nil {
					return err
				}
			}

			applier := xp.NewApplier(pg, xp.WithRules(cfg.XPRules), xp.WithMaxAttempts(cfg.XPTxMaxAttempts))
			sched := dailycheck.New(applier, pg, log,
				dailycheck.WithUnlocker(achievements.NewService(pg, log)))

			sum := runAll(ctx, sched, userIDs, concurrency)
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(sum); err != nil {
					return err
				}
			} else {
				printSummary(cmd, sum)
			}
			if len(sum.Failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(sum.Failed), len(userIDs))
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&userIDs, "user", nil, "User id to check (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Check every user with a profile")
	cmd.Flags().IntVar(&concurrency, "concurrency", cfg.DailyCheckWorker, "Users checked in parallel")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the summary as JSON")

	return cmd
}

// runner is satisfied by *dailycheck.Scheduler.
type runner interface {
	Run(ctx context.Context, userID int) (dailycheck.Outcome, error)
}

type summary struct {
	Outcomes map[dailycheck.Kind]int `json:"outcomes"`
	Failed   map[int]string          `json:"failed,omitempty"`
}

// runAll checks every user with at most concurrency checks in flight. One
// user's failure does not stop the others.
func runAll(ctx context.Context, r runner, userIDs []int, concurrency int) summary {
	sum := summary{Outcomes: map[dailycheck.Kind]int{}, Failed: map[int]string{}}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if concurrency < 1 {
		concurrency = 1
	}
	g.SetLimit(concurrency)

	for _, id := range userIDs {
		g.Go(func() error {
			out, err := r.Run(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed[id] = err.Error()
				return nil
			}
			sum.Outcomes[out.Kind]++
			return nil
		})
	}
	_ = g.Wait()
	return sum
}

func printSummary(cmd *cobra.Command, sum summary) {
	w := cmd.OutOrStdout()
	for _, k := range []dailycheck.Kind{
		dailycheck.GoalMet, dailycheck.GoalExceeded, dailycheck.NoMeals,
		dailycheck.NoGoal, dailycheck.AlreadyChecked,
	} {
		fmt.Fprintf(w, "  %-16s %d\n", k, sum.Outcomes[k])
	}
	for id, msg := range sum.Failed {
		fmt.Fprintf(w, "  failed user %d: %s\n", id, msg)
	}
}
