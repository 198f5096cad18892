package xp

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrProfileNotFound is returned when the target profile does not exist.
	ErrProfileNotFound = errors.New("user profile not found")
	// ErrTxConflict is returned by a Store when a concurrent write invalidated
	// the transaction. The applier retries on it.
	ErrTxConflict = errors.New("transaction conflict")
	// ErrConflictExhausted is returned once the applier has given up retrying.
	// It is transient: the caller may retry the whole operation later.
	ErrConflictExhausted = errors.New("xp change not applied: too many concurrent updates")
)

// Progress is the part of a user profile the XP engine reads.
type Progress struct {
	XP               int
	Level            int
	DailyCalorieGoal *float64
	LastDailyXPCheck string // YYYY-MM-DD, empty if the daily check never ran
	Timezone         string
}

// Change is one applied XP change, as written to the audit log.
type Change struct {
	Event  Event
	Delta  int
	Result Result
	At     time.Time
}

// Tx is the capability handed to code running inside a profile transaction.
// Writes become visible only if the surrounding RunInTx commits.
type Tx interface {
	Progress(ctx context.Context) (Progress, error)
	SetProgress(ctx context.Context, xp, level int) error
	MarkDailyCheck(ctx context.Context, day string) error
	RecordChange(ctx context.Context, c Change) error
}

// Store runs fn inside a single optimistic transaction on userID's profile.
// It returns ErrProfileNotFound if the profile is missing and ErrTxConflict
// (possibly wrapped) if the commit lost to a concurrent writer. Store
// implementations never retry; Applier does.
type Store interface {
	RunInTx(ctx context.Context, userID int, fn func(tx Tx) error) error
}

// ProgressReader reads a profile's progress outside of any transaction.
type ProgressReader interface {
	Progress(ctx context.Context, userID int) (Progress, error)
}
