package xp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Observer is notified about committed XP changes and retry behaviour.
// metrics.Collectors implements it.
type Observer interface {
	XPApplied(event Event, delta int, levelledUp bool)
	TxRetried()
	TxExhausted()
}

type noopObserver struct{}

func (noopObserver) XPApplied(Event, int, bool) {}
func (noopObserver) TxRetried()                 {}
func (noopObserver) TxExhausted()               {}

// Applier applies XP changes to stored profiles. The read-modify-write of
// xp and level runs in one store transaction, retried a bounded number of
// times on conflict, so concurrent changes against the same profile are
// serialised and none is lost.
type Applier struct {
	store       Store
	rules       Rules
	maxAttempts int
	backoff     time.Duration
	observer    Observer
	now         func() time.Time
}

// Option configures an Applier.
type Option func(*Applier)

func WithRules(r Rules) Option { return func(a *Applier) { a.rules = r } }

// WithMaxAttempts bounds the number of transaction attempts per change.
func WithMaxAttempts(n int) Option {
	return func(a *Applier) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d.
func WithBackoff(d time.Duration) Option { return func(a *Applier) { a.backoff = d } }

func WithObserver(o Observer) Option {
	return func(a *Applier) {
		if o != nil {
			a.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option { return func(a *Applier) { a.now = now } }

// NewApplier returns an Applier over store with DefaultRules, 5 attempts and
// a 20ms backoff unless overridden.
func NewApplier(store Store, opts ...Option) *Applier {
	a := &Applier{
		store:       store,
		rules:       DefaultRules,
		maxAttempts: 5,
		backoff:     20 * time.Millisecond,
		observer:    noopObserver{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Applier) Rules() Rules { return a.rules }

// Award applies the configured amount for event.
func (a *Applier) Award(ctx context.Context, userID int, event Event) (Result, error) {
	return a.apply(ctx, userID, event, a.rules.Amount(event))
}

// Apply applies an arbitrary signed change.
func (a *Applier) Apply(ctx context.Context, userID int, xpChange int) (Result, error) {
	return a.apply(ctx, userID, EventAdjustment, xpChange)
}

func (a *Applier) apply(ctx context.Context, userID int, event Event, delta int) (Result, error) {
	var res Result
	err := a.RunInTx(ctx, userID, func(tx Tx) error {
		var err error
		res, err = a.ApplyInTx(ctx, tx, event, delta)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// ApplyInTx reads the current progress through tx, computes the new values
// and writes xp and level together. It must be called from inside RunInTx so
// the change is reported once the transaction commits.
func (a *Applier) ApplyInTx(ctx context.Context, tx Tx, event Event, delta int) (Result, error) {
	p, err := tx.Progress(ctx)
	if err != nil {
		return Result{}, err
	}
	level := p.Level
	if level < 1 {
		level = 1
	}
	res := a.rules.Calculate(p.XP, level, delta)
	if err := tx.SetProgress(ctx, res.NewXP, res.NewLevel); err != nil {
		return Result{}, fmt.Errorf("write progress: %w", err)
	}
	change := Change{Event: event, Delta: delta, Result: res, At: a.now()}
	if err := tx.RecordChange(ctx, change); err != nil {
		return Result{}, fmt.Errorf("record xp change: %w", err)
	}
	if s, ok := tx.(*scopedTx); ok {
		s.applied = append(s.applied, change)
	}
	return res, nil
}

// scopedTx collects the changes applied during one attempt so they can be
// reported only after a successful commit.
type scopedTx struct {
	Tx
	applied []Change
}

// RunInTx runs fn in a store transaction on userID's profile, retrying on
// ErrTxConflict up to the configured attempt limit. fn may run more than
// once and must not have side effects outside tx.
func (a *Applier) RunInTx(ctx context.Context, userID int, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		scope := &scopedTx{}
		err := a.store.RunInTx(ctx, userID, func(tx Tx) error {
			scope.Tx = tx
			scope.applied = scope.applied[:0]
			return fn(scope)
		})
		if err == nil {
			for _, c := range scope.applied {
				a.observer.XPApplied(c.Event, c.Delta, c.Result.LevelledUp)
			}
			return nil
		}
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		lastErr = err
		if attempt == a.maxAttempts {
			break
		}
		a.observer.TxRetried()
		if err := sleep(ctx, a.backoff*time.Duration(attempt)); err != nil {
			return err
		}
	}
	a.observer.TxExhausted()
	return fmt.Errorf("%w (after %d attempts): %w", ErrConflictExhausted, a.maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
