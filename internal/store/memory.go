package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lg/fitquest-api/internal/xp"
)

// Memory is an in-process store with the same transactional contract as
// Postgres: transactions read a versioned snapshot and commit only if no
// other transaction committed against the same profile in between. Used by
// tests in place of the process-wide pool.
type Memory struct {
	mu           sync.Mutex
	profiles     map[int]*memProfile
	meals        map[int][]memMeal
	achievements map[int]map[string]time.Time
	changes      map[int][]xp.Change
	// pending simulated foreign commits per user, consumed at commit time
	interference map[int]int
}

type memProfile struct {
	progress xp.Progress
	version  int
}

type memMeal struct {
	calories float64
	eatenAt  time.Time
}

func NewMemory() *Memory {
	return &Memory{
		profiles:     make(map[int]*memProfile),
		meals:        make(map[int][]memMeal),
		achievements: make(map[int]map[string]time.Time),
		changes:      make(map[int][]xp.Change),
		interference: make(map[int]int),
	}
}

// PutProfile creates or replaces userID's profile.
func (m *Memory) PutProfile(userID int, p xp.Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Level < 1 {
		p.Level = 1
	}
	version := 0
	if existing, ok := m.profiles[userID]; ok {
		version = existing.version + 1
	}
	m.profiles[userID] = &memProfile{progress: p, version: version}
}

// AddMeal records a meal's calories at eatenAt.
func (m *Memory) AddMeal(userID int, calories float64, eatenAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meals[userID] = append(m.meals[userID], memMeal{calories: calories, eatenAt: eatenAt})
}

// SimulateConcurrentWrites makes the next n commits on userID's profile fail
// as if another writer had committed first.
func (m *Memory) SimulateConcurrentWrites(userID, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interference[userID] += n
}

// Changes returns the audit log for userID in commit order.
func (m *Memory) Changes(userID int) []xp.Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]xp.Change, len(m.changes[userID]))
	copy(out, m.changes[userID])
	return out
}

func (m *Memory) Progress(_ context.Context, userID int) (xp.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return xp.Progress{}, xp.ErrProfileNotFound
	}
	return p.progress, nil
}

func (m *Memory) RunInTx(ctx context.Context, userID int, fn func(tx xp.Tx) error) error {
	m.mu.Lock()
	p, ok := m.profiles[userID]
	if !ok {
		m.mu.Unlock()
		return xp.ErrProfileNotFound
	}
	tx := &memTx{snapshot: p.progress, version: p.version}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.profiles[userID]
	if !ok {
		return xp.ErrProfileNotFound
	}
	if m.interference[userID] > 0 {
		m.interference[userID]--
		current.version++
	}
	if current.version != tx.version {
		return fmt.Errorf("%w: profile %d changed during transaction", xp.ErrTxConflict, userID)
	}
	if !tx.dirty {
		return nil
	}
	current.progress = tx.snapshot
	current.version++
	m.changes[userID] = append(m.changes[userID], tx.changes...)
	return nil
}

type memTx struct {
	snapshot xp.Progress
	version  int
	dirty    bool
	changes  []xp.Change
}

func (t *memTx) Progress(context.Context) (xp.Progress, error) { return t.snapshot, nil }

func (t *memTx) SetProgress(_ context.Context, xpValue, level int) error {
	t.snapshot.XP = xpValue
	t.snapshot.Level = level
	t.dirty = true
	return nil
}

func (t *memTx) MarkDailyCheck(_ context.Context, day string) error {
	t.snapshot.LastDailyXPCheck = day
	t.dirty = true
	return nil
}

func (t *memTx) RecordChange(_ context.Context, c xp.Change) error {
	t.changes = append(t.changes, c)
	t.dirty = true
	return nil
}

func (m *Memory) CaloriesBetween(_ context.Context, userID int, from, to time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, meal := range m.meals[userID] {
		if !meal.eatenAt.Before(from) && meal.eatenAt.Before(to) {
			total += meal.calories
		}
	}
	return total, nil
}

func (m *Memory) MealDays(_ context.Context, userID int, from time.Time, loc *time.Location) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for _, meal := range m.meals[userID] {
		if meal.eatenAt.Before(from) {
			continue
		}
		seen[meal.eatenAt.In(loc).Format(DayLayout)] = true
	}
	days := make([]string, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Strings(days)
	return days, nil
}

func (m *Memory) UnlockAchievement(_ context.Context, userID int, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[userID]; !ok {
		return false, xp.ErrProfileNotFound
	}
	if m.achievements[userID] == nil {
		m.achievements[userID] = make(map[string]time.Time)
	}
	if _, ok := m.achievements[userID][id]; ok {
		return false, nil
	}
	m.achievements[userID][id] = at
	return true, nil
}

func (m *Memory) UnlockedAchievements(_ context.Context, userID int) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.achievements[userID]))
	for id, at := range m.achievements[userID] {
		out[id] = at
	}
	return out, nil
}

func (m *Memory) UserIDs(context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.profiles))
	for id := range m.profiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
