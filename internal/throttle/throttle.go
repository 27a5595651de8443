package throttle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrThrottleRejected marks a publish attempt deferred by the throttle. It is
// a steady-state condition, not a failure: the job stays APPROVED.
var ErrThrottleRejected = errors.New("publish throttled")

// Reason names the limit that rejected a publish attempt.
type Reason string

const (
	ReasonDisabled   Reason = "disabled"
	ReasonDailyLimit Reason = "daily_limit"
	ReasonMinDelay   Reason = "min_delay"
	ReasonSpacing    Reason = "spacing"
)

// Rejection explains why Allow refused and when to try again.
type Rejection struct {
	Reason  Reason
	RetryAt time.Time
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s until %s", ErrThrottleRejected, r.Reason, r.RetryAt.UTC().Format(time.RFC3339))
}

func (r *Rejection) Unwrap() error { return ErrThrottleRejected }

// ReasonOf extracts the rejection reason from err, or "" when err is not a rejection.
func ReasonOf(err error) Reason {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// Options configures a Throttle.
type Options struct {
	MaxPerDay int
	MinDelay  time.Duration
	// MaxDelay bounds the randomized spacing. Values below MinDelay collapse to MinDelay.
	MaxDelay time.Duration
	Clock    func() time.Time
	Rand     *rand.Rand
}

// Snapshot is a point-in-time view of throttle state for status output.
type Snapshot struct {
	Day          string        `json:"day"`
	Count        int           `json:"count"`
	MaxPerDay    int           `json:"max_per_day"`
	LastPublish  time.Time     `json:"last_publish,omitzero"`
	Spacing      time.Duration `json:"spacing"`
	NextEarliest time.Time     `json:"next_earliest,omitzero"`
}

// Throttle is safe for concurrent use.
type Throttle struct {
	mu      sync.Mutex
	opts    Options
	rng     *rand.Rand
	day     time.Time
	count   int
	last    time.Time
	spacing time.Duration
}

// New constructs a throttle with an empty day.
func New(opts Options) *Throttle {
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Throttle{opts: opts, rng: rng, day: StartOfDay(opts.Clock())}
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Seed restores counters after a restart. count is the number of publishes
// since the start of the current UTC day and last the most recent publish,
// which may fall on an earlier day.
func (t *Throttle) Seed(count int, last time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.day = StartOfDay(t.opts.Clock())
	t.count = max(count, 0)
	t.last = last
	t.spacing = 0
	if !last.IsZero() {
		t.spacing = t.pickSpacing()
	}
}

// Allow reports whether a publish may start at now. It returns a *Rejection
// wrapping ErrThrottleRejected otherwise. Allow does not reserve a slot; the
// caller records success with Record.
func (t *Throttle) Allow(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(now)

	tomorrow := t.day.AddDate(0, 0, 1)
	if t.opts.MaxPerDay <= 0 {
		return &Rejection{Reason: ReasonDisabled, RetryAt: tomorrow}
	}
	if t.count >= t.opts.MaxPerDay {
		return &Rejection{Reason: ReasonDailyLimit, RetryAt: tomorrow}
	}
	if t.last.IsZero() {
		return nil
	}
	elapsed := now.Sub(t.last)
	if elapsed < t.opts.MinDelay {
		return &Rejection{Reason: ReasonMinDelay, RetryAt: t.last.Add(t.opts.MinDelay)}
	}
	if elapsed < t.spacing {
		return &Rejection{Reason: ReasonSpacing, RetryAt: t.last.Add(t.spacing)}
	}
	return nil
}

// Record notes a successful publish at now and draws the spacing the next
// publish must respect.
func (t *Throttle) Record(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(now)
	t.count++
	t.last = now
	t.spacing = t.pickSpacing()
}

// Snapshot returns the current counters.
func (t *Throttle) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(t.opts.Clock())
	snap := Snapshot{
		Day:         t.day.Format(time.DateOnly),
		Count:       t.count,
		MaxPerDay:   t.opts.MaxPerDay,
		LastPublish: t.last,
		Spacing:     t.spacing,
	}
	if !t.last.IsZero() {
		snap.NextEarliest = t.last.Add(max(t.spacing, t.opts.MinDelay))
	}
	if t.count >= t.opts.MaxPerDay {
		if tomorrow := t.day.AddDate(0, 0, 1); tomorrow.After(snap.NextEarliest) {
			snap.NextEarliest = tomorrow
		}
	}
	return snap
}

func (t *Throttle) roll(now time.Time) {
	if day := StartOfDay(now); day.After(t.day) {
		t.day = day
		t.count = 0
	}
}

func (t *Throttle) pickSpacing() time.Duration {
	span := t.opts.MaxDelay - t.opts.MinDelay
	if span <= 0 {
		return t.opts.MinDelay
	}
	return t.opts.MinDelay + time.Duration(t.rng.Int64N(int64(span)+1))
}
