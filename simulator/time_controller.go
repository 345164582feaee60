package simulator

import (
	"fmt"
	"time"

	"github.com/raykavin/intrabot/core"
)

// Default session thresholds, naive local times of the simulated date.
const (
	DefaultWarningAt   = "15:00"
	DefaultSquareOffAt = "15:15"

	clockLayout = "15:04"
)

// TimeController holds the simulated clock and fires two idempotent events
// when it crosses the configured thresholds: a warning that blocks new
// entries, then the square-off that force-closes every open position.
type TimeController struct {
	warningAt   time.Time
	squareOffAt time.Time

	warned    bool
	squared   bool
	now       time.Time
	onWarning []func(now time.Time)
	onSquare  []func(now time.Time)
	log       core.Logger
}

// NewTimeController builds a controller for one simulated date. warning and
// squareOff use the "15:04" clock layout; empty strings take the defaults.
func NewTimeController(date time.Time, warning, squareOff string, log core.Logger) (*TimeController, error) {
	if warning == "" {
		warning = DefaultWarningAt
	}
	if squareOff == "" {
		squareOff = DefaultSquareOffAt
	}

	warningAt, err := atClock(date, warning)
	if err != nil {
		return nil, err
	}
	squareOffAt, err := atClock(date, squareOff)
	if err != nil {
		return nil, err
	}
	if !squareOffAt.After(warningAt) {
		return nil, fmt.Errorf("square-off %s must be after warning %s", squareOff, warning)
	}

	return &TimeController{
		warningAt:   warningAt,
		squareOffAt: squareOffAt,
		log:         log,
	}, nil
}

// OnWarning registers a callback for the entry-block threshold.
func (t *TimeController) OnWarning(fn func(now time.Time)) {
	t.onWarning = append(t.onWarning, fn)
}

// OnSquareOff registers a callback for the forced-exit threshold.
func (t *TimeController) OnSquareOff(fn func(now time.Time)) {
	t.onSquare = append(t.onSquare, fn)
}

// Now returns the current simulated time.
func (t *TimeController) Now() time.Time { return t.now }

// Warned reports whether the warning threshold has fired.
func (t *TimeController) Warned() bool { return t.warned }

// SquaredOff reports whether the square-off threshold has fired.
func (t *TimeController) SquaredOff() bool { return t.squared }

// Advance moves the simulated clock. Each threshold fires exactly once no
// matter how often the clock crosses it.
func (t *TimeController) Advance(now time.Time) {
	if now.Before(t.now) {
		return
	}
	t.now = now

	if !t.warned && !now.Before(t.warningAt) {
		t.warned = true
		t.log.Warnf("session warning at %s, new entries blocked", now.Format("15:04:05"))
		for _, fn := range t.onWarning {
			fn(now)
		}
	}

	if !t.squared && !now.Before(t.squareOffAt) {
		t.squared = true
		t.log.Warnf("square-off at %s, closing all open positions", now.Format("15:04:05"))
		for _, fn := range t.onSquare {
			fn(now)
		}
	}
}

func atClock(date time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, date.Location()), nil
}
