package simulator

import (
	"testing"
	"time"

	"github.com/raykavin/intrabot/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestTimeController_FiresEachThresholdOnce(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	tc, err := NewTimeController(date, "15:00", "15:15", logger.Nop())
	require.NoError(t, err)

	warnings, squareOffs := 0, 0
	tc.OnWarning(func(time.Time) { warnings++ })
	tc.OnSquareOff(func(time.Time) { squareOffs++ })

	tc.Advance(date.Add(14*time.Hour + 59*time.Minute))
	require.Zero(t, warnings)

	// Exactly on the boundary fires the warning.
	tc.Advance(date.Add(15 * time.Hour))
	require.Equal(t, 1, warnings)
	require.Zero(t, squareOffs)
	require.True(t, tc.Warned())

	// Repeated crossings are idempotent.
	tc.Advance(date.Add(15*time.Hour + 5*time.Minute))
	tc.Advance(date.Add(15*time.Hour + 10*time.Minute))
	require.Equal(t, 1, warnings)

	tc.Advance(date.Add(15*time.Hour + 15*time.Minute))
	require.Equal(t, 1, squareOffs)
	require.True(t, tc.SquaredOff())

	tc.Advance(date.Add(16 * time.Hour))
	require.Equal(t, 1, warnings)
	require.Equal(t, 1, squareOffs)
}

func TestTimeController_LateStartFiresBothInOrder(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	tc, err := NewTimeController(date, "", "", logger.Nop())
	require.NoError(t, err)

	var events []string
	tc.OnWarning(func(time.Time) { events = append(events, "warning") })
	tc.OnSquareOff(func(time.Time) { events = append(events, "square_off") })

	// A single tick past both thresholds fires both, warning first.
	tc.Advance(date.Add(15*time.Hour + 30*time.Minute))
	require.Equal(t, []string{"warning", "square_off"}, events)
}

func TestTimeController_RejectsInvertedThresholds(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	_, err := NewTimeController(date, "15:15", "15:00", logger.Nop())
	require.Error(t, err)

	_, err = NewTimeController(date, "not-a-time", "15:15", logger.Nop())
	require.Error(t, err)
}

func TestTimeController_ClockNeverMovesBackwards(t *testing.T) {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	tc, err := NewTimeController(date, "15:00", "15:15", logger.Nop())
	require.NoError(t, err)

	tc.Advance(date.Add(10 * time.Hour))
	tc.Advance(date.Add(9 * time.Hour))
	require.True(t, tc.Now().Equal(date.Add(10*time.Hour)))
}
