package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/room-reservations/internal/slot"
)

func newTestEngine(t testing.TB) (*Engine, *slot.Calendar) {
	t.Helper()
	cal, err := slot.LoadCalendar("America/Chicago")
	require.NoError(t, err)
	return NewEngine(cal), cal
}

func date(t testing.TB, value string) slot.Date {
	t.Helper()
	d, err := slot.ParseDate(value)
	require.NoError(t, err)
	return d
}

func TestEngine_Expand(t *testing.T) {
	t.Parallel()
	engine, cal := newTestEngine(t)

	t.Run("respects weekday selections", func(t *testing.T) {
		t.Parallel()
		dates, err := engine.Expand(date(t, "2024-01-01"), []int{1, 3}, date(t, "2024-03-01"))
		require.NoError(t, err)
		require.Len(t, dates, 18)
		assert.Equal(t, "2024-01-01", dates[0].String())
		assert.Equal(t, "2024-01-03", dates[1].String())
		assert.Equal(t, "2024-02-28", dates[len(dates)-1].String())
		for i, d := range dates {
			wd := cal.LocalWeekday(d)
			assert.Contains(t, []int{1, 3}, wd, d.String())
			if i > 0 {
				assert.True(t, dates[i-1].Before(d), "dates must be ascending")
			}
		}
	})

	t.Run("until is inclusive", func(t *testing.T) {
		t.Parallel()
		dates, err := engine.Expand(date(t, "2024-01-01"), []int{1}, date(t, "2024-01-15"))
		require.NoError(t, err)
		require.Len(t, dates, 3)
		assert.Equal(t, "2024-01-15", dates[2].String())
	})

	t.Run("first date is skipped when its weekday is not selected", func(t *testing.T) {
		t.Parallel()
		dates, err := engine.Expand(date(t, "2024-01-01"), []int{0}, date(t, "2024-01-14"))
		require.NoError(t, err)
		require.Len(t, dates, 2)
		assert.Equal(t, "2024-01-07", dates[0].String())
	})

	t.Run("duplicate weekdays collapse", func(t *testing.T) {
		t.Parallel()
		dates, err := engine.Expand(date(t, "2024-01-01"), []int{1, 1, 1}, date(t, "2024-01-08"))
		require.NoError(t, err)
		assert.Len(t, dates, 2)
	})

	t.Run("exactly the cap is accepted", func(t *testing.T) {
		t.Parallel()
		dates, err := engine.Expand(date(t, "2024-01-01"), []int{0, 1, 2, 3, 4, 5, 6}, date(t, "2024-02-29"))
		require.NoError(t, err)
		assert.Len(t, dates, MaxOccurrences)
	})

	t.Run("one past the cap fails", func(t *testing.T) {
		t.Parallel()
		dates, err := engine.Expand(date(t, "2024-01-01"), []int{0, 1, 2, 3, 4, 5, 6}, date(t, "2024-03-01"))
		assert.ErrorIs(t, err, ErrTooManyOccurrences)
		assert.Nil(t, dates)
	})
}

func TestEngine_ExpandRejectsInvalidRequests(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	tests := []struct {
		name    string
		first   string
		days    []int
		until   string
		wantErr error
	}{
		{"no weekdays", "2024-01-01", nil, "2024-01-31", ErrNoWeekdays},
		{"weekday too large", "2024-01-01", []int{1, 7}, "2024-01-31", ErrInvalidWeekday},
		{"negative weekday", "2024-01-01", []int{-1}, "2024-01-31", ErrInvalidWeekday},
		{"until before first", "2024-02-01", []int{1}, "2024-01-31", ErrInvalidRange},
		{"span too large", "2024-01-01", []int{1}, "2026-01-31", ErrRangeTooLarge},
		{"no matching weekday in range", "2024-01-01", []int{6}, "2024-01-05", ErrNoOccurrences},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := engine.Expand(date(t, tc.first), tc.days, date(t, tc.until))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestEngine_WindowsKeepLocalWallClockAcrossDST(t *testing.T) {
	t.Parallel()
	engine, cal := newTestEngine(t)

	// Daylight saving time begins in Chicago on 2024-03-10.
	baseStart := time.Date(2024, time.March, 8, 10, 0, 0, 0, cal.Location())
	baseEnd := baseStart.Add(90 * time.Minute)
	dates, err := engine.Expand(date(t, "2024-03-08"), []int{1, 5}, date(t, "2024-03-11"))
	require.NoError(t, err)

	windows := engine.Windows(dates, baseStart, baseEnd)
	require.Len(t, windows, 2)

	assert.Equal(t, time.Date(2024, time.March, 8, 16, 0, 0, 0, time.UTC), windows[0].Start)
	assert.Equal(t, time.Date(2024, time.March, 11, 15, 0, 0, 0, time.UTC), windows[1].Start)
	for _, w := range windows {
		assert.Equal(t, 90*time.Minute, w.End.Sub(w.Start))
		assert.Equal(t, slot.TimeOfDay{Hour: 10}, cal.LocalTimeOfDay(w.Start))
		assert.NoError(t, cal.ValidateWindow(w.Start, w.End))
	}
}

func TestNormalizeWeekdays(t *testing.T) {
	t.Parallel()

	got, err := NormalizeWeekdays([]int{5, 1, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, got)
}
