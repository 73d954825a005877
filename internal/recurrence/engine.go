package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/room-reservations/internal/slot"
)

const (
	// MaxOccurrences caps how many occurrences a single recurring request may create.
	MaxOccurrences = 60
	// MaxSpanDays caps the distance between the first date and the repeat-until date.
	MaxSpanDays = 730
)

var (
	// ErrInvalidRange indicates the repeat-until date precedes the first date.
	ErrInvalidRange = errors.New("recurrence: repeat-until must be on or after the start date")
	// ErrNoWeekdays indicates a recurring request without any weekday.
	ErrNoWeekdays = errors.New("recurrence: at least one repeat weekday is required")
	// ErrInvalidWeekday indicates a weekday number outside 0..6.
	ErrInvalidWeekday = errors.New("recurrence: repeat weekdays must be within 0..6 (0=Sunday)")
	// ErrRangeTooLarge indicates the repeat range exceeds MaxSpanDays.
	ErrRangeTooLarge = errors.New("recurrence: repeat range is too large")
	// ErrNoOccurrences indicates the range contains no matching weekday.
	ErrNoOccurrences = errors.New("recurrence: no occurrences match the repeat weekdays")
	// ErrTooManyOccurrences indicates the expansion would exceed MaxOccurrences.
	ErrTooManyOccurrences = errors.New("recurrence: too many occurrences")
)

// Window is a concrete occurrence of a recurring request.
type Window struct {
	Date  slot.Date
	Start time.Time
	End   time.Time
}

// Engine expands weekly recurrence requests into occurrence dates.
type Engine struct {
	calendar *slot.Calendar
}

// NewEngine constructs an Engine evaluating weekdays in the calendar's timezone.
// If cal is nil, the default facility timezone is used.
func NewEngine(cal *slot.Calendar) *Engine {
	if cal == nil {
		var err error
		cal, err = slot.LoadCalendar(slot.DefaultTimezone)
		if err != nil {
			cal = slot.NewCalendar(time.UTC)
		}
	}
	return &Engine{calendar: cal}
}

// NormalizeWeekdays validates and deduplicates weekday numbers, returning them sorted.
func NormalizeWeekdays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, ErrNoWeekdays
	}
	seen := make(map[int]struct{}, len(days))
	normalized := make([]int, 0, len(days))
	for _, day := range days {
		if _, ok := slot.WeekdayFromNumber(day); !ok {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidWeekday, day)
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		normalized = append(normalized, day)
	}
	sort.Ints(normalized)
	return normalized, nil
}

// Expand lists every date from first to until inclusive whose weekday is in
// repeatDays (0=Sunday). The result is ordered and never longer than
// MaxOccurrences; a request exceeding that cap fails as a whole.
func (e *Engine) Expand(first slot.Date, repeatDays []int, until slot.Date) ([]slot.Date, error) {
	days, err := NormalizeWeekdays(repeatDays)
	if err != nil {
		return nil, err
	}
	if until.Before(first) {
		return nil, ErrInvalidRange
	}
	if first.DaysUntil(until) > MaxSpanDays {
		return nil, fmt.Errorf("%w: at most %d days", ErrRangeTooLarge, MaxSpanDays)
	}

	wanted := make(map[int]struct{}, len(days))
	for _, day := range days {
		wanted[day] = struct{}{}
	}

	dates := make([]slot.Date, 0)
	for cur := first; !cur.After(until); cur = cur.AddDays(1) {
		if _, ok := wanted[e.calendar.LocalWeekday(cur)]; !ok {
			continue
		}
		if len(dates) == MaxOccurrences {
			return nil, fmt.Errorf("%w: max %d", ErrTooManyOccurrences, MaxOccurrences)
		}
		dates = append(dates, cur)
	}

	if len(dates) == 0 {
		return nil, ErrNoOccurrences
	}
	return dates, nil
}

// Windows shifts the base window's local time of day onto each date.
func (e *Engine) Windows(dates []slot.Date, baseStart, baseEnd time.Time) []Window {
	startTime := e.calendar.LocalTimeOfDay(baseStart)
	endTime := e.calendar.LocalTimeOfDay(baseEnd)

	windows := make([]Window, 0, len(dates))
	for _, date := range dates {
		windows = append(windows, Window{
			Date:  date,
			Start: e.calendar.Combine(date, startTime).UTC(),
			End:   e.calendar.Combine(date, endTime).UTC(),
		})
	}
	return windows
}
