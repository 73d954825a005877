// Package slot validates reservation windows against the facility's slot grid
// and converts between absolute instants and the facility's civil time.
//
// Every business rule is evaluated in a single civil timezone bound to a
// Calendar. Instants are stored in UTC; dates and times of day are only
// meaningful relative to that Calendar.
package slot

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// SlotDuration is the atomic reservation granularity.
	SlotDuration = 30 * time.Minute
	// OpenHour is the local hour at which the facility opens.
	OpenHour = 9
	// CloseHour is the local hour at which the facility closes.
	CloseHour = 20
	// DefaultTimezone is the civil timezone used when none is configured.
	DefaultTimezone = "America/Chicago"
)

var (
	// ErrInvalidTimeInput indicates an instant or date that could not be parsed or is missing.
	ErrInvalidTimeInput = errors.New("slot: invalid time input")
	// ErrInvalidWindow indicates a window violating alignment, duration, same-day or operating-hour rules.
	ErrInvalidWindow = errors.New("slot: invalid window")
)

// TimeOfDay is a local wall-clock time without a date.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// Opening is the first bookable local time of a day.
var Opening = TimeOfDay{Hour: OpenHour}

// Closing is the last local time a reservation may end at.
var Closing = TimeOfDay{Hour: CloseHour}

// String renders the time of day as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Sub returns the wall-clock distance from u to t.
func (t TimeOfDay) Sub(u TimeOfDay) time.Duration {
	return t.sinceMidnight() - u.sinceMidnight()
}

func (t TimeOfDay) sinceMidnight() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

// Calendar evaluates slot rules in one fixed civil timezone.
type Calendar struct {
	location *time.Location
}

// NewCalendar binds a Calendar to loc. A nil location falls back to UTC.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{location: loc}
}

// LoadCalendar resolves an IANA timezone name and binds a Calendar to it.
func LoadCalendar(name string) (*Calendar, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("slot: load timezone %q: %w", name, err)
	}
	return NewCalendar(loc), nil
}

// Location returns the civil timezone of the calendar.
func (c *Calendar) Location() *time.Location {
	return c.location
}

// LocalDate returns the civil date of t.
func (c *Calendar) LocalDate(t time.Time) Date {
	return DateOf(t.In(c.location))
}

// LocalTimeOfDay returns the wall-clock time of t.
func (c *Calendar) LocalTimeOfDay(t time.Time) TimeOfDay {
	local := t.In(c.location)
	return TimeOfDay{
		Hour:       local.Hour(),
		Minute:     local.Minute(),
		Second:     local.Second(),
		Nanosecond: local.Nanosecond(),
	}
}

// Combine resolves a civil date and wall-clock time into an instant.
func (c *Calendar) Combine(d Date, tod TimeOfDay) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, tod.Second, tod.Nanosecond, c.location)
}

// IsSlotAligned reports whether t falls on :00 or :30 with no seconds.
func (c *Calendar) IsSlotAligned(t time.Time) bool {
	tod := c.LocalTimeOfDay(t)
	return (tod.Minute == 0 || tod.Minute == 30) && tod.Second == 0 && tod.Nanosecond == 0
}

// IsWithinOperatingHours reports whether tod on date d lies in [09:00, 20:00].
func (c *Calendar) IsWithinOperatingHours(d Date, tod TimeOfDay) bool {
	open, closing := c.DayBounds(d)
	at := c.Combine(d, tod)
	return !at.Before(open) && !at.After(closing)
}

// IsSameLocalDate reports whether both instants map to the same civil date.
func (c *Calendar) IsSameLocalDate(a, b time.Time) bool {
	return c.LocalDate(a) == c.LocalDate(b)
}

// LocalWeekday returns the weekday number of d, 0=Sunday through 6=Saturday.
func (c *Calendar) LocalWeekday(d Date) int {
	return WeekdayNumber(d.Weekday())
}

// DayBounds returns the opening and closing instants of d.
func (c *Calendar) DayBounds(d Date) (time.Time, time.Time) {
	return c.Combine(d, Opening), c.Combine(d, Closing)
}

// Shift moves t by days civil days, keeping its wall-clock time, and then by
// clock. Operating hours never straddle a DST transition, so the clock offset
// is applied as elapsed time.
func (c *Calendar) Shift(t time.Time, days int, clock time.Duration) time.Time {
	return c.Combine(c.LocalDate(t).AddDays(days), c.LocalTimeOfDay(t)).Add(clock)
}

// Slots lists the HH:MM start labels of every slot on d.
func (c *Calendar) Slots(d Date) []string {
	open, closing := c.DayBounds(d)
	labels := make([]string, 0, int(closing.Sub(open)/SlotDuration))
	for cur := open; cur.Before(closing); cur = cur.Add(SlotDuration) {
		labels = append(labels, cur.Format("15:04"))
	}
	return labels
}

// ValidateWindow checks the window rules shared by every reservation.
//
// Returned errors wrap ErrInvalidTimeInput for missing instants and
// ErrInvalidWindow for every other violation.
func (c *Calendar) ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidTimeInput)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	if end.Sub(start) < SlotDuration {
		return fmt.Errorf("%w: reservation must be at least 30 minutes", ErrInvalidWindow)
	}
	if !c.IsSlotAligned(start) || !c.IsSlotAligned(end) {
		return fmt.Errorf("%w: start and end must be aligned to 30-minute slots", ErrInvalidWindow)
	}
	if !c.IsSameLocalDate(start, end) {
		return fmt.Errorf("%w: reservation must not cross midnight", ErrInvalidWindow)
	}
	day := c.LocalDate(start)
	if !c.IsWithinOperatingHours(day, c.LocalTimeOfDay(start)) || !c.IsWithinOperatingHours(day, c.LocalTimeOfDay(end)) {
		return fmt.Errorf("%w: reservation must be within operating hours %s-%s", ErrInvalidWindow, Opening, Closing)
	}
	return nil
}

// ParseInstant parses an RFC 3339 timestamp that carries an explicit offset or Z.
func (c *Calendar) ParseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrInvalidTimeInput)
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not an RFC 3339 timestamp with offset", ErrInvalidTimeInput, value)
	}
	return parsed.UTC(), nil
}

// WeekdayNumber maps a platform weekday onto the project numbering
// 0=Sunday, 1=Monday ... 6=Saturday. It is the only place the two meet.
func WeekdayNumber(day time.Weekday) int {
	switch day {
	case time.Sunday:
		return 0
	case time.Monday:
		return 1
	case time.Tuesday:
		return 2
	case time.Wednesday:
		return 3
	case time.Thursday:
		return 4
	case time.Friday:
		return 5
	case time.Saturday:
		return 6
	}
	return -1
}

// WeekdayFromNumber is the inverse of WeekdayNumber.
func WeekdayFromNumber(n int) (time.Weekday, bool) {
	switch n {
	case 0:
		return time.Sunday, true
	case 1:
		return time.Monday, true
	case 2:
		return time.Tuesday, true
	case 3:
		return time.Wednesday, true
	case 4:
		return time.Thursday, true
	case 5:
		return time.Friday, true
	case 6:
		return time.Saturday, true
	}
	return time.Sunday, false
}
