package billing

import (
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar date (organization-local)
// =============================================================================

// Date is a calendar date with no time component, interpreted in the
// organization's local calendar. Shift timestamps are classified by the local
// day they start on, not by UTC.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates a timestamp to its calendar day in the timestamp's own
// location. Callers are expected to pass org-local times.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }
func (d Date) String() string        { return d.Time().Format("2006-01-02") }

func (d Date) Before(other Date) bool { return d.Time().Before(other.Time()) }
func (d Date) After(other Date) bool  { return d.Time().After(other.Time()) }
func (d Date) Equal(other Date) bool  { return d == other }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

// =============================================================================
// DAY TYPE - Rate classification of a calendar date
// =============================================================================

// DayType classifies a date for rate purposes. The classification is
// persisted on each line item at generation time, never recomputed later.
type DayType string

const (
	DayWeekday       DayType = "weekday"
	DaySaturday      DayType = "saturday"
	DaySunday        DayType = "sunday"
	DayPublicHoliday DayType = "public_holiday"
)

// =============================================================================
// PUBLIC HOLIDAYS
// =============================================================================

// PublicHoliday is a gazetted holiday for one organization's jurisdiction.
// Unique per (organization, date).
type PublicHoliday struct {
	OrgID OrgID
	Date  Date
	Name  string
}

// HolidaySet is a lookup of gazetted holiday dates.
type HolidaySet map[Date]struct{}

// NewHolidaySet builds a set from holiday rows.
func NewHolidaySet(holidays []PublicHoliday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		set[h.Date] = struct{}{}
	}
	return set
}

func (hs HolidaySet) Contains(d Date) bool {
	_, ok := hs[d]
	return ok
}

// =============================================================================
// DAY-TYPE CLASSIFIER
// =============================================================================

// ClassifyDay returns the rate classification for a date. A public holiday
// always classifies as public_holiday regardless of the weekday it falls on;
// the precedence is fixed, not configurable. Pure function.
func ClassifyDay(d Date, holidays HolidaySet) DayType {
	if holidays.Contains(d) {
		return DayPublicHoliday
	}
	switch d.Weekday() {
	case time.Saturday:
		return DaySaturday
	case time.Sunday:
		return DaySunday
	default:
		return DayWeekday
	}
}
