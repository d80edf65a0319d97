// internal/schedule/recurrence.go
package schedule

import (
	"time"

	appErrors "github.com/unclebandit/newsletter-engine/internal/errors"
)

type Periodicity string

const (
	Once    Periodicity = "once"
	Daily   Periodicity = "daily"
	Weekly  Periodicity = "weekly"
	Monthly Periodicity = "monthly"
)

// maxMonthIterations bounds the monthly scan so a pathological schedule
// can never spin forever (40 years of months).
const maxMonthIterations = 480

// Schedule describes when a campaign fires. All arithmetic happens in the
// location of StartDate; only the date component of StartDate/EndDate is
// significant.
type Schedule struct {
	Periodicity Periodicity
	StartDate   time.Time
	EndDate     *time.Time
	Hour        int
	Minute      int
	Weekday     *time.Weekday // required for weekly
}

// Validate rejects malformed schedules before they reach the dispatcher.
func (s Schedule) Validate() error {
	switch s.Periodicity {
	case Once, Daily, Weekly, Monthly:
	default:
		return appErrors.NewInvalidSchedule("unknown periodicity: " + string(s.Periodicity))
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return appErrors.NewInvalidSchedule("time of day out of range")
	}
	if s.Periodicity == Weekly && s.Weekday == nil {
		return appErrors.NewInvalidSchedule("weekly schedule requires a weekday")
	}
	if s.EndDate != nil && dateOf(*s.EndDate).Before(dateOf(s.StartDate)) {
		return appErrors.NewInvalidSchedule("end date before start date")
	}
	return nil
}

// NextFire computes the earliest fire instant strictly after `after` that
// matches the schedule, or ok=false when the schedule is exhausted. The
// last admissible instant is end date at the scheduled time of day,
// inclusive. Pure function: no clock reads.
func (s Schedule) NextFire(after time.Time) (time.Time, bool) {
	switch s.Periodicity {
	case Once:
		t := s.instant(dateOf(s.StartDate))
		if t.After(after) && !s.exhausted(t) {
			return t, true
		}
		return time.Time{}, false

	case Daily:
		d := laterDate(dateOf(s.StartDate), dateOf(after.In(s.loc())))
		t := s.instant(d)
		if !t.After(after) {
			t = s.instant(d.AddDate(0, 0, 1))
		}
		if s.exhausted(t) {
			return time.Time{}, false
		}
		return t, true

	case Weekly:
		d := laterDate(dateOf(s.StartDate), dateOf(after.In(s.loc())))
		for d.Weekday() != *s.Weekday {
			d = d.AddDate(0, 0, 1)
		}
		t := s.instant(d)
		if !t.After(after) {
			t = s.instant(d.AddDate(0, 0, 7))
		}
		if s.exhausted(t) {
			return time.Time{}, false
		}
		return t, true

	case Monthly:
		// Anchored on the start date's day-of-month; a day that does not
		// exist in a given month clamps to that month's last day rather
		// than skipping the month.
		anchor := s.StartDate.Day()
		cursor := laterDate(dateOf(s.StartDate), dateOf(after.In(s.loc())))
		year, month := cursor.Year(), cursor.Month()
		for i := 0; i < maxMonthIterations; i++ {
			day := anchor
			if last := daysIn(year, month, s.loc()); day > last {
				day = last
			}
			t := time.Date(year, month, day, s.Hour, s.Minute, 0, 0, s.loc())
			if t.After(after) {
				if s.exhausted(t) {
					return time.Time{}, false
				}
				return t, true
			}
			month++
			if month > time.December {
				month = time.January
				year++
			}
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

func (s Schedule) loc() *time.Location {
	return s.StartDate.Location()
}

// instant places the schedule's time of day on the given date.
func (s Schedule) instant(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), s.Hour, s.Minute, 0, 0, s.loc())
}

func (s Schedule) exhausted(t time.Time) bool {
	if s.EndDate == nil {
		return false
	}
	return t.After(s.instant(dateOf(*s.EndDate)))
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func laterDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
