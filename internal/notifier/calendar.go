// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package notifier

import (
	"fmt"
	"time"
)

// ErrLookbackExhausted is returned by previousBusinessDay when no
// business day is found within maxLookback days. The upstream Python
// walk has no such bound and would loop forever on a pathological
// configuration (e.g. every day of the year marked off); bounding it
// turns that into a logged, recoverable error instead.
var ErrLookbackExhausted error = fmt.Errorf("notifier: no business day found within lookback window")

// isBusinessDay reports whether date is a business day: not a weekend,
// not one of the configured fixed MM-DD days off, and not one of the
// configured Easter-relative movable days off.
func isBusinessDay(date time.Time, regularDaysOff []string, movableOffsets []int) bool {
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	for _, d := range daysOff(date.Year(), regularDaysOff, movableOffsets) {
		if sameDate(d, date) {
			return false
		}
	}
	return true
}

// daysOff returns the full set of non-weekend days off for year: the
// configured fixed MM-DD days plus the Easter-relative movable days.
// A malformed MM-DD entry is skipped rather than aborting the whole
// computation (the upstream Python exits the process on this; skipping
// keeps the notifier running for every other org).
func daysOff(year int, regularDaysOff []string, movableOffsets []int) []time.Time {
	days := make([]time.Time, 0, len(regularDaysOff)+len(movableOffsets))
	for _, md := range regularDaysOff {
		d, err := parseMonthDay(year, md)
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	e := easter(year)
	for _, offset := range movableOffsets {
		days = append(days, e.AddDate(0, 0, offset))
	}
	return days
}

func parseMonthDay(year int, monthDay string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", fmt.Sprintf("%04d-%s", year, monthDay))
	if err != nil {
		return time.Time{}, fmt.Errorf("notifier: day-off %q does not match MM-DD format: %w", monthDay, err)
	}
	return t, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// easter returns the date of Western (Gregorian) Easter Sunday for
// year, via the anonymous Gregorian algorithm (Meeus/Jones/Butcher).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// previousBusinessDay walks backward from date one day at a time,
// returning the first business day found, bounded to maxLookback days.
func previousBusinessDay(date time.Time, regularDaysOff []string, movableOffsets []int, maxLookback int) (time.Time, error) {
	cur := date
	for i := 0; i < maxLookback; i++ {
		cur = cur.AddDate(0, 0, -1)
		if isBusinessDay(cur, regularDaysOff, movableOffsets) {
			return cur, nil
		}
	}
	return time.Time{}, ErrLookbackExhausted
}
