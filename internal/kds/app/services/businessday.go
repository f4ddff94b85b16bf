package services

import "time"

// BusinessDayStart returns the start of the business day containing now.
// The day begins at startHour local time, so a shift running past midnight
// stays in the day it started.
func BusinessDayStart(now time.Time, startHour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), startHour, 0, 0, 0, loc)
	if local.Before(start) {
		start = time.Date(local.Year(), local.Month(), local.Day()-1, startHour, 0, 0, 0, loc)
	}
	return start
}

// calendarDay returns [00:00, next 00:00) of the day containing t in loc.
func calendarDay(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
