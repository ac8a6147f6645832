package gcal

import (
	"fmt"
	"time"

	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/pkg/wallclock"
)

const defaultReason = "Google Calendar"

// eventBound reads an event start or end as a clinic wall-clock value. Timed
// events keep the hour written in the event; all-day events use midnight.
func eventBound(t *calendarapi.EventDateTime) (wallclock.DateTime, error) {
	if t == nil {
		return wallclock.DateTime{}, fmt.Errorf("missing event time")
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return wallclock.DateTime{}, fmt.Errorf("invalid event time %q: %w", t.DateTime, err)
		}
		return wallclock.FromTime(parsed), nil
	}
	d, err := wallclock.ParseDate(t.Date)
	if err != nil {
		return wallclock.DateTime{}, err
	}
	return d.Start(), nil
}

// busy reports whether an event should block clinic time.
func busy(e *calendarapi.Event) bool {
	return e.Status != "cancelled" && e.Transparency != "transparent"
}

// ToExceptions maps busy events to block exceptions. Events outside
// [from, to), free or cancelled events, and events without a usable interval
// are skipped. It returns the exceptions and the number of skipped events.
func ToExceptions(events []*calendarapi.Event, from, to wallclock.DateTime) ([]*calendar.Exception, int) {
	var out []*calendar.Exception
	skipped := 0
	for _, e := range events {
		if !busy(e) {
			skipped++
			continue
		}
		start, err := eventBound(e.Start)
		if err != nil {
			skipped++
			continue
		}
		end, err := eventBound(e.End)
		if err != nil || !end.After(start) {
			skipped++
			continue
		}
		if !wallclock.Overlaps(start, end, from, to) {
			skipped++
			continue
		}

		reason := e.Summary
		if reason == "" {
			reason = defaultReason
		}
		out = append(out, &calendar.Exception{
			ExceptionType: calendar.ExceptionBlock,
			StartDatetime: start,
			EndDatetime:   end,
			Reason:        &reason,
		})
	}
	return out, skipped
}
