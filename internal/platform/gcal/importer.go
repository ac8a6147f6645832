package gcal

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// EventLister lists expanded events of one Google calendar.
type EventLister interface {
	ListEvents(ctx context.Context, token *oauth2.Token, calendarID string, timeMin, timeMax time.Time) ([]*calendarapi.Event, error)
}

type Importer struct {
	events EventLister
}

func NewImporter(events EventLister) *Importer {
	return &Importer{events: events}
}

// BusyBlocks returns the busy events of googleCalendarID in [from, to) as
// block exceptions. Google needs zoned bounds, so the query window is widened
// by a day on each side and the result is filtered on wall-clock values.
func (im *Importer) BusyBlocks(ctx context.Context, token *oauth2.Token, googleCalendarID string, from, to wallclock.DateTime) ([]*calendar.Exception, error) {
	timeMin := from.Time().AddDate(0, 0, -1)
	timeMax := to.Time().AddDate(0, 0, 1)

	events, err := im.events.ListEvents(ctx, token, googleCalendarID, timeMin, timeMax)
	if err != nil {
		return nil, err
	}

	blocks, skipped := ToExceptions(events, from, to)
	zerolog.Ctx(ctx).Debug().
		Str("google_calendar_id", googleCalendarID).
		Int("events", len(events)).
		Int("blocks", len(blocks)).
		Int("skipped", skipped).
		Msg("mapped google events")
	return blocks, nil
}
