// Package ics renders the event store as an iCalendar feed so
// external calendars can subscribe to the LiveOps schedule.
package ics

import (
	ical "github.com/arran4/golang-ical"

	"github.com/liveopshq/opscal/internal/event"
)

const prodID = "-//opscal//liveops calendar//EN"

// Export serializes events as a VCALENDAR of all-day VEVENTs. The
// fair tag becomes CATEGORIES, the link becomes URL.
func Export(events []event.Event) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetSummary(ev.Title)
		ve.SetAllDayStartAt(ev.Date.Time())
		ve.SetAllDayEndAt(ev.Date.Time().AddDate(0, 0, 1))
		if ev.Fair != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, ev.Fair)
		}
		if ev.Link != "" {
			ve.SetProperty(ical.ComponentPropertyUrl, ev.Link)
		}
	}

	return cal.Serialize()
}
