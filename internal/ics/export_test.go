package ics

import (
	"strings"
	"testing"

	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
)

func TestExport(t *testing.T) {
	d, err := dates.ParseISO("2025-03-05")
	if err != nil {
		t.Fatal(err)
	}
	events := []event.Event{
		{ID: "e1", Date: d, Title: "Spring Sale", Fair: "SpringFair", Link: "https://example.com/x"},
	}

	feed := Export(events)
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:Spring Sale",
		"20250305",
		"CATEGORIES:SpringFair",
		"END:VCALENDAR",
	} {
		if !strings.Contains(feed, want) {
			t.Errorf("feed missing %q:\n%s", want, feed)
		}
	}
	// All-day events carry DATE-valued starts, no time-of-day.
	if !strings.Contains(feed, "VALUE=DATE") {
		t.Errorf("DTSTART is not date-valued:\n%s", feed)
	}
}

func TestExportEmptyStore(t *testing.T) {
	feed := Export(nil)
	if !strings.Contains(feed, "BEGIN:VCALENDAR") {
		t.Errorf("empty feed malformed:\n%s", feed)
	}
	if strings.Contains(feed, "BEGIN:VEVENT") {
		t.Errorf("empty store produced events:\n%s", feed)
	}
}
