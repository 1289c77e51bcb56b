// Package calendar renders a cached timetable as an iCalendar feed.
package calendar

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"masjidbox-bridge/internal/parse"
	"masjidbox-bridge/internal/sensor"
)

// ErrNoEvents is returned when the timetable holds no parseable prayer times.
var ErrNoEvents = errors.New("timetable has no prayer times")

// defaultDuration is used when a prayer has no later iqamah time.
const defaultDuration = 20 * time.Minute

const productID = "-//masjidbox-bridge//prayer times//EN"

// Event is one prayer occurrence in the timetable window.
type Event struct {
	UID     string
	Prayer  sensor.Prayer
	Summary string
	Start   time.Time
	End     time.Time
	Iqamah  *time.Time
}

// Events extracts every adhan occurrence of the timetable, in timetable
// order. Days or prayers that do not parse are skipped.
func Events(slug string, data map[string]any) []Event {
	var events []Event
	for _, day := range parse.Days(data) {
		iqamah, _ := day["iqamah"].(map[string]any)
		for _, p := range sensor.AdhanPrayers {
			start, ok := parse.Timestamp(parse.First(day[string(p)]))
			if !ok {
				continue
			}
			start = start.UTC()

			ev := Event{
				UID:     fmt.Sprintf("%s-%s-%s@masjidbox", slug, start.Format("20060102"), p),
				Prayer:  p,
				Summary: strings.ToUpper(string(p[:1])) + string(p[1:]),
				Start:   start,
				End:     start.Add(defaultDuration),
			}
			if iq, ok := parse.Timestamp(parse.First(iqamah[string(p)])); ok && iq.After(start) {
				iq = iq.UTC()
				ev.Iqamah = &iq
				ev.End = iq
			}
			events = append(events, ev)
		}
	}
	return events
}

// Build assembles the calendar for a place. stamp is the time the underlying
// data was fetched.
func Build(slug, title string, data map[string]any, stamp time.Time) (*ical.Calendar, error) {
	events := Events(slug, data)
	if len(events) == 0 {
		return nil, ErrNoEvents
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText("X-WR-CALNAME", title)

	for _, ev := range events {
		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, ev.UID)
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
		vevent.Props.SetText(ical.PropSummary, ev.Summary)
		if ev.Iqamah != nil {
			vevent.Props.SetText(ical.PropDescription, "Iqamah "+ev.Iqamah.Format(time.RFC3339))
		}
		cal.Children = append(cal.Children, vevent.Component)
	}
	return cal, nil
}

// Write encodes the calendar for a place to w.
func Write(w io.Writer, slug, title string, data map[string]any, stamp time.Time) error {
	cal, err := Build(slug, title, data, stamp)
	if err != nil {
		return err
	}
	return ical.NewEncoder(w).Encode(cal)
}
