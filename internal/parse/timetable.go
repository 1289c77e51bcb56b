package parse

import "github.com/rs/zerolog/log"

// TimetableKey is the response field holding the per-day entries.
const TimetableKey = "timetable"

// Today returns the first timetable entry of a raw API response.
// It reports false when the timetable is missing, empty, not a list, or when
// its first element is not an object.
func Today(data map[string]any) (map[string]any, bool) {
	timetable, ok := data[TimetableKey].([]any)
	if !ok || len(timetable) == 0 {
		log.Debug().Msg("[parse] no timetable[0] in response")
		return nil, false
	}

	first, ok := timetable[0].(map[string]any)
	if !ok {
		log.Debug().Interface("entry", timetable[0]).Msg("[parse] timetable[0] is not an object")
		return nil, false
	}
	return first, true
}

// Days returns every object entry of the timetable in order, skipping
// elements of the wrong shape.
func Days(data map[string]any) []map[string]any {
	timetable, ok := data[TimetableKey].([]any)
	if !ok {
		return nil
	}

	days := make([]map[string]any, 0, len(timetable))
	for _, entry := range timetable {
		if day, ok := entry.(map[string]any); ok {
			days = append(days, day)
		}
	}
	return days
}

// First unwraps list-valued fields to their first element. The API returns
// lists for prayers with alternates, such as a second jumuah.
func First(v any) any {
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}
