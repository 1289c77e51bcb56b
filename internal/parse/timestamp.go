package parse

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// timestampLayouts are the ISO-8601 forms the upstream API has been seen to emit.
// Every layout requires an explicit offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999-0700",
}

// Timestamp converts an API date value into an absolute time.
// It reports false for anything that is not a non-empty string holding an
// ISO-8601 timestamp with a UTC offset. A trailing "Z" is treated as "+00:00".
func Timestamp(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}

	normalized := s
	if strings.HasSuffix(normalized, "Z") {
		normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t, true
		}
	}

	log.Debug().Str("value", s).Msg("[parse] unparseable timestamp")
	return time.Time{}, false
}
