// Package sensor derives the exposed prayer-time values from a cached
// timetable response. Every read is a pure function of the response.
package sensor

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"masjidbox-bridge/internal/parse"
)

// Domain prefixes unique ids and device identifiers.
const Domain = "masjidbox"

// Prayer is a canonical prayer name as used in the API payload.
type Prayer string

const (
	Fajr    Prayer = "fajr"
	Sunrise Prayer = "sunrise"
	Dhuhr   Prayer = "dhuhr"
	Asr     Prayer = "asr"
	Maghrib Prayer = "maghrib"
	Isha    Prayer = "isha"
)

// AdhanPrayers have a call-time sensor.
var AdhanPrayers = []Prayer{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// IqamahPrayers have a start-time sensor. Sunrise has no congregation.
var IqamahPrayers = []Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

// Kind distinguishes the three sensor families.
type Kind string

const (
	KindAdhan     Kind = "adhan"
	KindIqamah    Kind = "iqamah"
	KindHijriDate Kind = "hijri_date"
)

const (
	iqamahKey    = "iqamah"
	hijriKey     = "hijri"
	formattedKey = "formatted"
)

// Device groups all sensors of one place.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
}

// NewDevice returns the device shared by every sensor of slug.
func NewDevice(slug string) Device {
	return Device{
		Identifiers:  []string{Domain + ":" + slug},
		Name:         fmt.Sprintf("MasjidBox (%s)", slug),
		Manufacturer: "MasjidBox",
	}
}

// Sensor describes one exposed value.
type Sensor struct {
	UniqueID    string
	Name        string
	Kind        Kind
	Prayer      Prayer
	DeviceClass string
	Icon        string
	Device      Device
}

// Reading is the value of a sensor at read time. Exactly one of Time or
// Text is meaningful, depending on the sensor kind.
type Reading struct {
	Time time.Time
	Text string
}

// State renders the reading the way automation platforms expect sensor
// states: RFC 3339 for timestamps, the raw string otherwise.
func (r Reading) State(kind Kind) string {
	if kind == KindHijriDate {
		return r.Text
	}
	return r.Time.Format(time.RFC3339)
}

// ForPlace returns the twelve sensors of a place in a stable order: adhan,
// iqamah, then the Hijri date.
func ForPlace(slug string) []Sensor {
	device := NewDevice(slug)
	sensors := make([]Sensor, 0, len(AdhanPrayers)+len(IqamahPrayers)+1)

	for _, p := range AdhanPrayers {
		sensors = append(sensors, prayerSensor(slug, KindAdhan, p, device))
	}
	for _, p := range IqamahPrayers {
		sensors = append(sensors, prayerSensor(slug, KindIqamah, p, device))
	}
	sensors = append(sensors, Sensor{
		UniqueID: fmt.Sprintf("%s_%s_%s", Domain, slug, KindHijriDate),
		Name:     "Hijri Date",
		Kind:     KindHijriDate,
		Icon:     "mdi:calendar-star",
		Device:   device,
	})
	return sensors
}

func prayerSensor(slug string, kind Kind, p Prayer, device Device) Sensor {
	label := "Adhan"
	if kind == KindIqamah {
		label = "Iqamah"
	}
	name := string(p)
	return Sensor{
		UniqueID:    fmt.Sprintf("%s_%s_%s_%s", Domain, slug, kind, p),
		Name:        label + " " + strings.ToUpper(name[:1]) + name[1:],
		Kind:        kind,
		Prayer:      p,
		DeviceClass: "timestamp",
		Device:      device,
	}
}

// Read derives the sensor value from a raw API response. It reports false
// when the response does not carry a usable value for this sensor.
func (s Sensor) Read(data map[string]any) (Reading, bool) {
	today, ok := parse.Today(data)
	if !ok {
		log.Debug().Str("sensor", s.UniqueID).Msg("[sensor] no today data")
		return Reading{}, false
	}

	switch s.Kind {
	case KindHijriDate:
		return s.readHijri(today)
	case KindIqamah:
		iqamah, _ := today[iqamahKey].(map[string]any)
		return s.readTime(iqamah[string(s.Prayer)])
	default:
		return s.readTime(today[string(s.Prayer)])
	}
}

func (s Sensor) readTime(raw any) (Reading, bool) {
	value := parse.First(raw)
	if _, ok := value.(string); !ok {
		log.Debug().Str("sensor", s.UniqueID).Interface("value", value).Msg("[sensor] non-string value")
		return Reading{}, false
	}

	t, ok := parse.Timestamp(value)
	if !ok {
		return Reading{}, false
	}
	return Reading{Time: t}, true
}

func (s Sensor) readHijri(today map[string]any) (Reading, bool) {
	hijri, _ := today[hijriKey].(map[string]any)
	formatted, ok := hijri[formattedKey].(string)
	if !ok {
		log.Debug().Str("sensor", s.UniqueID).Interface("value", hijri[formattedKey]).Msg("[sensor] non-string formatted value")
		return Reading{}, false
	}
	return Reading{Text: formatted}, true
}
