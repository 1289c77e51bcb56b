package sensor

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioC = `{"timetable":[{"fajr":"2024-03-01T05:12:00Z","iqamah":{"fajr":"2024-03-01T05:22:00Z"},"hijri":{"formatted":"20 Ramadan 1445"}}]}`

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	return data
}

func find(t *testing.T, sensors []Sensor, uniqueID string) Sensor {
	t.Helper()
	for _, s := range sensors {
		if s.UniqueID == uniqueID {
			return s
		}
	}
	t.Fatalf("sensor %q not found", uniqueID)
	return Sensor{}
}

func TestForPlace(t *testing.T) {
	sensors := ForPlace("central-mosque")
	require.Len(t, sensors, 12)

	seen := make(map[string]bool)
	for _, s := range sensors {
		assert.False(t, seen[s.UniqueID], "duplicate unique id %s", s.UniqueID)
		seen[s.UniqueID] = true
		assert.Equal(t, []string{"masjidbox:central-mosque"}, s.Device.Identifiers)
		assert.Equal(t, "MasjidBox (central-mosque)", s.Device.Name)
	}

	fajr := find(t, sensors, "masjidbox_central-mosque_adhan_fajr")
	assert.Equal(t, "Adhan Fajr", fajr.Name)
	assert.Equal(t, "timestamp", fajr.DeviceClass)

	iqamah := find(t, sensors, "masjidbox_central-mosque_iqamah_maghrib")
	assert.Equal(t, "Iqamah Maghrib", iqamah.Name)

	hijri := find(t, sensors, "masjidbox_central-mosque_hijri_date")
	assert.Equal(t, "Hijri Date", hijri.Name)
	assert.Equal(t, "mdi:calendar-star", hijri.Icon)
	assert.Empty(t, hijri.DeviceClass)

	assert.True(t, seen["masjidbox_central-mosque_adhan_sunrise"])
	assert.False(t, seen["masjidbox_central-mosque_iqamah_sunrise"])

	// Identity is deterministic across calls.
	assert.Equal(t, sensors, ForPlace("central-mosque"))
}

func TestRead_ScenarioC(t *testing.T) {
	data := decode(t, scenarioC)
	sensors := ForPlace("central-mosque")

	r, ok := find(t, sensors, "masjidbox_central-mosque_adhan_fajr").Read(data)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 3, 1, 5, 12, 0, 0, time.UTC).Equal(r.Time))
	assert.Equal(t, "2024-03-01T05:12:00Z", r.State(KindAdhan))

	r, ok = find(t, sensors, "masjidbox_central-mosque_iqamah_fajr").Read(data)
	require.True(t, ok)
	assert.True(t, time.Date(2024, 3, 1, 5, 22, 0, 0, time.UTC).Equal(r.Time))

	r, ok = find(t, sensors, "masjidbox_central-mosque_hijri_date").Read(data)
	require.True(t, ok)
	assert.Equal(t, "20 Ramadan 1445", r.Text)
	assert.Equal(t, "20 Ramadan 1445", r.State(KindHijriDate))

	// Fields missing from the entry degrade only their own sensor.
	_, ok = find(t, sensors, "masjidbox_central-mosque_adhan_dhuhr").Read(data)
	assert.False(t, ok)
	_, ok = find(t, sensors, "masjidbox_central-mosque_iqamah_isha").Read(data)
	assert.False(t, ok)
}

func TestRead_ListMatchesBareString(t *testing.T) {
	fajr := find(t, ForPlace("x"), "masjidbox_x_adhan_fajr")

	bare, ok := fajr.Read(decode(t, `{"timetable":[{"fajr":"2024-03-01T05:12:00+00:00"}]}`))
	require.True(t, ok)
	list, ok := fajr.Read(decode(t, `{"timetable":[{"fajr":["2024-03-01T05:12:00+00:00"]}]}`))
	require.True(t, ok)
	assert.True(t, bare.Time.Equal(list.Time))

	// Only the first alternate counts.
	multi, ok := fajr.Read(decode(t, `{"timetable":[{"fajr":["2024-03-01T05:12:00Z","2024-03-01T06:00:00Z"]}]}`))
	require.True(t, ok)
	assert.True(t, bare.Time.Equal(multi.Time))
}

func TestRead_ShapeMismatches(t *testing.T) {
	fajr := find(t, ForPlace("x"), "masjidbox_x_adhan_fajr")
	iqamah := find(t, ForPlace("x"), "masjidbox_x_iqamah_fajr")
	hijri := find(t, ForPlace("x"), "masjidbox_x_hijri_date")

	testCases := []struct {
		name   string
		sensor Sensor
		raw    string
	}{
		{name: "no data", sensor: fajr, raw: `{}`},
		{name: "empty list", sensor: fajr, raw: `{"timetable":[{"fajr":[]}]}`},
		{name: "number", sensor: fajr, raw: `{"timetable":[{"fajr":5}]}`},
		{name: "invalid date", sensor: fajr, raw: `{"timetable":[{"fajr":"Invalid date"}]}`},
		{name: "list of numbers", sensor: fajr, raw: `{"timetable":[{"fajr":[1]}]}`},
		{name: "iqamah missing", sensor: iqamah, raw: `{"timetable":[{"fajr":"2024-03-01T05:12:00Z"}]}`},
		{name: "iqamah not a map", sensor: iqamah, raw: `{"timetable":[{"iqamah":"x"}]}`},
		{name: "iqamah null", sensor: iqamah, raw: `{"timetable":[{"iqamah":null}]}`},
		{name: "hijri missing", sensor: hijri, raw: `{"timetable":[{}]}`},
		{name: "hijri formatted number", sensor: hijri, raw: `{"timetable":[{"hijri":{"formatted":1445}}]}`},
		{name: "hijri not a map", sensor: hijri, raw: `{"timetable":[{"hijri":"20 Ramadan"}]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, ok := tc.sensor.Read(decode(t, tc.raw))
			assert.False(t, ok)
			assert.Equal(t, Reading{}, r)
		})
	}

	t.Run("nil data", func(t *testing.T) {
		_, ok := fajr.Read(nil)
		assert.False(t, ok)
	})
}
