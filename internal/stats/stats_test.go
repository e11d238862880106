package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsreport/internal/dataset/datasettest"
	"gtfsreport/internal/gtfs"
)

var (
	june1  = time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
	june14 = time.Date(2016, 6, 14, 0, 0, 0, 0, time.UTC)
	sunThu = []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday}
)

func TestTrainStationVisits(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	c := TrainStationVisits(ds, june1, june14, gtfs.RouteTypeRail)
	require.Len(t, c, 2)

	// T1 at 08:00 and T2 at 09:00 call at both stations, Sunday to Thursday
	for _, st := range []string{"100", "200"} {
		assert.Equal(t, 1, c[st][Slot{Day: time.Sunday, Hour: 8}], st)
		assert.Equal(t, 1, c[st][Slot{Day: time.Thursday, Hour: 9}], st)
		assert.Zero(t, c[st][Slot{Day: time.Saturday, Hour: 8}], st)
	}
}

func TestTrainStationVisitsOutOfRange(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	from := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	c := TrainStationVisits(ds, from, from.AddDate(0, 1, 0), gtfs.RouteTypeRail)
	assert.Empty(t, c)
}

func TestBusStationVisits(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	c := BusStationVisits(ds, june1, june14, gtfs.RouteTypeBus, 500)

	// T3 calls near station 100 at 07:55 and near 200 at 08:15; T4 near 200 at 08:20 and
	// near 100 at 08:40. The far stop 500 is outside the radius.
	assert.Equal(t, 1, c["100"][Slot{Day: time.Monday, Hour: 7}])
	assert.Equal(t, 1, c["100"][Slot{Day: time.Monday, Hour: 8}])
	assert.Equal(t, 2, c["200"][Slot{Day: time.Monday, Hour: 8}])
	assert.Len(t, c, 2)

	none := BusStationVisits(ds, june1, june14, gtfs.RouteTypeBus, 50)
	assert.Empty(t, none)
}

func TestStationStopsLoop(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	loop := gtfs.RouteStory{ID: 99, Stops: []gtfs.RouteStoryStop{
		{StopID: "300", ArrivalOffset: 0},
		{StopID: "500", ArrivalOffset: 600},
		{StopID: "100", ArrivalOffset: 900}, // the station itself is nearer than 300
		{StopID: "500", ArrivalOffset: 1200},
		{StopID: "100", ArrivalOffset: 1500},
	}}

	got := StationStops(ds, loop, 500)
	require.Len(t, got, 2)
	assert.Equal(t, "100", got[0].StationID)
	assert.Equal(t, 900, got[0].Stop.ArrivalOffset)
	assert.Equal(t, 1500, got[1].Stop.ArrivalOffset)
}

func TestHourlyAverage(t *testing.T) {
	c := Counter{}
	c.add("9", time.Sunday, 8)
	c.add("9", time.Sunday, 8)
	c.add("9", time.Monday, 8)
	c.add("9", time.Saturday, 8) // not selected
	c.add("9", time.Monday, 30)  // past the table
	c.add("10", time.Tuesday, 25)

	rows := HourlyAverage(c, sunThu)
	require.Len(t, rows, 2)

	assert.Equal(t, "9", rows[0].StationID)
	assert.InDelta(t, 0.6, rows[0].Hours[8], 1e-9)
	assert.InDelta(t, 0.6, rows[0].Total(), 1e-9)

	assert.Equal(t, "10", rows[1].StationID)
	assert.InDelta(t, 0.2, rows[1].Hours[25], 1e-9)

	assert.Nil(t, HourlyAverage(c, nil))
}

func TestFileNames(t *testing.T) {
	days := []time.Weekday{time.Thursday, time.Sunday}
	assert.Equal(t, "sun_thu", DaysLabel(days))
	assert.Equal(t, "hourly_train_arrivals_sun_thu_2016-06-01_2016-06-14.txt", TrainArrivalsFile(days, june1, june14))
	assert.Equal(t, "hourly_bus_station_visits_sun_mon_tue_wed_thu_2016-06-01_2016-06-14.txt", BusVisitsFile(sunThu, june1, june14))
}
