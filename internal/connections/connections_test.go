package connections

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsreport/internal/dataset/datasettest"
	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/station"
)

var (
	may1   = time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC)
	may7   = time.Date(2016, 5, 7, 0, 0, 0, 0, time.UTC)
	sunday = Options{Day: time.Sunday, RailType: gtfs.RouteTypeRail, BusType: gtfs.RouteTypeBus}
)

func hms(s string) int {
	sec, err := gtfs.ParseDaySeconds(s)
	if err != nil {
		panic(err)
	}
	return sec
}

func TestVisitsAtStops(t *testing.T) {
	ds, _ := datasettest.Sample(t)

	visits := VisitsAtStops(ds, ds.StopsWithin(300), may1, may7)

	// T1, T2, T3, T4 each call at two selected stops, five service days each; T6 has no
	// service and T8 no route
	assert.Len(t, visits, 4*2*5)

	first := visits[0]
	assert.Equal(t, time.Sunday, first.Day)
	assert.Equal(t, "100", first.StopID)
	assert.Equal(t, "R1", first.Route.ID)
	assert.Equal(t, hms("08:00:00"), first.Arrival)

	for _, v := range visits {
		assert.NotEqual(t, "500", v.StopID)
	}
}

func TestTrainToBus(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	visits := VisitsAtStops(ds, ds.StopsWithin(300), may1, may7)

	got := TrainToBus(ds, visits, sunday)
	require.Len(t, got, 4)

	type row struct {
		station, route string
		arrival        int
		before, after  int // -1 when absent
	}
	flatten := func(v TrainVisit) row {
		r := row{station: v.Train.StopID, route: v.BusRouteID, arrival: v.Train.Arrival, before: -1, after: -1}
		if v.LastBusBefore != nil {
			r.before = v.LastBusBefore.Arrival
		}
		if v.FirstBusAfter != nil {
			r.after = v.FirstBusAfter.Departure
		}
		return r
	}

	assert.Equal(t, []row{
		{"100", "B10", hms("08:00:00"), hms("07:55:00"), hms("08:40:00")},
		{"200", "B10", hms("08:10:00"), -1, hms("08:15:00")},
		{"100", "B10", hms("09:00:00"), hms("08:40:00"), -1},
		{"200", "B10", hms("09:10:00"), hms("08:20:00"), -1},
	}, []row{flatten(got[0]), flatten(got[1]), flatten(got[2]), flatten(got[3])})
}

func TestTrainToBusMinTransfer(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	visits := VisitsAtStops(ds, ds.StopsWithin(300), may1, may7)

	opts := sunday
	opts.MinTransfer = 10 * 60
	got := FilterByStation(TrainToBus(ds, visits, opts), "100")
	require.Len(t, got, 2)

	// 07:55 is only 5 minutes before 08:00
	assert.Nil(t, got[0].LastBusBefore)
	require.NotNil(t, got[0].FirstBusAfter)
	assert.Equal(t, hms("08:40:00"), got[0].FirstBusAfter.Departure)
}

func TestTrainToBusOtherDay(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	visits := VisitsAtStops(ds, ds.StopsWithin(300), may1, may7)

	opts := sunday
	opts.Day = time.Saturday
	assert.Empty(t, TrainToBus(ds, visits, opts))
}

func TestFilterAndStations(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	got := TrainToBus(ds, VisitsAtStops(ds, ds.StopsWithin(300), may1, may7), sunday)

	assert.Equal(t, []string{"100", "200"}, Stations(got))
	assert.Len(t, FilterByStation(got, "200"), 2)
	assert.Empty(t, FilterByStation(got, "300"))
}

func TestNoSelectedStops(t *testing.T) {
	ds, _ := datasettest.Sample(t)
	assert.Empty(t, VisitsAtStops(ds, station.Set{}, may1, may7))
}
