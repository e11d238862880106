package gtfs

import "time"

const (
	RouteTypeRail = 2
	RouteTypeBus  = 3
)

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      int
	Color     string
}

// Service is one calendar.txt row: a weekly pattern valid between two dates (inclusive).
type Service struct {
	ID        string
	Days      [7]bool // indexed by time.Weekday
	StartDate time.Time
	EndDate   time.Time
}

func (s *Service) Runs(day time.Weekday) bool { return s.Days[day] }

// Weekdays returns the days the service runs, Sunday first.
func (s *Service) Weekdays() []time.Weekday {
	var days []time.Weekday
	for d, on := range s.Days {
		if on {
			days = append(days, time.Weekday(d))
		}
	}
	return days
}

// Overlaps reports whether the validity range intersects [start, end].
func (s *Service) Overlaps(start, end time.Time) bool {
	return !s.EndDate.Before(start) && !s.StartDate.After(end)
}

type Trip struct {
	RouteID     string
	ServiceID   string
	ID          string
	DirectionID string
	ShapeID     string

	Route   *Route   // nil when route_id is unknown
	Service *Service // nil when service_id is unknown
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	LocationType  string
	ParentStation string
	ZoneID        string
}

type StopTimeRecord struct {
	TripID        string
	StopSequence  int
	ArrivalTime   int // seconds since midnight (can exceed 24h)
	DepartureTime int // seconds since midnight (can exceed 24h)
	StopID        string
	PickupType    string
	DropOffType   string
	Timed         bool // false when the row had neither arrival nor departure time

	// Malformed names the column whose value could not be parsed. The row's trip gets no story.
	Malformed string
}

// RouteStoryStop is one stop visit with times relative to the first arrival of the trip.
// It is comparable; two stops are the same when every field matches.
type RouteStoryStop struct {
	ArrivalOffset   int
	DepartureOffset int
	StopID          string
	PickupType      string
	DropOffType     string
}

type RouteStory struct {
	ID    int
	Stops []RouteStoryStop
}

// StopIDs returns the stop ids of the story in visiting order.
func (rs RouteStory) StopIDs() []string {
	ids := make([]string, len(rs.Stops))
	for i, s := range rs.Stops {
		ids[i] = s.StopID
	}
	return ids
}

// StopTimesByTrip groups stop_times.txt rows by trip_id, keeping file order within a trip.
type StopTimesByTrip map[string][]StopTimeRecord

func (m StopTimesByTrip) Add(r StopTimeRecord) {
	m[r.TripID] = append(m[r.TripID], r)
}

// Rows returns the total number of grouped rows.
func (m StopTimesByTrip) Rows() int {
	n := 0
	for _, rows := range m {
		n += len(rows)
	}
	return n
}
