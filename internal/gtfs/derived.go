package gtfs

// Derived tables written next to the feed.
const (
	RouteStoryStopsFile = "route_story_stops.txt"
	FullTripsFile       = "full_trips.txt"
	FullStopsFile       = "full_stops.txt"
	TrainVisitsFile     = "train_visits.txt"
)

// FullTrip is the derived part of a full_trips.txt row.
type FullTrip struct {
	TripID    string
	StoryID   int
	StartTime int
}

// StopStation is the derived part of a full_stops.txt row. StationID is empty when the feed
// had no train stations.
type StopStation struct {
	StopID    string
	StationID string
	Distance  int
}
