// Package feedtest provides a small GTFS feed for tests.
//
// The sample has one rail route (R1) serving stations 100 and 200, two bus routes, and a
// handful of deliberately broken trips:
//
//	T1, T2  rail, identical shape           -> story 1
//	T3      bus 300 -> 500 -> 400           -> story 2
//	T4      bus 400 -> 300                  -> story 3
//	T5      stop_sequence 1,3               -> rejected (bad sequence)
//	T6      unknown service_id              -> story 4
//	T7      no stop_times rows              -> rejected (missing stop times)
//	T8      unknown route_id                -> story 5
package feedtest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"testing/fstest"
)

const Agency = `agency_id,agency_name,agency_url,agency_timezone
1,Israel Railways,http://rail.example.com,Asia/Jerusalem
2,Dan,http://dan.example.com,Asia/Jerusalem
`

const Routes = `route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_color
R1,1,,Station A - Station B,,2,
B10,2,10,Station Loop,,3,
B20,2,20,Crosstown,,3,
`

const Calendar = `service_id,sunday,monday,tuesday,wednesday,thursday,friday,saturday,start_date,end_date
WK,1,1,1,1,1,0,0,20160501,20160630
SAT,0,0,0,0,0,0,1,20160501,20160630
`

const Stops = `stop_id,stop_code,stop_name,stop_desc,stop_lat,stop_lon,location_type,parent_station,zone_id
100,100,Station A,,32.0000,34.8000,,,
200,200,Station B,,32.1000,34.8000,,,
300,300,Bus near A,,32.0010,34.8000,,,
400,400,Bus near B,,32.0990,34.8000,,,
500,500,Far stop,,32.0500,34.8500,,,
`

const Trips = `route_id,service_id,trip_id,direction_id,shape_id
R1,WK,T1,0,S1
R1,WK,T2,0,S1
B10,WK,T3,0,
B10,WK,T4,1,
B20,WK,T5,0,
B20,NOPE,T6,0,
B20,WK,T7,0,
XX,WK,T8,0,
`

const StopTimes = `trip_id,arrival_time,departure_time,stop_id,stop_sequence,pickup_type,drop_off_type
T1,08:10:00,08:11:00,200,2,0,0
T1,08:00:00,08:00:00,100,1,0,0
T2,09:00:00,09:00:00,100,1,0,0
T2,09:10:00,09:11:00,200,2,0,0
T3,07:55:00,07:55:00,300,1,0,0
T3,08:05:00,08:05:00,500,2,0,0
T3,08:15:00,08:15:00,400,3,0,0
T4,08:20:00,08:20:00,400,1,0,0
T4,08:40:00,08:40:00,300,2,0,0
T5,08:00:00,08:00:00,300,1,0,0
T5,08:30:00,08:30:00,400,3,0,0
T6,10:00:00,10:00:00,300,1,0,0
T6,10:20:00,10:20:00,400,2,0,0
T8,11:00:00,11:00:00,500,1,0,0
T8,11:05:00,11:05:00,300,2,0,0
`

// Files maps file names to contents of the sample feed.
func Files() map[string]string {
	return map[string]string{
		"agency.txt":     Agency,
		"routes.txt":     Routes,
		"calendar.txt":   Calendar,
		"stops.txt":      Stops,
		"trips.txt":      Trips,
		"stop_times.txt": StopTimes,
	}
}

// FS returns the sample feed, with overrides replacing (or, when empty, removing) files.
func FS(overrides map[string]string) fstest.MapFS {
	files := Files()
	for name, content := range overrides {
		if content == "" {
			delete(files, name)
			continue
		}
		files[name] = content
	}
	m := fstest.MapFS{}
	for name, content := range files {
		m[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return m
}

// WriteDir writes the sample feed into a fresh directory and returns its path.
func WriteDir(t *testing.T) string {
	t.Helper()
	return WriteDirWith(t, nil)
}

// WriteDirWith is WriteDir with overrides applied as in FS.
func WriteDirWith(t *testing.T, overrides map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, f := range FS(overrides) {
		if err := os.WriteFile(filepath.Join(dir, name), f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// WriteZip writes the sample feed as a zip archive and returns its path.
func WriteZip(t *testing.T) string {
	t.Helper()
	files := Files()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "sample-feed.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// Replace returns content with every old replaced by new; handy for one-line fixture edits.
func Replace(content, old, new string) string {
	return strings.ReplaceAll(content, old, new)
}
