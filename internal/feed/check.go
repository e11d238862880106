package feed

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/jamespfennell/gtfs"
)

const maxReportedWarnings = 20

// CheckReport summarises a full parse of the feed by an independent GTFS parser.
type CheckReport struct {
	Agencies  int
	Routes    int
	Stops     int
	Services  int
	Trips     int
	StopTimes int
	Shapes    int

	// Trips with an unknown route or service are not handed to the parser, and neither are
	// the stop_times rows of those trips or of trips missing from trips.txt.
	UnknownRoutes    int
	UnknownServices  int
	SkippedStopTimes int

	WarningCount int
	Warnings     []string // first few warnings, formatted
}

// Check parses the whole feed with github.com/jamespfennell/gtfs and reports entity counts
// and parser warnings. It is a sanity pass run before the reports, not a validator.
func Check(ctx context.Context, feedPath string, logger *slog.Logger) (*CheckReport, error) {
	f, err := Open(feedPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := f.LoadSchedule(ctx, logger)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(s.Trips))
	for _, t := range s.Trips {
		if t.Route != nil && t.Service != nil {
			keep[t.ID] = struct{}{}
		}
	}

	content, skipped, err := f.archive(keep)
	if err != nil {
		return nil, err
	}

	static, err := parseStatic(content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", feedPath, err)
	}

	rep := &CheckReport{
		Agencies:         len(static.Agencies),
		Routes:           len(static.Routes),
		Stops:            len(static.Stops),
		Services:         len(static.Services),
		Trips:            len(static.Trips),
		Shapes:           len(static.Shapes),
		UnknownRoutes:    s.UnknownRoutes,
		UnknownServices:  s.UnknownServices,
		SkippedStopTimes: skipped,
		WarningCount:     len(static.Warnings),
	}
	for _, t := range static.Trips {
		rep.StopTimes += len(t.StopTimes)
	}
	for i, w := range static.Warnings {
		if i == maxReportedWarnings {
			break
		}
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%+v", w))
	}
	return rep, nil
}

// parseStatic turns a parser panic into an error.
func parseStatic(content []byte) (static *gtfs.Static, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("gtfs parser: %v", p)
		}
	}()
	return gtfs.ParseStatic(content, gtfs.ParseStaticOptions{})
}

// archive zips the feed's tables in memory. stop_times.txt keeps only the rows of trips in
// keep; the number of dropped rows is returned.
func (f *Feed) archive(keep map[string]struct{}) ([]byte, int, error) {
	entries, err := fs.ReadDir(f.fsys, ".")
	if err != nil {
		return nil, 0, fmt.Errorf("feed %s: %w", f.Name, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	skipped := 0
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".txt" {
			continue
		}
		src, err := f.open(e.Name())
		if err != nil {
			return nil, 0, err
		}
		dst, err := zw.Create(e.Name())
		if err != nil {
			src.Close()
			return nil, 0, err
		}
		if e.Name() == StopTimesFile {
			skipped, err = filterStopTimes(dst, src, keep)
		} else {
			_, err = io.Copy(dst, src)
		}
		src.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), skipped, nil
}

func filterStopTimes(w io.Writer, r io.Reader, keep map[string]struct{}) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cw := csv.NewWriter(w)

	header, err := cr.Read()
	if err != nil {
		return 0, err
	}
	tripCol := -1
	for i, name := range header {
		if strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) == "trip_id" {
			tripCol = i
		}
	}
	if tripCol < 0 {
		return 0, &MissingColumnsError{File: StopTimesFile, Columns: []string{"trip_id"}}
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return skipped, err
		}
		if tripCol >= len(rec) {
			skipped++
			continue
		}
		if _, ok := keep[strings.TrimSpace(rec[tripCol])]; !ok {
			skipped++
			continue
		}
		if err := cw.Write(rec); err != nil {
			return skipped, err
		}
	}
	cw.Flush()
	return skipped, cw.Error()
}
