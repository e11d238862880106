package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDaySeconds parses HH:MM:SS (or H:MM:SS) with hours allowed to exceed 23.
func ParseDaySeconds(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		v[i] = n
	}
	if v[1] > 59 || v[2] > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return v[0]*3600 + v[1]*60 + v[2], nil
}

// FormatDaySeconds is the inverse of ParseDaySeconds; hours are not wrapped at 24.
func FormatDaySeconds(sec int) string {
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, sec/3600, sec%3600/60, sec%60)
}

const dateLayout = "20060102"

// ParseDate accepts the GTFS YYYYMMDD form as well as YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 10 {
		return time.Parse(time.DateOnly, s)
	}
	return time.Parse(dateLayout, s)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full English day names or their three-letter prefixes.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for name, d := range weekdayNames {
			if strings.HasPrefix(name, s) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// CalendarColumns lists the calendar.txt day columns indexed by time.Weekday.
var CalendarColumns = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}
