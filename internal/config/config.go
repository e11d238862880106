package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gtfsreport/internal/gtfs"
	"gtfsreport/internal/logging"
)

type Config struct {
	FeedPath  string `validate:"required"`
	OutputDir string `validate:"required"`

	StationRouteType int     `validate:"gte=0"`
	BusRouteType     int     `validate:"gte=0"`
	StationRadius    float64 `validate:"gt=0"` // meters
	ConnectionRadius float64 `validate:"gt=0"` // meters

	// Zero dates mean the validity range of the whole calendar.
	StatsStart time.Time
	StatsEnd   time.Time
	StatsDays  []time.Weekday `validate:"min=1,dive,gte=0,lte=6"`

	ConnectionsDay        time.Weekday `validate:"gte=0,lte=6"`
	MinTransferSec        int          `validate:"gte=0"`
	ConnectionsPerStation bool

	DatabaseURL string
	DBName      string
	NATSURL     string `validate:"omitempty,url"`
	NATSPrefix  string `validate:"required"`

	MetricsTextfile string
	MetricsAddr     string

	LogLevel  slog.Level
	LogFormat string `validate:"oneof=text json"`
}

// Options carries command line values; non-empty fields win over every other source.
type Options struct {
	File      string
	FeedPath  string
	OutputDir string

	// NoFeed drops the FEED_PATH and OUTPUT_DIR requirement, for commands that only read
	// the run store.
	NoFeed bool
}

// keys lists every setting, as an environment variable name. Config files use the same
// names in lower case.
var keys = []string{
	"FEED_PATH", "OUTPUT_DIR",
	"STATION_ROUTE_TYPE", "BUS_ROUTE_TYPE", "STATION_RADIUS_M", "CONNECTION_RADIUS_M",
	"STATS_START_DATE", "STATS_END_DATE", "STATS_DAYS",
	"CONNECTIONS_DAY", "MIN_TRANSFER_SEC", "CONNECTIONS_PER_STATION",
	"DATABASE_URL", "DB_NAME", "NATS_URL", "NATS_SUBJECT_PREFIX",
	"METRICS_TEXTFILE", "METRICS_ADDR",
	"LOG_LEVEL", "LOG_FORMAT",
}

var fieldKeys = map[string]string{
	"FeedPath":         "FEED_PATH",
	"OutputDir":        "OUTPUT_DIR",
	"StationRouteType": "STATION_ROUTE_TYPE",
	"BusRouteType":     "BUS_ROUTE_TYPE",
	"StationRadius":    "STATION_RADIUS_M",
	"ConnectionRadius": "CONNECTION_RADIUS_M",
	"StatsDays":        "STATS_DAYS",
	"ConnectionsDay":   "CONNECTIONS_DAY",
	"MinTransferSec":   "MIN_TRANSFER_SEC",
	"NATSURL":          "NATS_URL",
	"NATSPrefix":       "NATS_SUBJECT_PREFIX",
	"LogFormat":        "LOG_FORMAT",
}

// Load reads .env (ignored if missing), then an optional YAML file, then the environment.
// Environment variables override the file.
func Load(opts Options) (*Config, error) {
	_ = godotenv.Load()

	file := firstNonEmpty(opts.File, os.Getenv("CONFIG_FILE"))
	src, err := newSource(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.FeedPath = firstNonEmpty(opts.FeedPath, src.get("FEED_PATH"))
	cfg.OutputDir = firstNonEmpty(opts.OutputDir, src.get("OUTPUT_DIR"))
	if cfg.OutputDir == "" && cfg.FeedPath != "" {
		cfg.OutputDir = defaultOutputDir(cfg.FeedPath)
	}

	if cfg.StationRouteType, err = src.int("STATION_ROUTE_TYPE", gtfs.RouteTypeRail); err != nil {
		return nil, err
	}
	if cfg.BusRouteType, err = src.int("BUS_ROUTE_TYPE", gtfs.RouteTypeBus); err != nil {
		return nil, err
	}
	if cfg.StationRadius, err = src.float("STATION_RADIUS_M", 500); err != nil {
		return nil, err
	}
	if cfg.ConnectionRadius, err = src.float("CONNECTION_RADIUS_M", 300); err != nil {
		return nil, err
	}

	if cfg.StatsStart, err = src.date("STATS_START_DATE"); err != nil {
		return nil, err
	}
	if cfg.StatsEnd, err = src.date("STATS_END_DATE"); err != nil {
		return nil, err
	}
	if !cfg.StatsStart.IsZero() && !cfg.StatsEnd.IsZero() && cfg.StatsEnd.Before(cfg.StatsStart) {
		return nil, fmt.Errorf("invalid STATS_END_DATE: %q is before STATS_START_DATE", src.get("STATS_END_DATE"))
	}

	days := getDefault(src.get("STATS_DAYS"), "sun,mon,tue,wed,thu")
	for _, d := range strings.Split(days, ",") {
		wd, err := gtfs.ParseWeekday(d)
		if err != nil {
			return nil, fmt.Errorf("invalid STATS_DAYS: %q", days)
		}
		cfg.StatsDays = append(cfg.StatsDays, wd)
	}

	day := getDefault(src.get("CONNECTIONS_DAY"), "sunday")
	if cfg.ConnectionsDay, err = gtfs.ParseWeekday(day); err != nil {
		return nil, fmt.Errorf("invalid CONNECTIONS_DAY: %q", day)
	}
	if cfg.MinTransferSec, err = src.int("MIN_TRANSFER_SEC", 0); err != nil {
		return nil, err
	}
	cfg.ConnectionsPerStation = parseBool(src.get("CONNECTIONS_PER_STATION"))

	// Database URL: DATABASE_URL / PG_DSN, else built from PG* vars when PGDATABASE is set.
	// Empty disables the database sink.
	cfg.DatabaseURL = firstNonEmpty(src.get("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && os.Getenv("PGDATABASE") != "" {
		cfg.DatabaseURL = dsnFromPGEnv()
	}
	cfg.DBName = src.get("DB_NAME")

	cfg.NATSURL = src.get("NATS_URL")
	cfg.NATSPrefix = getDefault(src.get("NATS_SUBJECT_PREFIX"), "gtfsreport.runs")

	cfg.MetricsTextfile = src.get("METRICS_TEXTFILE")
	cfg.MetricsAddr = src.get("METRICS_ADDR")

	level := getDefault(src.get("LOG_LEVEL"), "info")
	if cfg.LogLevel, err = logging.ParseLevel(level); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", level)
	}
	cfg.LogFormat = strings.ToLower(getDefault(src.get("LOG_FORMAT"), "text"))

	var except []string
	if opts.NoFeed {
		except = []string{"FeedPath", "OutputDir"}
	}
	if err := cfg.validate(except...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct constraints and reports the offending settings by name.
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate(except ...string) error {
	v := validator.New()
	var err error
	if len(except) > 0 {
		err = v.StructExcept(c, except...)
	} else {
		err = v.Struct(c)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if key, ok := fieldKeys[name]; ok {
			name = key
		}
		msgs = append(msgs, fmt.Sprintf("invalid %s: %q (%s)", name, fmt.Sprint(fe.Value()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// StatsRange returns the configured stats dates, filling zero bounds from services.
func (c *Config) StatsRange(services map[string]*gtfs.Service) (start, end time.Time) {
	start, end = c.StatsStart, c.StatsEnd
	for _, s := range services {
		if c.StatsStart.IsZero() && (start.IsZero() || s.StartDate.Before(start)) {
			start = s.StartDate
		}
		if c.StatsEnd.IsZero() && s.EndDate.After(end) {
			end = s.EndDate
		}
	}
	return start, end
}

// source resolves a setting from the environment, then the config file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[strings.ToLower(k)] = true
	}
	var unknown []string
	for k, v := range raw {
		k = strings.ToLower(k)
		if !known[k] {
			unknown = append(unknown, k)
			continue
		}
		s.file[k] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(unknown, ", "))
	}
	return s, nil
}

func (s *source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s.file[strings.ToLower(key)])
}

func (s *source) int(key string, def int) (int, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func (s *source) float(key string, def float64) (float64, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func (s *source) date(key string) (time.Time, error) {
	v := s.get(key)
	if v == "" {
		return time.Time{}, nil
	}
	d, err := gtfs.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func defaultOutputDir(feedPath string) string {
	if st, err := os.Stat(feedPath); err == nil && st.IsDir() {
		return feedPath
	}
	return filepath.Dir(feedPath)
}

func dsnFromPGEnv() string {
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
