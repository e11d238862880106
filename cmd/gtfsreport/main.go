package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gtfsreport/internal/config"
	"gtfsreport/internal/db"
	"gtfsreport/internal/logging"
	"gtfsreport/internal/metrics"
	"gtfsreport/internal/pipeline"
	"gtfsreport/internal/publisher"
)

var (
	flagConfig  = flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	flagFeed    = flag.String("feed", "", "path to the GTFS zip or directory (overrides FEED_PATH)")
	flagOut     = flag.String("out", "", "directory for the derived tables (overrides OUTPUT_DIR)")
	flagVerbose = flag.Bool("verbose", false, "show DEBUG logging")
)

const usage = `usage: gtfsreport [flags] <command>

commands:
  stories               build route stories; write route_story_stops.txt and full_trips.txt
  stops                 resolve nearest train stations; write full_stops.txt
  all                   stories and stops in one pass
  stats                 hourly train arrivals and bus station visits
  connections           train to bus connections on CONNECTIONS_DAY
  compare <a> <b>       stop sequence distance between two routes
  check                 parse the feed with an independent parser and print counts
  runs [n]              list the last n saved runs (default 20)

flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.Options{
		File:      *flagConfig,
		FeedPath:  *flagFeed,
		OutputDir: *flagOut,
		NoFeed:    flag.Arg(0) == "runs",
	})
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *flagVerbose {
		cfg.LogLevel = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var store *db.Store
	if cfg.DatabaseURL != "" {
		dsn, err := db.WithDBName(cfg.DatabaseURL, cfg.DBName)
		if err != nil {
			log.Fatalf("invalid DSN: %v", err)
		}
		sqlDB, err := db.Open(dsn)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		driver, _ := db.Driver(dsn)
		store = db.NewStore(sqlDB, driver)
		if err := store.Init(ctx); err != nil {
			log.Fatalf("db init error: %v", err)
		}
	}

	var pub pipeline.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSPrefix, logger, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer np.Close()
		pub = np
	}

	runner := pipeline.NewRunner(cfg, logger, mcol, store, pub, os.Stdout)
	err = run(ctx, runner, flag.Args())
	if ferr := runner.Flush(); ferr != nil {
		logging.LogError(logger, "flush metrics", ferr)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, r *pipeline.Runner, args []string) error {
	var err error
	switch cmd := args[0]; cmd {
	case "stories":
		_, err = r.Stories(ctx)
	case "stops":
		_, err = r.Stops(ctx)
	case "all":
		_, err = r.All(ctx)
	case "stats":
		_, err = r.Stats(ctx)
	case "connections":
		_, err = r.Connections(ctx)
	case "compare":
		if len(args) != 3 {
			return fmt.Errorf("compare needs two route ids")
		}
		_, err = r.Compare(ctx, args[1], args[2])
	case "check":
		_, err = r.Check(ctx)
	case "runs":
		limit := 20
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil || limit <= 0 {
				return fmt.Errorf("invalid run count %q", args[1])
			}
		}
		err = r.Runs(ctx, limit)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return err
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
