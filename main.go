// Program btcstats polls a Bitcoin Core node over JSON-RPC and reports chain,
// mempool, and network statistics. It has four modes: a one-shot report, a
// continuous monitor with an optional terminal dashboard, block time drift
// analysis over sampled headers, and a view of archived snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"btcstats/archive"
	"btcstats/config"
	"btcstats/drift"
	"btcstats/headercache"
	"btcstats/rpc"
	"btcstats/snapshot"
	"btcstats/stats"
	"btcstats/ui"

	"golang.org/x/term"
)

const Version = "0.4.0"

const (
	defaultConfigPath = "data/btcstats.toml"
	envConfigPath     = "BTCSTATS_CONFIG_PATH"
)

// Cycles between RPC statistics summaries in monitor mode.
const trackerLogEvery = 20

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func isStderrTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "report":
		err = runReport(args)
	case "monitor":
		err = runMonitor(args)
	case "drift":
		err = runDrift(args)
	case "history":
		err = runHistory(args)
	case "version":
		fmt.Printf("btcstats v%s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `btcstats v%s - Bitcoin Core node statistics

Usage:
  btcstats <command> [flags]

Commands:
  report    collect one snapshot and print it
  monitor   poll the node continuously
  drift     analyze inter-block time drift over sampled headers
  history   show archived snapshots
  version   print the version

Run 'btcstats <command> -h' for command flags.
`, Version)
}

// resolveConfigPath applies flag > environment > default precedence.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}

func applyFormatFlag(cfg *config.Config, format string) error {
	if format == "" {
		return nil
	}
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case config.FormatTable, config.FormatJSON, config.FormatYAML:
		cfg.Monitor.Format = format
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// buildClient derives credentials from config. The returned client holds only
// the basic-auth header; the plaintext credentials are zeroed during
// construction.
func buildClient(cfg *config.Config, tracker *stats.Tracker) (*rpc.Client, error) {
	var creds *rpc.Credentials
	switch {
	case cfg.Node.Username != "":
		creds = rpc.NewCredentials(cfg.Node.Username, cfg.Node.Password)
	case cfg.Node.CookieFile != "":
		var err error
		creds, err = rpc.CredentialsFromCookie(cfg.Node.CookieFile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, config.ErrMissingCredentials
	}
	return rpc.NewClient(rpc.Config{
		Host:        cfg.Node.Host,
		UseTLS:      cfg.Node.UseTLS,
		Timeout:     time.Duration(cfg.Node.TimeoutSeconds) * time.Second,
		Credentials: creds,
		Tracker:     tracker,
	})
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default "+defaultConfigPath+")")
	format := fs.String("format", "", "output format: table, json, or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		return err
	}
	if err := applyFormatFlag(cfg, *format); err != nil {
		return err
	}

	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	if err != nil {
		log.Printf("Warning: file logging unavailable: %v", err)
	}
	defer fanout.Close()
	log.SetFlags(0)
	log.SetOutput(fanout)

	tracker := stats.NewTracker()
	client, err := buildClient(cfg, tracker)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	cur, err := snapshot.NewCollector(client).Collect(ctx)
	if err != nil {
		return err
	}
	if err := ui.WriteSnapshot(os.Stdout, cur, cfg.Monitor.Format); err != nil {
		return err
	}

	if !cfg.Archive.Enabled {
		return nil
	}
	writer, err := archive.NewWriter(archiveConfig(cfg))
	if err != nil {
		log.Printf("Warning: archive unavailable: %v", err)
		return nil
	}
	defer writer.Stop()
	writer.Start()

	// Rates against the most recent archived snapshot, when one exists.
	prev, err := writer.History(1)
	if err != nil {
		log.Printf("Warning: archive read failed: %v", err)
	} else if len(prev) == 1 {
		if err := ui.WriteReport(os.Stdout, snapshot.Report(&prev[0], cur), cfg.Monitor.Format); err != nil {
			return err
		}
	}
	writer.Enqueue(cur)
	return nil
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default "+defaultConfigPath+")")
	format := fs.String("format", "", "output format: table, json, or yaml")
	interval := fs.Int("interval", 0, "seconds between polls (default from config)")
	dashboard := fs.Bool("dashboard", false, "render the terminal dashboard")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		return err
	}
	if err := applyFormatFlag(cfg, *format); err != nil {
		return err
	}
	if *interval > 0 {
		cfg.Monitor.IntervalSeconds = *interval
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	if err != nil {
		log.Printf("Warning: file logging unavailable: %v", err)
	}
	defer fanout.Close()
	log.SetFlags(0)
	log.SetOutput(fanout)

	tracker := stats.NewTracker()
	client, err := buildClient(cfg, tracker)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var writer *archive.Writer
	if cfg.Archive.Enabled {
		writer, err = archive.NewWriter(archiveConfig(cfg))
		if err != nil {
			log.Printf("Warning: archive unavailable: %v", err)
		} else {
			writer.Start()
			defer writer.Stop()
			log.Printf("Archiving snapshots to %s (retention %dd)", cfg.Archive.DBPath, cfg.Archive.RetentionDays)
		}
	}

	useDashboard := (*dashboard || cfg.Monitor.Dashboard) && cfg.Monitor.Format == config.FormatTable
	if useDashboard && !isStdoutTTY() {
		log.Printf("Dashboard disabled (requires an interactive console)")
		useDashboard = false
	}
	dash := ui.NewDashboard(useDashboard)
	if dash != nil {
		dash.WaitReady()
		defer dash.Stop()
		// The system pane stamps its own timestamps.
		fanout.SetConsoleSink(dash.SystemWriter(), false)
	} else {
		cfg.Print()
	}

	log.Printf("Monitoring %s every %ds. Press Ctrl+C to stop.", client.Host(), cfg.Monitor.IntervalSeconds)

	ticker := time.NewTicker(time.Duration(cfg.Monitor.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	collector := snapshot.NewCollector(client)
	var prev *snapshot.Snapshot
	cycles := 0
	for {
		cur, err := collector.Collect(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			// Shutdown raced the in-flight cycle.
		case err != nil:
			if kind, ok := rpc.ErrKind(err); ok {
				log.Printf("Monitor: collect failed (%s): %v", kind, err)
			} else {
				log.Printf("Monitor: collect failed: %v", err)
			}
		default:
			if dash != nil {
				dash.SetSnapshot(cur)
				if prev != nil {
					dash.SetMetrics(snapshot.Report(prev, cur))
				}
			} else {
				if err := ui.WriteSnapshot(os.Stdout, cur, cfg.Monitor.Format); err != nil {
					return err
				}
				if prev != nil {
					if err := ui.WriteReport(os.Stdout, snapshot.Report(prev, cur), cfg.Monitor.Format); err != nil {
						return err
					}
				}
			}
			fanout.WriteFileOnlyLine(fmt.Sprintf("cycle height=%d headers=%d mempool=%d peers=%d",
				cur.Height, cur.Headers, cur.MempoolTxCount, cur.PeerCount), time.Now())
			writer.Enqueue(cur)
			prev = cur
		}

		cycles++
		if cycles%trackerLogEvery == 0 {
			for _, line := range tracker.SnapshotLines() {
				log.Print(line)
			}
			if writer != nil {
				if dropped := writer.DropCount(); dropped > 0 {
					log.Printf("Archive: %d snapshots dropped under backpressure", dropped)
				}
			}
		}

		select {
		case <-ctx.Done():
			log.Printf("Monitor stopped after %d cycles (%s)", cycles, tracker.GetUptime().Round(time.Second))
			return nil
		case <-ticker.C:
		}
	}
}

func runDrift(args []string) error {
	fs := flag.NewFlagSet("drift", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default "+defaultConfigPath+")")
	driftTime := fs.Int64("drift-time", 7200, "report blocks at least this many seconds apart")
	window := fs.Int64("window", 2, "blocks per contiguous sampled run")
	zScore := fs.Float64("z-score", 1.96, "confidence z-score for sample sizing")
	marginError := fs.Float64("margin-error", 0.05, "margin of error for sample sizing")
	stdDeviation := fs.Float64("std-deviation", 0.5, "population deviation estimate for sample sizing")
	fullPopulation := fs.Bool("full-population", false, "scan every block instead of sampling")
	workers := fs.Int("workers", 0, "concurrent header fetches (default from config)")
	seed := fs.Int64("seed", 0, "sampling seed, 0 means time-based")
	noCache := fs.Bool("no-cache", false, "bypass the on-disk header cache")
	if err := fs.Parse(args); err != nil {
		return err
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		return err
	}

	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	if err != nil {
		log.Printf("Warning: file logging unavailable: %v", err)
	}
	defer fanout.Close()
	log.SetFlags(0)
	log.SetOutput(fanout)

	// Flags override config, which overrides the built-in defaults.
	plan := drift.Plan{
		ZScore:         cfg.Sample.ZScore,
		MarginError:    cfg.Sample.MarginError,
		StdDeviation:   cfg.Sample.StdDeviation,
		FullPopulation: cfg.Sample.FullPopulation,
	}
	if set["z-score"] {
		plan.ZScore = *zScore
	}
	if set["margin-error"] {
		plan.MarginError = *marginError
	}
	if set["std-deviation"] {
		plan.StdDeviation = *stdDeviation
	}
	if set["full-population"] {
		plan.FullPopulation = *fullPopulation
	}
	workerCount := cfg.Sample.Workers
	if *workers > 0 {
		workerCount = *workers
	}

	tracker := stats.NewTracker()
	client, err := buildClient(cfg, tracker)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	count, err := client.GetBlockCount(ctx)
	if err != nil {
		return err
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	heights := plan.Heights(count, *window, rand.New(rand.NewSource(rngSeed)))
	if len(heights) == 0 {
		return fmt.Errorf("chain too short for window %d (height %d)", *window, count)
	}
	if plan.FullPopulation {
		log.Printf("Scanning all %d blocks", count)
	} else {
		log.Printf("Sampling %d of %d blocks (%d runs of %d)", len(heights), count, int64(len(heights)) / *window, *window)
	}

	var cache drift.HeaderCache
	if cfg.Cache.Enabled && !*noCache {
		store, err := headercache.Open(cfg.Cache.Path, headercache.Options{})
		if err != nil {
			log.Printf("Warning: header cache unavailable: %v", err)
		} else {
			defer store.Close()
			cache = store
			if cached, err := store.Count(); err == nil {
				log.Printf("Header cache: %d entries at %s", cached, cfg.Cache.Path)
			}
		}
	}

	progress := ui.NewProgress(os.Stderr, len(heights), "Fetching headers", isStderrTTY())
	fetcher := &drift.Fetcher{
		Source:   client,
		Cache:    cache,
		Workers:  workerCount,
		Progress: func(done, total int) { progress.Update(done) },
	}
	headers, err := fetcher.Fetch(ctx, heights)
	if err != nil {
		progress.Finish("")
		return err
	}
	progress.Finish(fmt.Sprintf("Fetched %d headers", len(headers)))

	summary := drift.Analyze(headers, *driftTime, *window, plan.FullPopulation)
	if err := ui.WriteDriftSummary(os.Stdout, summary, *driftTime); err != nil {
		return err
	}
	log.Printf("Examined %d block pairs, %d at or above the %ds threshold", summary.Pairs, summary.Occurrences, *driftTime)
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "config file (default "+defaultConfigPath+")")
	format := fs.String("format", "", "output format: table, json, or yaml")
	limit := fs.Int("limit", 20, "maximum snapshots to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		return err
	}
	if err := applyFormatFlag(cfg, *format); err != nil {
		return err
	}

	writer, err := archive.NewWriter(archiveConfig(cfg))
	if err != nil {
		return err
	}
	defer writer.Stop()

	snaps, err := writer.History(*limit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No archived snapshots. Run 'btcstats monitor' with archiving enabled first.")
		return nil
	}
	return ui.WriteHistory(os.Stdout, snaps, cfg.Monitor.Format)
}

func archiveConfig(cfg *config.Config) archive.Config {
	return archive.Config{
		DBPath:          cfg.Archive.DBPath,
		QueueSize:       cfg.Archive.QueueSize,
		BatchSize:       cfg.Archive.BatchSize,
		BatchIntervalMS: cfg.Archive.BatchIntervalMS,
		RetentionDays:   cfg.Archive.RetentionDays,
		CleanupMinutes:  cfg.Archive.CleanupMinutes,
	}
}
