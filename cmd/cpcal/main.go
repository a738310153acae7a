package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cpcal/internal/app"
	"cpcal/internal/calendar"
	"cpcal/internal/config"
	"cpcal/internal/feed"
	appLog "cpcal/internal/log"
	"cpcal/internal/metrics"
	"cpcal/internal/notify"
	"cpcal/internal/scheduler"
	"cpcal/internal/solution"
	"cpcal/internal/store"
	"cpcal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	config.ApplyEnv(conf)

	// CLI flags win over file and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("cpcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"metrics_listen", conf.MetricsListen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"feed_kind", conf.Feed.Kind,
		"refresh", conf.RefreshCron,
		"reminder_interval", conf.ReminderInterval.String(),
		"store", conf.Store.Driver,
		"solution_channels", len(conf.Solutions.Channels),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags.once); err != nil {
		appLog.Error("cpcal failed", err)
		os.Exit(1)
	}
	appLog.Info("cpcal exiting")
}

const version = "1.0.0"

func run(ctx context.Context, conf *config.Config, once bool) error {
	feedClient, err := feed.New(conf.Feed)
	if err != nil {
		return err
	}

	prefs, err := store.Open(ctx, conf.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := prefs.Close(); err != nil {
			appLog.Error("failed to close preference store", err)
		}
	}()

	notifiers, err := notify.Build(conf.Notify)
	if err != nil {
		return err
	}
	defer func() {
		if err := notifiers.Close(); err != nil {
			appLog.Error("failed to close notifiers", err)
		}
	}()

	svc := app.New(app.Options{
		Fetcher:    feedClient,
		Prefs:      prefs,
		Finder:     solution.NewFinder(conf.Solutions),
		Dispatcher: notify.NewDispatcher(notifiers.Notifier, prefs, conf.RemindBookmarks, nil),
		Location:   conf.Location(),
		WeekStart:  calendar.ParseWeekStart(conf.WeekStart),
	})

	if once {
		return runOnce(ctx, svc)
	}

	// Initial load; the API answers 503 until one refresh succeeds.
	if err := svc.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	sched := scheduler.New(conf.Location(), conf.RefreshCron, conf.ReminderInterval, svc, svc)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if conf.MetricsListen != "-" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.NewServer(conf.MetricsListen).Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.NewServer(ctx, conf, svc).Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLog.Info("shutdown requested")
	case err := <-errCh:
		return err
	}

	wg.Wait()
	return nil
}

type onceSummary struct {
	app.Status
	Platforms map[string]int `json:"platforms"`
}

// runOnce refreshes a single time and prints a JSON summary to stdout.
func runOnce(ctx context.Context, svc *app.Service) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := svc.Refresh(ctx); err != nil {
		return err
	}
	snap, err := svc.Snapshot()
	if err != nil {
		return err
	}

	summary := onceSummary{Status: svc.Status(), Platforms: map[string]int{}}
	for _, c := range snap.Contests {
		summary.Platforms[c.Platform]++
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Fetch the feed once, print a summary and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
