package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/pricewatch/scan-core/internal/breaker"
	"github.com/pricewatch/scan-core/internal/extract/rendered"
	"github.com/pricewatch/scan-core/internal/extract/static"
	"github.com/pricewatch/scan-core/internal/filestore"
	"github.com/pricewatch/scan-core/internal/monitor"
	"github.com/pricewatch/scan-core/internal/pkg/version"
	"github.com/pricewatch/scan-core/internal/shopconfig"
	applog "github.com/pricewatch/scan-core/pkg/log"
)

const appName = "scan-core"

const (
	// LogMaxAge mirrors the teacher's retention policy for scan-core's own
	// log files.
	LogMaxAge = 30
)

const banner = `
  ____                       ____
 / ___|  ___ __ _ _ __      / ___|___  _ __ ___
 \___ \ / __/ _` + "`" + ` | '_ \    | |   / _ \| '__/ _ \
  ___) | (_| (_| | | | |   | |__| (_) | | |  __/
 |____/ \___\__,_|_| |_|    \____\___/|_|  \___|
                                     one cycle, one process
--------------------------------------------------------------------------------
`

func main() {
	shopConfigDir := flag.String("shop-config-dir", "./config/shops", "directory containing one JSON file per shop")
	catalogPath := flag.String("catalog", "./data/catalog.json", "path to the JSON catalog document (products/sets/types/watchers/targets)")
	statePath := flag.String("state", "./data/notification-state.json", "path to the notification state file")
	resultsPath := flag.String("results", "./data/results.json", "path to the hourly scan result file")
	notificationsPath := flag.String("notifications", "./data/notifications.json", "path to the notification outbox file")
	browserControlURL := flag.String("browser-control-url", "", "remote Chromium control URL; empty launches a local instance")
	breakerThreshold := flag.Int("breaker-threshold", breaker.DefaultThreshold, "consecutive shop failures before the circuit trips")
	logDir := flag.String("log-dir", "./log", "log output directory")
	verbose := flag.Bool("verbose", false, "enable debug-level logging")
	showVersion := flag.Bool("version", false, "print build version info and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	appLogCloser, err := applog.Setup(applog.Options{
		Name:              appName,
		Dir:               *logDir,
		MaxAge:            LogMaxAge,
		EnableCriticalLog: true,
		EnableVerboseLog:  true,
		EnableConsoleLog:  true,
		ReportCaller:      true,
		CallerPathPrefix:  "github.com/pricewatch/scan-core",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] log setup failed, aborting cycle (cause: %v)\n", err)
		os.Exit(1)
	}
	defer appLogCloser.Close()

	if *verbose {
		applog.SetLevel(applog.DebugLevel)
	}

	fmt.Print(banner)
	applog.WithComponentAndFields("main", log.Fields(version.Get().ToMap())).Info("starting cycle")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigC
		applog.WithComponent("main").Warn("interrupt received, cancelling in-flight cycle")
		cancel()
	}()

	shopLoader := shopconfig.NewLoader(*shopConfigDir)

	catalogDoc, err := filestore.LoadCatalogDocument(*catalogPath)
	if err != nil {
		applog.WithComponentAndFields("main", log.Fields{"error": err}).Error("catalog document load failed")
		os.Exit(1)
	}
	catalog := filestore.NewCatalog(catalogDoc)
	watchers := filestore.NewWatchers(catalogDoc)
	targets := filestore.NewTargets(catalogDoc)
	states := filestore.NewStateStore(*statePath)
	results := filestore.NewResultSink(*resultsPath)
	notifications := filestore.NewNotificationSink(*notificationsPath)

	staticFactory := static.NewFactory()

	renderedFactory, err := rendered.NewFactory(*browserControlURL)
	if err != nil {
		applog.WithComponentAndFields("main", log.Fields{"error": err}).Error("rendered browser connect failed")
		os.Exit(1)
	}
	defer renderedFactory.Close()

	m := monitor.New(
		shopLoader,
		catalog,
		watchers,
		targets,
		states,
		results,
		notifications,
		staticFactory,
		renderedFactory,
		*breakerThreshold,
	)

	result, err := m.RunCycle(ctx)
	if err != nil {
		applog.WithComponentAndFields("main", log.Fields{
			"error":    err,
			"resolved": result.Resolved,
			"skipped":  result.Skipped,
		}).Error("cycle finished with errors")
		os.Exit(1)
	}

	var found, notFound int
	for _, s := range result.ShopStats {
		found += s.Found
		notFound += s.NotFound
	}
	applog.WithComponentAndFields("main", log.Fields{
		"resolved":      result.Resolved,
		"skipped":       result.Skipped,
		"shops":         len(result.ShopStats),
		"found":         found,
		"notFound":      notFound,
		"notifications": result.NotificationsQueued,
	}).Info("cycle succeeded")
}
