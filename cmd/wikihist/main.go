package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/wikihist/wikihist/internal/config"
	"github.com/wikihist/wikihist/internal/ingest"
	"github.com/wikihist/wikihist/internal/logging"
	"github.com/wikihist/wikihist/internal/sched"
	"github.com/wikihist/wikihist/internal/search"
	"github.com/wikihist/wikihist/internal/storage"
	"github.com/wikihist/wikihist/internal/web"
	"github.com/wikihist/wikihist/internal/wiki"
)

func main() {
	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	configPath := globalFlags.String("config", "", "Path to TOML config file (defaults apply when empty)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global flags may precede the command.
	commandIdx := 1
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}
	if commandIdx > 1 {
		globalFlags.Parse(os.Args[1:commandIdx])
	}

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)

	command := os.Args[commandIdx]
	args := os.Args[commandIdx+1:]

	switch command {
	case "populate":
		if len(args) < 1 {
			fmt.Println("Error: article title required")
			fmt.Println("Usage: wikihist [--config=<file>] populate <title>")
			os.Exit(1)
		}
		runPopulate(cfg, log, strings.Join(args, " "))
	case "sweep":
		runSweep(cfg, log)
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := serveFlags.String("addr", cfg.Server.Address, "Address to listen on")
		scheduler := serveFlags.Bool("scheduler", true, "Run the population scheduler alongside the server")
		serveFlags.Parse(args)
		runServe(cfg, log, *addr, *scheduler)
	case "schedule":
		runSchedule(cfg, log)
	case "reindex":
		runReindex(cfg, log)
	case "stats":
		runStats(cfg, log)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("wikihist - Wikipedia revision history mirror")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wikihist [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --config=<file>   TOML config file (built-in defaults when omitted)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  populate <title>  Fetch and merge the revision history of one article")
	fmt.Println("  sweep             Refresh stale user classifications")
	fmt.Println("  serve [flags]     Start the JSON API server (with the scheduler by default)")
	fmt.Println("  schedule          Run one scheduled sweep: due articles, then stale users")
	fmt.Println("  reindex           Rebuild the search index from the database")
	fmt.Println("  stats             Show database and index counts")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -addr=<host:port> Listen address (default from config)")
	fmt.Println("  -scheduler=false  Disable the background scheduler")
}

func openComponents(cfg config.Config, log *logrus.Logger) (*storage.DB, *search.Index, *ingest.Populator, *ingest.Merger) {
	db, err := storage.Open(cfg.DB.Path, log)
	if err != nil {
		log.WithError(err).Fatal("opening database")
	}

	idx, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		log.WithError(err).Fatal("opening search index")
	}

	client := wiki.NewClient(cfg.API.Endpoint, cfg.API.UserAgent, cfg.API.Converted.Timeout)
	resolver := ingest.NewResolver(client)
	merger := ingest.NewMerger(db, resolver, cfg.Staleness.Converted.Window, log)
	populator := ingest.NewPopulator(client, merger, db, idx, log)

	return db, idx, populator, merger
}

func runPopulate(cfg config.Config, log *logrus.Logger, rawTitle string) {
	db, idx, populator, _ := openComponents(cfg, log)
	defer db.Close()
	defer idx.Close()

	title, stats, err := populator.Populate(context.Background(), rawTitle)
	if err != nil {
		log.WithError(err).Fatalf("populating %q", rawTitle)
	}

	fmt.Println("=== Populate Complete ===")
	fmt.Printf("Article:            %s\n", title)
	fmt.Printf("Revisions inserted: %d\n", stats.RevisionsInserted)
	fmt.Printf("Revisions ignored:  %d\n", stats.RevisionsIgnored)
	fmt.Printf("Revisions skipped:  %d\n", stats.RevisionsSkipped)
	fmt.Printf("Lookups made:       %d\n", stats.LookupsMade)
	fmt.Printf("Lookups cached:     %d\n", stats.LookupsSkipped)
}

func runSweep(cfg config.Config, log *logrus.Logger) {
	db, idx, _, merger := openComponents(cfg, log)
	defer db.Close()
	defer idx.Close()

	count, err := merger.RescrapeStaleUsers(context.Background())
	if err != nil {
		log.WithError(err).Fatal("rescraping stale users")
	}

	fmt.Printf("Refreshed %d user classifications\n", count)
}

func runSchedule(cfg config.Config, log *logrus.Logger) {
	db, idx, populator, merger := openComponents(cfg, log)
	defer db.Close()
	defer idx.Close()

	scheduler := sched.New(db, populator, merger, cfg.Scheduler.Converted.Interval, log)
	if err := scheduler.RunOnce(context.Background()); err != nil {
		log.WithError(err).Fatal("scheduled sweep")
	}
}

func runServe(cfg config.Config, log *logrus.Logger, addr string, withScheduler bool) {
	db, idx, populator, merger := openComponents(cfg, log)
	defer db.Close()
	defer idx.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if withScheduler {
		scheduler := sched.New(db, populator, merger, cfg.Scheduler.Converted.Interval, log)
		go scheduler.Run(ctx)
	}

	server := web.NewServer(db, idx, populator, log)

	httpServer := &http.Server{Addr: addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	log.Infof("serving API on http://%s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server failed")
	}
}

func runReindex(cfg config.Config, log *logrus.Logger) {
	db, idx, _, _ := openComponents(cfg, log)
	defer db.Close()
	defer idx.Close()

	if err := idx.Rebuild(db); err != nil {
		log.WithError(err).Fatal("rebuilding search index")
	}

	count, err := idx.Count()
	if err != nil {
		log.WithError(err).Fatal("counting index entries")
	}
	fmt.Printf("Indexed %d entries\n", count)
}

func runStats(cfg config.Config, log *logrus.Logger) {
	db, idx, _, _ := openComponents(cfg, log)
	defer db.Close()
	defer idx.Close()

	stats, err := storage.GetDashboardStats(db, 5)
	if err != nil {
		log.WithError(err).Fatal("computing stats")
	}
	indexCount, err := idx.Count()
	if err != nil {
		log.WithError(err).Fatal("counting index entries")
	}

	fmt.Println("=== wikihist ===")
	fmt.Printf("Articles:       %d\n", stats.TotalArticles)
	fmt.Printf("Users:          %d\n", stats.TotalUsers)
	fmt.Printf("Revisions:      %d\n", stats.TotalRevisions)
	fmt.Printf("Bot percentage: %.1f%%\n", stats.BotPercentage)
	fmt.Printf("Index entries:  %d\n", indexCount)
}
