// Command mbparts drives the catalog acquisition pipeline: crawl the
// shop, refresh prices, migrate to the canonical stream, build chunk
// indexes, or serve the trigger API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/tbielich/mb-parts/catalog"
	"github.com/tbielich/mb-parts/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// .env is optional; real environments set MBPARTS_* directly.
	_ = godotenv.Load()

	logger := newLogger()
	slog.SetDefault(logger)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "crawl":
		cmdCrawl(args, logger)
	case "refresh":
		cmdRefresh(args, logger)
	case "refresh-items":
		cmdRefreshItems(args, logger)
	case "migrate":
		cmdMigrate(args, logger)
	case "chunk":
		cmdChunk(args, logger)
	case "serve":
		cmdServe(args, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mbparts - catalog acquisition pipeline

usage:
  mbparts crawl         [-config file] [-prefixes A309,A310] [-limit n]
  mbparts refresh       [-config file] [-batch n]
  mbparts refresh-items [-config file] -parts A3091234567,A3101234567
  mbparts migrate       [-config file]
  mbparts chunk         [-config file]
  mbparts serve         [-config file] [-listen :8080]

crawl          Discover parts and replace the base snapshot.
refresh        Refresh one rotating batch of stale price entries.
refresh-items  Refresh an explicit part-number list.
migrate        Fold snapshots into the canonical record stream.
chunk          Migrate, then build chunk files and indexes.
serve          Serve the trigger API.

Configuration comes from the YAML file, overridden by MBPARTS_*
environment variables (a .env file is honored).
`)
}

func newLogger() *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(os.Getenv("MBPARTS_LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newService builds a Service from flags shared by every subcommand.
// Remaining flag definitions must be registered on fs before calling.
func newService(fs *flag.FlagSet, args []string, logger *slog.Logger) *catalog.Service {
	configPath := fs.String("config", os.Getenv("MBPARTS_CONFIG"), "YAML config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	cfg, err := catalog.LoadConfig(*configPath)
	if err != nil {
		fatal(logger, "load config", err)
	}
	svc, err := catalog.New(cfg, logger)
	if err != nil {
		fatal(logger, "init service", err)
	}
	if err := svc.OpenRunStore(); err != nil {
		// Run history is operational metadata; the pipeline works
		// without it.
		logger.Warn("run store unavailable", "error", err)
	}
	return svc
}

func fatal(logger *slog.Logger, op string, err error) {
	logger.Error(op+" failed", "error", err)
	os.Exit(1)
}

func cmdCrawl(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	prefixes := fs.String("prefixes", "", "comma-separated prefix override")
	limit := fs.Int("limit", 0, "result limit override")
	svc := newService(fs, args, logger)
	defer svc.Close()

	var p catalog.CrawlParams
	if *prefixes != "" {
		p.Prefixes = strings.Split(*prefixes, ",")
	}
	p.Limit = *limit

	snap, err := svc.Crawl(context.Background(), p)
	if err != nil {
		fatal(logger, "crawl", err)
	}
	fmt.Printf("crawled %d parts\n", snap.Count)
}

func cmdRefresh(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	batch := fs.Int("batch", 0, "batch size override")
	svc := newService(fs, args, logger)
	defer svc.Close()

	n, err := svc.RefreshBatch(context.Background(), *batch)
	if err != nil {
		fatal(logger, "refresh", err)
	}
	fmt.Printf("refreshed %d parts\n", n)
}

func cmdRefreshItems(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("refresh-items", flag.ExitOnError)
	parts := fs.String("parts", "", "comma-separated part numbers")
	svc := newService(fs, args, logger)
	defer svc.Close()

	if *parts == "" {
		fatal(logger, "refresh-items", catalog.ErrNoItems)
	}
	n, err := svc.RefreshItems(context.Background(), strings.Split(*parts, ","))
	if err != nil {
		fatal(logger, "refresh-items", err)
	}
	fmt.Printf("refreshed %d parts\n", n)
}

func cmdMigrate(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	svc := newService(fs, args, logger)
	defer svc.Close()

	n, err := svc.Migrate(context.Background())
	if err != nil {
		fatal(logger, "migrate", err)
	}
	fmt.Printf("migrated %d records\n", n)
}

func cmdChunk(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	svc := newService(fs, args, logger)
	defer svc.Close()

	m, err := svc.BuildChunks(context.Background())
	if err != nil {
		fatal(logger, "chunk", err)
	}
	fmt.Printf("built %d chunks (%d records)\n", m.ChunkCount, m.TotalParts)
}

func cmdServe(args []string, logger *slog.Logger) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", ":8080", "listen address")
	svc := newService(fs, args, logger)
	defer svc.Close()

	srv := server.New(svc, logger)
	logger.Info("listening", "addr", *listen)
	if err := http.ListenAndServe(*listen, srv.Router()); err != nil {
		fatal(logger, "serve", err)
	}
}
