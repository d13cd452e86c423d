package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/liveopshq/opscal/internal/config"
	"github.com/liveopshq/opscal/internal/dates"
	"github.com/liveopshq/opscal/internal/event"
	"github.com/liveopshq/opscal/internal/ics"
	"github.com/liveopshq/opscal/internal/importer"
	"github.com/liveopshq/opscal/internal/search"
	"github.com/liveopshq/opscal/internal/state"
	"github.com/liveopshq/opscal/internal/storage"
	"github.com/liveopshq/opscal/internal/web"
	"github.com/liveopshq/opscal/internal/webhook"
)

func main() {
	// Load .env first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "opscal",
		Usage: "Ingest, dedupe and search recurring LiveOps schedule events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "opscal.yaml", Usage: "Path to the YAML config file."},
		},
		Commands: []*cli.Command{
			importCommand(),
			addCommand(),
			fetchCommand(),
			searchCommand(),
			dayCommand(),
			listCommand(),
			removeCommand(),
			clearCommand(),
			exportCommand(),
			statsCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("opscal failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// app holds the wired collaborators behind one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	cal    *state.Calendar

	db  *storage.DB
	idx *search.Index
}

func (a *app) close() {
	if a.idx != nil {
		a.idx.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func openApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		cfg.WebhookURL = url
	}

	logger := setupLogger(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store, err := storage.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	}

	engine, err := search.NewEngine(store, idx, cfg.EmptyShowsAll())
	if err != nil {
		idx.Close()
		db.Close()
		return nil, fmt.Errorf("build search engine: %w", err)
	}
	engine.SetHighlightWindow(cfg.HighlightWindow())

	pipeline := importer.New(store, logger)
	hook := webhook.NewClient(cfg.FetchTimeout())
	cal := state.New(store, engine, pipeline, hook, cfg.WebhookURL, logger)

	return &app{cfg: cfg, logger: logger, cal: cal, db: db, idx: idx}, nil
}

func printStats(stats importer.Stats) {
	fmt.Println()
	fmt.Println("=== Import Complete ===")
	fmt.Printf("Imported: %d\n", stats.Imported)
	fmt.Printf("Skipped:  %d\n", stats.Skipped)
}

func printEvents(events []event.Event) {
	if len(events) == 0 {
		fmt.Println("No events")
		return
	}
	for _, ev := range events {
		line := fmt.Sprintf("%s  %s", ev.Date, ev.Title)
		if ev.Fair != "" {
			line += fmt.Sprintf("  [%s]", ev.Fair)
		}
		if ev.Link != "" {
			line += "  " + ev.Link
		}
		fmt.Printf("%s  (id %s)\n", line, ev.ID)
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a CSV or XLSX schedule file.",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected one file argument")
			}
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.cal.ImportFile(c.Args().First())
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add one event by hand.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: "Event date in any supported form."},
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "fair", Usage: "Categorical tag."},
			&cli.StringFlag{Name: "link", Usage: "External reference URL."},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.cal.AddManual(c.String("date"), c.String("title"), c.String("fair"), c.String("link"))
			if err != nil {
				return err
			}
			if stats.Imported == 0 {
				return fmt.Errorf("event not added: invalid date or duplicate (date, title)")
			}
			fmt.Println("Event added")
			return nil
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch and import records from the configured webhook endpoint.",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.cal.FetchWebhook(c.Context)
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search events by title text and fair tag.",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "fair", Usage: "Exact-match fair tag filter."},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			q := event.SearchQuery{
				Text:    strings.Join(c.Args().Slice(), " "),
				FairTag: c.String("fair"),
			}
			results, err := a.cal.Search(q)
			if err != nil {
				return err
			}
			printEvents(results)
			return nil
		},
	}
}

func dayCommand() *cli.Command {
	return &cli.Command{
		Name:      "day",
		Usage:     "List every event on one date, regardless of the global query.",
		ArgsUsage: "<YYYY-MM-DD>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "filter", Usage: "Local title filter for this view only."},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected one date argument")
			}
			date, err := dates.ParseISO(c.Args().First())
			if err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD")
			}
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			printEvents(a.cal.EventsOn(date, c.String("filter")))
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List every stored event in insertion order.",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			printEvents(a.cal.All())
			return nil
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Delete one event by id.",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected one event id")
			}
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.cal.Remove(c.Args().First())
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("event %s not found", c.Args().First())
			}
			fmt.Println("Event removed")
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete every event.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "Skip the confirmation."},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return fmt.Errorf("refusing to delete all events without --yes")
			}
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cal.Clear(); err != nil {
				return err
			}
			fmt.Println("All events removed")
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the store as an iCalendar feed.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)."},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			feed := ics.Export(a.cal.All())
			if out := c.String("out"); out != "" {
				return os.WriteFile(out, []byte(feed), 0o644)
			}
			fmt.Print(feed)
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show store statistics.",
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			sum := a.cal.Summarize()
			fmt.Println("=== Store Statistics ===")
			fmt.Printf("Events: %d\n", sum.Events)
			fmt.Printf("Fairs:  %d\n", sum.Fairs)
			for src, n := range sum.BySource {
				fmt.Printf("  %-16s %d\n", string(src)+":", n)
			}
			if sum.Events > 0 {
				fmt.Printf("Range:  %s .. %s\n", sum.FirstDate, sum.LastDate)
			}

			rows, err := a.db.Count()
			if err != nil {
				return fmt.Errorf("count snapshot rows: %w", err)
			}
			docs, err := a.idx.Count()
			if err != nil {
				return fmt.Errorf("count indexed events: %w", err)
			}
			fmt.Printf("Snapshot rows: %d, indexed: %d\n", rows, docs)
			if rows != sum.Events || docs != uint64(sum.Events) {
				fmt.Println("Warning: snapshot or index out of step with the store")
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the calendar JSON API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Listen address, overrides the config file."},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.close()

			addr := a.cfg.Listen
			if l := c.String("listen"); l != "" {
				addr = l
			}

			// Periodic webhook refresh; skipped while a fetch is
			// outstanding (the busy flag rejects the overlap).
			if a.cfg.RefreshCron != "" && a.cfg.WebhookURL != "" {
				cr := cron.New()
				_, err := cr.AddFunc(a.cfg.RefreshCron, func() {
					stats, err := a.cal.FetchWebhook(c.Context)
					if err != nil {
						a.logger.Warn("scheduled webhook refresh failed", "error", err)
						return
					}
					a.logger.Info("scheduled webhook refresh",
						"imported", stats.Imported, "skipped", stats.Skipped)
				})
				if err != nil {
					return fmt.Errorf("bad refresh schedule %q: %w", a.cfg.RefreshCron, err)
				}
				cr.Start()
				defer cr.Stop()
			}

			server := web.NewServer(a.cal, a.logger)
			a.logger.Info("serving calendar API", "addr", addr)
			return http.ListenAndServe(addr, server.Handler())
		},
	}
}
