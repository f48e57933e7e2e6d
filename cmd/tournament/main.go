// Command tournament runs a single tournament from a definition file and
// prints the leaderboard.
//
// Usage:
//
//	./tournament -def koth.yaml -entries ./entries -seed replay-me
//	./tournament -def koth.json -url https://codegolf.stackexchange.com/questions/1234
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/domain/tournament"
	"github.com/GriffinCanCode/kothrunner/internal/game"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kothrunner/internal/ingest"
	"github.com/GriffinCanCode/kothrunner/internal/modules"
	"github.com/GriffinCanCode/kothrunner/internal/shared/random"
)

func main() {
	cfg := config.LoadOrDefault()

	defPath := flag.String("def", "", "Tournament definition file (yaml, json or toml)")
	seed := flag.String("seed", "", "Root seed; empty draws a fresh one")
	entriesURL := flag.String("url", "", "Answers page to load entries from")
	flag.StringVar(&cfg.Entries.Dir, "entries", cfg.Entries.Dir, "Entry directory")
	flag.StringVar(&cfg.Modules.Dir, "modules", cfg.Modules.Dir, "Game module directory")
	flag.IntVar(&cfg.Scheduler.MaxConcurrency, "concurrency", cfg.Scheduler.MaxConcurrency, "Concurrent games (0 picks from CPU count)")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	if *defPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: true})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger, *defPath, *entriesURL, random.Seed(*seed)); err != nil {
		logger.Error("Tournament failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger, defPath, entriesURL string, seed random.Seed) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	def, err := config.LoadDefinition(defPath)
	if err != nil {
		return err
	}

	client := httpclient.New(httpclient.DefaultOptions())
	source, err := modules.FromConfig(cfg.Modules, client)
	if err != nil {
		return err
	}
	entries, err := ingest.NewResolver(cfg.Entries, client, logger.Component("ingest")).
		Resolve(ctx, def, entriesURL)
	if err != nil {
		return err
	}

	factory := game.NewHandlerFactory(
		game.WithSandboxConfig(game.SandboxConfig(cfg.Sandbox)),
		game.WithSource(source),
		game.WithLogger(logger.Component("runner")),
	)
	manager := tournament.NewManager(factory, cfg.Scheduler.Concurrency(), logger.Component("tournament"))
	defer manager.Shutdown(context.Background())

	started, err := manager.Start(tournament.StartRequest{
		Definition: def,
		Entries:    entries,
		Seed:       seed,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d teams, seed %s\n", started.Name, started.Teams, started.Seed)

	go func() {
		<-ctx.Done()
		_ = manager.Cancel(started.ID)
	}()

	final, err := manager.Wait(context.Background(), started.ID)
	if err != nil {
		return err
	}
	if final.Status != tournament.StatusFinished {
		return fmt.Errorf("run %s: %s", final.Status, final.Error)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tTEAM\tGAMES\tWINS\tWIN RATE\tMEAN\tSTDDEV\tERRORS")
	for _, s := range final.Leaderboard {
		name := s.Name
		if name == "" {
			name = s.TeamID
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%.3f\t%.2f\t%.2f\t%d\n",
			s.Rank, name, s.Games, s.Wins, s.WinRate, s.Mean, s.StdDev, s.Errors)
	}
	return w.Flush()
}
