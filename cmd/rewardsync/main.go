package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wnt/rewardsync/internal/api"
	"github.com/wnt/rewardsync/internal/chain"
	"github.com/wnt/rewardsync/internal/config"
	"github.com/wnt/rewardsync/internal/database"
	"github.com/wnt/rewardsync/internal/logger"
	"github.com/wnt/rewardsync/internal/notifier"
	"github.com/wnt/rewardsync/internal/policy"
	"github.com/wnt/rewardsync/internal/scheduler"
	"github.com/wnt/rewardsync/internal/store"
	"github.com/wnt/rewardsync/internal/submitter"
	"github.com/wnt/rewardsync/internal/syncer"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command-line arguments
	envFile := flag.String("envFile", ".env", "Path to .env file")
	once := flag.Bool("once", false, "Run a single sync and exit")
	flag.Parse()

	// Load environment variables from the specified file
	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("No .env file found at %s, using environment variables", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to database")
	}

	ledger, err := store.New(db, cfg.MinEligibleSeconds, cfg.RewardCooldown)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to create ledger store")
	}

	// A chain configuration problem degrades the service instead of killing
	// it: the health endpoint reports it, runs fail and get recorded.
	var (
		chainPinger syncer.Pinger
		diagnoser   api.Diagnoser
		chainIface  submitter.ChainClient
	)
	chainClient, chainErr := chain.NewClient(cfg)
	if chainErr != nil {
		zlog.Error().Err(chainErr).Msg("Chain client unavailable, starting degraded")
	} else {
		chainPinger = chainClient
		diagnoser = chainClient
		chainIface = chainClient
	}

	webhook := notifier.NewWebhook(cfg.WebhookURL, zlog)

	orchestrator := syncer.New(syncer.Params{
		Store:        ledger,
		Policy:       policy.Default(),
		Submitter:    submitter.New(chainIface, cfg.TxTimeout, zlog),
		Notifier:     webhook,
		Chain:        chainPinger,
		ChainErr:     chainErr,
		Logger:       zlog,
		BatchSize:    cfg.BatchSize,
		FetchLimit:   cfg.FetchLimit,
		BatchDelay:   cfg.BatchDelay,
		ReferralRate: cfg.ReferralRate,
		HistoryLimit: cfg.HistoryLimit,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		run := orchestrator.ExecuteSync(ctx, syncer.SourceStartup)
		if !run.Success {
			zlog.Error().Str("message", run.Message).Int("errors", run.Errors).Msg("Sync failed")
			os.Exit(1)
		}
		zlog.Info().Int("processed", run.Processed).Msg("Sync completed")
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	sched := scheduler.New(gctx, orchestrator, webhook, cfg.SyncCron, cfg.HealthCron, zlog)
	if err := sched.Register(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to register schedules")
	}
	sched.Start()

	if cfg.APIEnabled {
		server := api.New(":"+cfg.APIPort, orchestrator, ledger, diagnoser, cfg.SyncCron, cfg.HealthCron, zlog)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if cfg.RunOnStartup {
		g.Go(func() error {
			orchestrator.ExecuteSync(gctx, syncer.SourceStartup)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// Let a triggered job drain before exiting.
		<-sched.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		zlog.Error().Err(err).Msg("Service exited with error")
		os.Exit(1)
	}
	zlog.Info().Msg("Service stopped")
}
