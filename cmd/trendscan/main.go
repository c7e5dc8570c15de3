package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantrail/trendscan/internal/alerter"
	"github.com/quantrail/trendscan/internal/config"
	"github.com/quantrail/trendscan/internal/logger"
	"github.com/quantrail/trendscan/internal/markethours"
	"github.com/quantrail/trendscan/internal/marketdata"
	"github.com/quantrail/trendscan/internal/scanner"
	"github.com/quantrail/trendscan/internal/storage"
	"github.com/quantrail/trendscan/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.Open(storage.Config{
		Backend:   cfg.Storage.Backend,
		DBPath:    cfg.Storage.DBPath,
		StatePath: cfg.Storage.StatePath,
		AlertPath: cfg.Storage.AlertPath,
		MaxAlerts: cfg.Storage.MaxAlerts,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	provider := marketdata.NewClient(
		cfg.MarketData.BaseURL,
		cfg.MarketData.Timeout,
		marketdata.ClientConfig{
			MaxRetries:     cfg.MarketData.MaxRetries,
			RetryDelayBase: cfg.MarketData.RetryDelayBase,
		},
	)

	var telegramClient *telegram.Client
	var notifier alerter.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			store,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	instruments := cfg.Instruments()
	timeframes := cfg.Timeframes()
	waits := cfg.Waits()

	scan := scanner.New(store, provider, scanner.Config{
		FastPeriod:       cfg.Scanner.FastPeriod,
		SlowPeriod:       cfg.Scanner.SlowPeriod,
		MinPrice:         cfg.Scanner.MinPrice,
		VolumeMultiplier: cfg.Scanner.VolumeMultiplier,
	})
	alerts := alerter.New(store, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
		if err := telegramClient.SendStartup(instruments, timeframes); err != nil {
			logger.Warn("Failed to send startup notification: %v", err)
		}
	}

	logger.Info("Starting trend scanner (instruments: %d, timeframes: %v, active interval: %v, idle interval: %v)",
		len(instruments), cfg.Scanner.Timeframes, cfg.Scanner.ActiveInterval, cfg.Scanner.IdleInterval)

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Scan cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	runCycle := func() error {
		now := time.Now()
		open := markethours.IsOpen(now)
		logger.Info("%s", markethours.Status(now))

		events, cycleErr := scan.RunCycle(ctx, scanner.CycleInput{
			Now:         now,
			MarketOpen:  open,
			Instruments: instruments,
			Timeframes:  timeframes,
			Waits:       waits,
		})
		// Events from an interrupted cycle describe state changes that are
		// already persisted, so they go to the history regardless.
		if len(events) > 0 {
			logger.Info("Detected %d trend events", len(events))
			if err := alerts.Emit(context.Background(), events); err != nil {
				return fmt.Errorf("record alerts: %w", err)
			}
		} else if open && cycleErr == nil {
			logger.Debug("No trend events this cycle")
		}
		if cycleErr != nil {
			return fmt.Errorf("scan cycle: %w", cycleErr)
		}
		return nil
	}

	// Scanning cadence tracks the market session: tight while trading is
	// live, relaxed on weekends, and backed off after a failed cycle.
	nextDelay := func(cycleErr error) time.Duration {
		if cycleErr != nil {
			return cfg.Scanner.ErrorBackoff
		}
		if markethours.IsOpen(time.Now()) {
			return cfg.Scanner.ActiveInterval
		}
		return cfg.Scanner.IdleInterval
	}

	cycleErr := runCycle()
	handleCycleResult(cycleErr)

	timer := time.NewTimer(nextDelay(cycleErr))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-timer.C:
			cycleErr = runCycle()
			handleCycleResult(cycleErr)
			timer.Reset(nextDelay(cycleErr))
		}
	}
}
