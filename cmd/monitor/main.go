package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/haoxu/ivarb/api"
	"github.com/haoxu/ivarb/internal/config"
	"github.com/haoxu/ivarb/pkg/analyzer"
	"github.com/haoxu/ivarb/pkg/contracts"
	"github.com/haoxu/ivarb/pkg/marketdata"
	"github.com/haoxu/ivarb/pkg/monitor"
	"github.com/haoxu/ivarb/pkg/notify"
	"github.com/haoxu/ivarb/pkg/positions"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "ivarb-monitor",
		Short: "Cross-market implied volatility arbitrage monitor",
		Long:  `Monitors the implied volatility spread between domestic commodity options and their CME counterparts, and sends Telegram signals when the spread is tradeable`,
		Run:   runMonitor,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single check cycle and exit",
		Run:   runCheckOnce,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the instrument catalogue",
		Run:   runList,
	}

	testNotifyCmd := &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message to the configured Telegram chat",
		Run:   runTestNotify,
	}

	rootCmd.AddCommand(checkCmd, listCmd, testNotifyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup() *config.Config {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Error("Cannot open log file, logging to stderr")
		} else {
			logger.SetOutput(f)
		}
	}

	return cfg
}

// buildMonitor wires the full pipeline from configuration: providers,
// acquirers, analyzer, position manager and notifier.
func buildMonitor(cfg *config.Config) (*monitor.Monitor, *positions.Manager) {
	quotes := marketdata.NewQuoteClient("")
	scraper := marketdata.NewScraper("")

	// The domestic side has no scrapable foreign-style options page, so its
	// acquirer runs without the scrape tier.
	domestic := marketdata.NewAcquirer(quotes, quotes, quotes, nil, logger)
	foreign := marketdata.NewAcquirer(quotes, quotes, quotes, scraper, logger)
	fetcher := marketdata.NewFetcher(domestic, foreign, logger)

	anlzCfg := analyzer.DefaultConfig()
	anlzCfg.MaxForeignLots = cfg.Monitor.MaxForeignLots
	anlzCfg.DedupWindow = cfg.Monitor.DedupWindow()
	anlzCfg.DedupBand = cfg.Monitor.DedupBand
	anlz := analyzer.New(anlzCfg, contracts.Resolver{}, logger)

	posCfg := positions.Config{
		DaysBeforeExpiry: cfg.Monitor.DaysBeforeExpiry,
		MaxHoldingDays:   cfg.Monitor.MaxHoldingDays,
	}
	posMgr, err := positions.NewManager(posCfg, positions.NewFileStore(cfg.Positions.Path), logger)
	if err != nil {
		logger.WithError(err).Warn("Position history unreadable, starting with empty book")
	}

	var notifier notify.Notifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	} else {
		logger.Warn("Telegram not configured, signals will only be logged")
	}

	monCfg := monitor.Config{
		Interval:         cfg.Monitor.Interval(),
		TradingHoursOnly: cfg.Monitor.TradingHoursOnly,
	}
	mon := monitor.New(monCfg, cfg.EnabledInstruments(), fetcher, anlz, posMgr, notifier, logger)
	return mon, posMgr
}

func runMonitor(cmd *cobra.Command, args []string) {
	cfg := setup()

	mon, posMgr := buildMonitor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiServer := api.NewServer(mon, posMgr, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	go mon.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Arbitrage monitor is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	mon.Stop()
	cancel()

	logger.Info("Arbitrage monitor stopped")
}

func runCheckOnce(cmd *cobra.Command, args []string) {
	cfg := setup()

	mon, _ := buildMonitor(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mon.CheckOnce(ctx)

	for key, pair := range mon.LastPairs() {
		line := fmt.Sprintf("%-10s", key)
		if diff, ok := pair.IVDiff(); ok {
			line += fmt.Sprintf("  iv_diff=%+.2f%%", diff)
		} else {
			line += "  iv_diff=unavailable"
		}
		fmt.Println(line)
	}
}

func runList(cmd *cobra.Command, args []string) {
	cfg := setup()

	for _, spec := range cfg.EnabledInstruments() {
		fmt.Printf("%s (%s)\n", spec.Name, spec.Key)
		fmt.Printf("  domestic: %s %s (%s)\n", spec.Domestic.Exchange, spec.Domestic.Symbol, spec.Domestic.Unit)
		fmt.Printf("  foreign:  %s %s (%s)\n", spec.Foreign.Exchange, spec.Foreign.Symbol, spec.Foreign.Unit)
		fmt.Printf("  open/close/stop: %.1f / %.1f / %.1f\n", spec.OpenThreshold, spec.CloseThreshold, spec.StopLoss)
	}
}

func runTestNotify(cmd *cobra.Command, args []string) {
	cfg := setup()

	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		logger.Fatal("Telegram is not configured")
	}

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := notifier.Send(ctx, "<b>test message</b>\n\nnotification channel is working"); err != nil {
		logger.WithError(err).Fatal("Test message failed")
	}
	logger.Info("Test message sent")
}
