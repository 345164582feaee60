package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/raykavin/intrabot"
	"github.com/raykavin/intrabot/config"
	"github.com/raykavin/intrabot/core"
	"github.com/raykavin/intrabot/pkg/logger/zerolog"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// Exit codes: 0 success, 1 runtime failure, 2 configuration error, 3 no data
// for the requested date.
const (
	exitConfig = 2
	exitData   = 3
)

var (
	configPath string
	dateFlag   string
	speedFlag  int
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "intrabot",
		Short:   "Deterministic intraday trading simulator",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildRunCmd(), buildDatesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay one trading day through the strategy pipeline",
		Run:   runSession,
	}

	runCmd.Flags().StringVarP(&configPath, "config", "c", "intrabot.yaml", "Configuration file path")
	runCmd.Flags().StringVarP(&dateFlag, "date", "d", "", "Trading date to simulate (e.g. 2024-03-04)")
	runCmd.Flags().IntVarP(&speedFlag, "speed", "s", -1, "Playback speed multiplier, 0 for unpaced")
	runCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level override (trace..error)")
	_ = runCmd.MarkFlagRequired("date")

	return runCmd
}

func buildDatesCmd() *cobra.Command {
	datesCmd := &cobra.Command{
		Use:   "dates",
		Short: "List the trading dates available in the configured feeds",
		Run:   listDates,
	}
	datesCmd.Flags().StringVarP(&configPath, "config", "c", "intrabot.yaml", "Configuration file path")
	return datesCmd
}

func runSession(cmd *cobra.Command, _ []string) {
	cfg, log := loadConfig()

	date, err := time.ParseInLocation(dateLayout, dateFlag, time.Local)
	if err != nil {
		log.WithError(err).Error("invalid --date")
		os.Exit(exitConfig)
	}
	if speedFlag >= 0 {
		cfg.Simulation.Speed = float64(speedFlag)
	}

	bot, err := intrabot.New(cfg, log, intrabot.WithTelegram())
	if err != nil {
		log.WithError(err).Error("failed to build bot")
		os.Exit(exitConfig)
	}
	defer bot.Close()

	if err := bot.Run(cmd.Context(), date); err != nil {
		if errors.Is(err, core.ErrNoData) {
			log.WithError(err).Error("no data for requested date")
			os.Exit(exitData)
		}
		log.WithError(err).Error("simulation failed")
		os.Exit(1)
	}

	bot.PrintSummary(os.Stdout)
}

func listDates(_ *cobra.Command, _ []string) {
	cfg, log := loadConfig()

	feed, err := intrabot.NewFeed(cfg)
	if err != nil {
		log.WithError(err).Error("failed to open feeds")
		os.Exit(exitData)
	}
	for _, symbol := range feed.ListSymbols() {
		dates, err := feed.AvailableDates(symbol)
		if err != nil {
			continue
		}
		for _, d := range dates {
			fmt.Printf("%s %s\n", symbol, d.Format(dateLayout))
		}
	}
}

func loadConfig() (*config.Config, core.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	zl, err := zerolog.NewZerolog(cfg.LogLevel, time.RFC3339, true, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
	return cfg, zerolog.NewAdapter(zl.Logger)
}
