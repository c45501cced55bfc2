package main

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/eventstudy/internal/analysis"
	"github.com/rewired-gh/eventstudy/internal/config"
	"github.com/rewired-gh/eventstudy/internal/logger"
	"github.com/rewired-gh/eventstudy/internal/storage"
	"github.com/rewired-gh/eventstudy/internal/telegram"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "eventstudy",
	Short: "Estimate and plot the measles vaccine event study.",
	Long: `eventstudy reads the state-year measles panel, fits the event-study ` +
		`regression with state-clustered standard errors and writes the ` +
		`coefficient path with its confidence band to a PNG chart.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runAnalysis(cmd.Context(), cfg)
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored runs, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored.")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %6s  %8s  %7s  %s\n", "ID", "STARTED", "N", "CLUSTERS", "PLOTTED", "DATASET")
		for _, r := range runs {
			fmt.Printf("%-36s  %-19s  %6d  %8d  %7d  %s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.N, r.Clusters, r.PlottedCount, r.Dataset)
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the event-time effects of a stored run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetRun(args[0])
		if err != nil {
			return err
		}
		effects, err := store.GetEffects(run.ID)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s on %s (N=%d, clusters=%d)\n", run.ID, run.Dataset, run.N, run.Clusters)
		if len(run.Dropped) > 0 {
			fmt.Printf("Dropped: %v\n", run.Dropped)
		}
		fmt.Printf("%4s  %-14s  %9s  %9s  %7s  %9s  %9s\n", "exp", "var", "coef", "stderr", "pval", "ci_lower", "ci_upper")
		for _, e := range effects {
			pval := "."
			if !math.IsNaN(e.PValue) {
				pval = fmt.Sprintf("%.4f", e.PValue)
			}
			fmt.Printf("%4d  %-14s  %9.4f  %9.4f  %7s  %9.4f  %9.4f\n",
				e.EventTime, e.Var, e.Coef, e.StdErr, pval, e.CILower, e.CIUpper)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list (0 for all)")
	rootCmd.AddCommand(historyCmd, showCmd)
}

func main() {
	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatal("Error: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("Configuration loaded from %s", configPath)
	return cfg, nil
}

func openStore() (*storage.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled {
		return nil, fmt.Errorf("run history is disabled (set storage.enabled)")
	}
	return storage.New(cfg.Storage.DBPath)
}

func runAnalysis(ctx context.Context, cfg *config.Config) error {
	var opts []analysis.Option

	// Initialize storage
	if cfg.Storage.Enabled {
		store, err := storage.New(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		opts = append(opts, analysis.WithStore(store))
	}

	// Initialize Telegram client
	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
		opts = append(opts, analysis.WithNotifier(client))
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	res, err := analysis.New(cfg, opts...).Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Run %s completed in %v", res.Run.ID, res.Run.FinishedAt.Sub(res.Run.StartedAt))
	return nil
}
