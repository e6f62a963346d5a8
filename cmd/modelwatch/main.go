package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/everstacklabs/modelwatch/internal/cache"
	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/cost"
	"github.com/everstacklabs/modelwatch/internal/dataset"
	"github.com/everstacklabs/modelwatch/internal/pipeline"
	_ "github.com/everstacklabs/modelwatch/internal/provider/providers/docs"       // register docs adapter
	_ "github.com/everstacklabs/modelwatch/internal/provider/providers/openrouter" // register OpenRouter adapter
	_ "github.com/everstacklabs/modelwatch/internal/provider/providers/restapi"    // register REST API adapter
	"github.com/everstacklabs/modelwatch/internal/validate"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "modelwatch",
		Short: "Automated AI model metadata sync",
		Long:  "Fetches model pricing and capability metadata from providers, validates it, and publishes dataset updates.",
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		syncCmd(),
		diffCmd(),
		validateCmd(),
		listCmd(),
		costCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(pipeline.ExitFailure)
	}
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Full pipeline: fetch → validate → diff → store → publish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				cfg.DryRun = true
			}
			if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
				cfg.NoCache = true
			}
			if purge, _ := cmd.Flags().GetBool("purge-cache"); purge {
				if err := purgeCache(cfg); err != nil {
					return err
				}
			}
			providers, _ := cmd.Flags().GetStringSlice("providers")

			r, err := pipeline.New(cfg)
			if err != nil {
				return err
			}

			report, err := r.Run(cmd.Context(), providers)
			if report != nil {
				fmt.Println(report.Render())
			}
			return err
		},
	}

	cmd.Flags().Bool("dry-run", false, "Show what would change without writing")
	cmd.Flags().Bool("no-cache", false, "Bypass the HTTP cache")
	cmd.Flags().Bool("purge-cache", false, "Clear cached responses before fetching")
	cmd.Flags().StringSlice("providers", nil, "Providers to sync (default: all configured)")

	return cmd
}

func diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show what a sync would change (no writes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			providers, _ := cmd.Flags().GetStringSlice("providers")

			r, err := pipeline.New(cfg)
			if err != nil {
				return err
			}

			report, err := r.Diff(cmd.Context(), providers)
			if err != nil {
				return err
			}
			fmt.Println(report.Render())

			if report.HasUpdates() {
				os.Exit(pipeline.ExitChanges)
			}
			return nil
		},
	}

	cmd.Flags().StringSlice("providers", nil, "Providers to diff (default: all configured)")

	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the stored dataset (CI check)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}

			failed := 0
			for _, rec := range store.List() {
				if err := validate.ValidateRecord(rec); err != nil {
					fmt.Printf("%s: %v\n", rec.ModelID, err)
					failed++
				}
			}

			total := len(store.List())
			fmt.Printf("%d records checked, %d invalid\n", total, failed)
			if failed > 0 {
				os.Exit(pipeline.ExitFailure)
			}
			return nil
		},
	}

	cmd.Flags().String("dataset-path", "", "Path to dataset (default: from config)")

	return cmd
}

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored model records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}

			for _, rec := range store.List() {
				verified := "never"
				if !rec.LastVerifiedAt.IsZero() {
					verified = rec.LastVerifiedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-30s %-30s ctx=%-8d verified=%s\n",
					rec.ModelID, rec.DisplayName, rec.ContextWindowTokens, verified)
			}

			version, err := store.Version()
			if err != nil {
				return err
			}
			fmt.Printf("\n%d models, dataset version %s\n", len(store.List()), version)
			return nil
		},
	}

	cmd.Flags().String("dataset-path", "", "Path to dataset (default: from config)")

	return cmd
}

func costCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost <model-id>",
		Short: "Estimate request cost for a stored model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}

			rec, ok := store.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown model: %s", args[0])
			}

			tokensFlag, _ := cmd.Flags().GetStringSlice("tokens")
			usage, err := parseUsage(tokensFlag)
			if err != nil {
				return err
			}

			for _, line := range cost.Breakdown(rec, usage) {
				if line.Priced {
					fmt.Printf("%-12s %10d tokens  $%s\n", line.Class, line.Tokens, line.Cost.StringFixed(6))
				} else {
					fmt.Printf("%-12s %10d tokens  (not priced)\n", line.Class, line.Tokens)
				}
			}
			fmt.Printf("%-12s %18s  $%s\n", "total", "", cost.Estimate(rec, usage).StringFixed(6))
			return nil
		},
	}

	cmd.Flags().String("dataset-path", "", "Path to dataset (default: from config)")
	cmd.Flags().StringSlice("tokens", nil, "Token usage as class=count pairs (e.g. input=2500,output=1000)")

	return cmd
}

// parseUsage turns class=count pairs into a usage map.
func parseUsage(pairs []string) (map[string]int64, error) {
	usage := make(map[string]int64, len(pairs))
	for _, pair := range pairs {
		class, countStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid token usage %q, want class=count", pair)
		}
		count, err := strconv.ParseInt(countStr, 10, 64)
		if err != nil || count < 0 {
			return nil, fmt.Errorf("invalid token count %q", countStr)
		}
		usage[class] = count
	}
	return usage, nil
}

func openStore(cmd *cobra.Command) (*dataset.FileStore, error) {
	path, _ := cmd.Flags().GetString("dataset-path")
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.DatasetPath
	}
	return dataset.Open(path)
}

func purgeCache(cfg *config.Config) error {
	ttl, err := time.ParseDuration(cfg.CacheTTL)
	if err != nil {
		ttl = time.Hour
	}
	fc, err := cache.New(cfg.CacheDir, ttl)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	return fc.Purge()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
