package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlexica/lexcascade/internal/analysis"
	"github.com/openlexica/lexcascade/internal/backend"
	_ "github.com/openlexica/lexcascade/internal/backend/providers/gemini"     // register Gemini backend
	_ "github.com/openlexica/lexcascade/internal/backend/providers/groq"       // register Groq backend
	_ "github.com/openlexica/lexcascade/internal/backend/providers/ollama"     // register Ollama backend
	_ "github.com/openlexica/lexcascade/internal/backend/providers/openrouter" // register OpenRouter backend
	_ "github.com/openlexica/lexcascade/internal/backend/providers/vertex"     // register Vertex backend
	"github.com/openlexica/lexcascade/internal/cache"
	"github.com/openlexica/lexcascade/internal/cascade"
	"github.com/openlexica/lexcascade/internal/config"
	"github.com/openlexica/lexcascade/internal/dispatch"
	"github.com/openlexica/lexcascade/internal/httpclient"
	"github.com/openlexica/lexcascade/internal/registry"
	"github.com/openlexica/lexcascade/internal/stats"
	"github.com/openlexica/lexcascade/internal/validate"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lexcascade",
		Short: "Cascade router for per-section legal-code analysis",
		Long: "Routes per-section analysis requests (reporting requirements, anachronisms,\n" +
			"obligations, complexity) across a tiered pool of LLM backends with automatic\n" +
			"failover and quota-aware recovery.",
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		runCmd(),
		modelsCmd(),
		probeCmd(),
		validateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process an NDJSON record stream through the cascade",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("workers") {
				cfg.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Parallel, _ = cmd.Flags().GetBool("parallel")
			}
			if cmd.Flags().Changed("no-cache") {
				cfg.NoCache, _ = cmd.Flags().GetBool("no-cache")
			}
			if cmd.Flags().Changed("task") {
				cfg.Task, _ = cmd.Flags().GetString("task")
			}

			in, _ := cmd.Flags().GetString("in")
			out, _ := cmd.Flags().GetString("out")
			limit, _ := cmd.Flags().GetInt("limit")
			strategyFlag, _ := cmd.Flags().GetString("cascade-strategy")

			configureLogging(cfg.LogLevel)

			task, err := analysis.Get(cfg.Task)
			if err != nil {
				return err
			}

			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			strategyName, err := cascade.Resolve(strategyFlag, cfg.Strategy, cfg.Workers)
			if err != nil {
				return err
			}

			collector := stats.NewCollector()
			strategy, err := cascade.New(strategyName, cascade.Params{
				Registry:          reg,
				Stats:             collector,
				CooldownThreshold: cfg.ErrorDriven.CooldownThreshold,
				Cooldown:          config.Duration(cfg.RateLimited.Cooldown, cascade.DefaultCooldown),
				Window:            config.Duration(cfg.RateLimited.Window, cascade.DefaultWindow),
				Parallel:          cfg.Parallel,
			})
			if err != nil {
				return err
			}

			var completionCache *cache.FileCache
			if !cfg.NoCache {
				ttl := config.Duration(cfg.CacheTTL, 0)
				if ttl > 0 {
					fc, err := cache.New(cfg.CacheDir, ttl)
					if err != nil {
						slog.Warn("failed to create cache, continuing without", "error", err)
					} else {
						completionCache = fc
					}
				}
			}

			slog.Info("starting run",
				"task", task.Name(), "strategy", strategyName,
				"workers", cfg.Workers, "backends", reg.Len())

			summary, err := dispatch.Run(context.Background(), dispatch.Options{
				In:        in,
				Out:       out,
				Limit:     limit,
				Workers:   cfg.Workers,
				MaxTokens: cfg.MaxTokens,
				Task:      task,
				Strategy:  strategy,
				Cache:     completionCache,
			})
			if summary != nil {
				collector.Close()
				fmt.Fprintln(os.Stderr, collector.Report())
				fmt.Fprintln(os.Stderr, strategy.Snapshot())
			}
			if err != nil {
				return err
			}

			slog.Info("run complete",
				"read", summary.Read,
				"succeeded", summary.Succeeded,
				"failed", summary.Failed,
				"cache_hits", summary.CacheHits)
			return nil
		},
	}

	cmd.Flags().String("in", "-", "Input NDJSON path (- for stdin)")
	cmd.Flags().String("out", "-", "Output NDJSON path (- for stdout)")
	cmd.Flags().String("task", "", "Analysis task: "+strings.Join(analysis.Names(), ", "))
	cmd.Flags().Int("limit", 0, "Stop dispatch after N records (0 = all)")
	cmd.Flags().Int("workers", 1, "Worker pool size")
	cmd.Flags().Bool("parallel", false, "Round-robin across models within a tier")
	cmd.Flags().String("cascade-strategy", "", "error_driven or rate_limited (extended/simple are deprecated aliases)")
	cmd.Flags().Bool("no-cache", false, "Disable the completion cache")

	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the configured backend registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reg, err := registry.Load(cfg.BackendsPath)
			if err != nil {
				return err
			}

			for _, t := range reg.ByTier() {
				limit := "unlimited"
				if t.WindowLimit > 0 {
					limit = fmt.Sprintf("%d calls/window", t.WindowLimit)
				}
				fmt.Printf("tier %d  %-16s %s\n", t.Index, t.Name, limit)
				for _, m := range t.Models {
					fmt.Printf("  %-12s %s\n", m.Provider, m.ID)
				}
			}

			fmt.Printf("\nTotal: %d backends in %d tiers\n", reg.Len(), len(reg.ByTier()))
			return nil
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Health-check every configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			configureLogging(cfg.LogLevel)

			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}

			unhealthy := 0
			for _, m := range reg.All() {
				b := reg.Backend(m)
				if err := b.HealthCheck(cmd.Context()); err != nil {
					unhealthy++
					fmt.Printf("FAIL  %-40s %v\n", m.Key(), err)
					continue
				}
				fmt.Printf("ok    %s\n", m.Key())
			}

			if unhealthy > 0 {
				return fmt.Errorf("%d of %d backends unhealthy", unhealthy, reg.Len())
			}
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate backend registry and provider configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			reg, err := registry.Load(cfg.BackendsPath)
			if err != nil {
				return err
			}

			result := validate.Registry(reg, cfg)
			fmt.Println(validate.FormatResult(result))

			if result.HasErrors() {
				os.Exit(1)
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildRegistry loads the manifest, validates it, and binds live backends.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg, err := registry.Load(cfg.BackendsPath)
	if err != nil {
		return nil, err
	}

	result := validate.Registry(reg, cfg)
	if result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration:\n%s", validate.FormatResult(result))
	}
	for _, issue := range result.Issues {
		slog.Warn("configuration warning", "issue", issue.String())
	}

	client := httpclient.New(
		httpclient.WithRateLimit(cfg.RPS),
		httpclient.WithTimeout(config.Duration(cfg.HTTPTimeout, 120*time.Second)),
	)

	if err := reg.Bind(providerSettings(cfg), client); err != nil {
		return nil, err
	}
	return reg, nil
}

func providerSettings(cfg *config.Config) map[string]backend.Settings {
	return map[string]backend.Settings{
		"gemini":     {APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL},
		"groq":       {APIKey: cfg.Groq.APIKey, BaseURL: cfg.Groq.BaseURL},
		"openrouter": {APIKey: cfg.OpenRouter.APIKey, BaseURL: cfg.OpenRouter.BaseURL},
		"ollama":     {BaseURL: cfg.Ollama.BaseURL},
		"vertex":     {Project: cfg.Vertex.Project, Location: cfg.Vertex.Location},
	}
}

func configureLogging(level string) {
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
