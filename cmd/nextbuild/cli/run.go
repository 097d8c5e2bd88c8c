package cli

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/appbuild"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/config"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/health"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/image"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/logger"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/pipeline"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/secrets"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/source"
	"github.com/pouyahasanamreji/nextjs-dynamic-env-builder/internal/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the build-and-publish pipeline once, then idle",
	Run: func(cmd *cobra.Command, args []string) {
		// Local overrides for dev runs; harmless in production.
		_ = godotenv.Load()

		logger.Init(debug)

		cfg, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		tokenProvider := secrets.Static(cfg.GitHub.Token)
		if cfg.GitHub.Token == "" {
			tokenProvider = secrets.FromSecretsManager(cfg.GitHub.TokenSecret)
		}
		token, err := tokenProvider(ctx)
		if err != nil {
			slog.Error("failed to resolve credential", "error", err)
			os.Exit(1)
		}

		src := source.NewGitHubSource(cfg.GitHub.Org, cfg.GitHub.Repo, cfg.GitHub.Branch, token, cfg.Agent.Retry)
		app := appbuild.NewRunner(cfg.CheckoutDir())
		img := &image.Engine{Retry: cfg.Agent.Retry}
		store := status.New(cfg.Workspace.StatusDir)

		p := pipeline.New(cfg, token, src, app, img, store)
		if err := p.Execute(ctx); err != nil {
			os.Exit(1)
		}

		if cfg.Agent.Mode == config.ModeOnce {
			return
		}

		// Daemon mode stays resident so the container keeps running for
		// orchestration tooling; the health endpoint replaces a sleep loop.
		run := p.Run()
		srv := health.New(cfg.Agent.HealthAddr, func() health.Snapshot {
			return health.Snapshot{
				RunID:       run.ID.String(),
				Org:         cfg.GitHub.Org,
				Repo:        cfg.GitHub.Repo,
				Branch:      cfg.GitHub.Branch,
				Commit:      run.Hash,
				PushedTag:   run.PushedTag,
				CompletedAt: run.CompletedAt.Format(time.RFC3339),
			}
		})
		if err := srv.Serve(ctx); err != nil {
			slog.Error("health server failed", "error", err)
			os.Exit(1)
		}
		slog.Info("shutting down")
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
