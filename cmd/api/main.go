package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"shaneshark.com/portfolio/internal/api"
	"shaneshark.com/portfolio/internal/app"
	"shaneshark.com/portfolio/internal/asr"
	"shaneshark.com/portfolio/internal/auth"
	"shaneshark.com/portfolio/internal/llm"
	"shaneshark.com/portfolio/internal/metrics"
	"shaneshark.com/portfolio/internal/orchestrator"
	"shaneshark.com/portfolio/internal/qa"
	"shaneshark.com/portfolio/internal/review"
	"shaneshark.com/portfolio/internal/sandbox"
	"shaneshark.com/portfolio/internal/session"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "api",
		Short:         "Portfolio backend API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (default $CONFIG_FILE)")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("API server failed")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := app.StartLogging(cfg, ""); err != nil {
		return err
	}
	log.Info().Str("env", cfg.Env).Msg("Starting portfolio-api service")

	metrics.Configure(cfg.Metrics.Business, cfg.Metrics.System)
	metrics.GetInstance().InitializeMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orchestrator.NewSignalHandler().HandleSignals(ctx, cancel)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	sessions, err := app.OpenSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	proxies, err := cfg.Server.ProxyPrefixes()
	if err != nil {
		return err
	}

	codes := auth.NewCodeService(st, app.Mailer(cfg), auth.NewHTTPSMSSender(cfg.SMS.Endpoint, cfg.SMS.Sender))
	server := &api.Server{
		QA:          qa.NewService(st, cfg.Hot.MaxItems),
		Admin:       auth.NewAdminService(cfg.Admin.Password, st, codes),
		Sessions:    session.NewManager(sessions, cfg.Session.Secret, cfg.Session.TTL, cfg.Server.CookieSecure),
		Review:      review.NewService(llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.Timeout)),
		Runner:      sandbox.NewRunner(cfg.Sandbox.Endpoint, cfg.Sandbox.Timeout),
		ASR:         asr.NewClient(cfg.ASR.BaseURL, cfg.ASR.Model, cfg.ASR.Token, cfg.ASR.Timeout),
		Store:       st,
		StoreName:   cfg.Store.Driver,
		HotInterval: cfg.Hot.Interval,
		ContextPath: cfg.Server.ContextPath,
		Origins:     cfg.Server.AllowedOrigins,
	}
	server.TrustedProxies = proxies

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.SetupRoutes(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sm := orchestrator.NewServiceManager(httpServer, orchestrator.DefaultShutdownTimeout)
	sm.AddTask("system-metrics", func(ctx context.Context) {
		metrics.RunSystemMetrics(ctx, cfg.Metrics.SystemInterval)
	})

	log.Info().Int("port", cfg.Server.Port).Str("context_path", cfg.Server.ContextPath).Msg("API Server starting")
	return sm.Run(ctx)
}
