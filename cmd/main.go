package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ResourceAPI/internal/cache"
	"ResourceAPI/internal/config"
	"ResourceAPI/internal/controller"
	"ResourceAPI/internal/db"
	"ResourceAPI/internal/i18n"
	"ResourceAPI/internal/library"
	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/router"
	"ResourceAPI/internal/store"

	"github.com/spf13/cobra"
)

var (
	debugFlag bool
	downSteps int
	cfg       *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "resourceapi",
	Short:         "REST API over declared PostgreSQL resources",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init("."); err != nil {
			fmt.Fprintf(os.Stderr, "log init failed: %v\n", err)
		}
		logger.SetDebug(debugFlag)
		cfg = config.LoadConfig()
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the SQL migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 0
		if downSteps > 0 {
			steps = -downSteps
		}
		return db.Migrate(cfg.PostgresDSN, cfg.MigrationsDir, steps)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the declarations and the locale without serving",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		regs, err := library.Load(cfg.ResourcesDir, cfg.DefaultPerPage)
		if err != nil {
			return err
		}
		if _, err := i18n.Load(cfg.LocalesDir, cfg.Locale); err != nil {
			logger.Warn("locale_missing", map[string]any{"error": err.Error()})
		}
		for _, def := range regs.Resources.Definitions() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s/%s\n", def.Name, cfg.APIPrefix, def.Plural)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging")
	migrateCmd.Flags().IntVar(&downSteps, "down", 0, "roll back this many migrations instead of migrating up")
	rootCmd.AddCommand(serveCmd, migrateCmd, checkCmd)
}

func serve(ctx context.Context) error {
	if err := db.InitPostgres(cfg.PostgresDSN); err != nil {
		logger.Error("postgres_init_failed", map[string]any{"error": err.Error()})
		return err
	}
	defer db.ClosePostgres()
	logger.Info("postgres_connected", nil)

	db.InitRedis(cfg.CountCache.RedisAddr)
	if db.RDB != nil {
		if err := db.PingRedis(); err != nil {
			logger.Warn("redis_unavailable", map[string]any{"error": err.Error()})
		} else {
			logger.Info("redis_connected", map[string]any{"addr": cfg.CountCache.RedisAddr})
		}
	}

	regs, err := library.Load(cfg.ResourcesDir, cfg.DefaultPerPage)
	if err != nil {
		logger.Error("registry_init_failed", map[string]any{"error": err.Error()})
		return err
	}

	// localized messages are optional, T falls back to the key
	messages, err := i18n.Load(cfg.LocalesDir, cfg.Locale)
	if err != nil {
		logger.Warn("locales_disabled", map[string]any{"error": err.Error()})
	}

	ctrl := controller.New(regs.Resources, regs.Serializers, store.New(db.Pool),
		controller.WithPolicies(regs.Policies),
		controller.WithCountCache(cache.New(db.RDB, cfg.CountCache.TTL)),
		controller.WithMessages(messages),
	)
	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(ctrl, router.Options{
			Prefix:           cfg.APIPrefix,
			IdentityHeader:   cfg.IdentityHeader,
			AllowOrigin:      cfg.CORS.AllowOrigin,
			AllowCredentials: cfg.CORS.AllowCredentials,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server_start", map[string]any{"port": cfg.Port, "prefix": cfg.APIPrefix})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server_error", map[string]any{"error": err.Error()})
		return err
	}
	logger.Info("server_stopped", nil)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
