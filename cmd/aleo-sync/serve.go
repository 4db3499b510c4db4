package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/crawler"
	"github.com/octobees/aleo-sync/internal/database"
	"github.com/octobees/aleo-sync/internal/directory"
	"github.com/octobees/aleo-sync/internal/handler"
	middlewarepkg "github.com/octobees/aleo-sync/internal/middleware"
	"github.com/octobees/aleo-sync/internal/repository"
	"github.com/octobees/aleo-sync/internal/router"
	"github.com/octobees/aleo-sync/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the NIP lookup HTTP API",
	Long:  "Serves GET /api?nip= (live directory lookup with storage fallback), GET /companies and GET /healthz.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}
		engine, _ := cmd.Flags().GetString("browser")
		migrate, _ := cmd.Flags().GetBool("migrate")

		if cfg.Server.APIKey == "" {
			zap.L().Warn("API_KEY is not set; data routes will answer 500")
		}

		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if migrate {
			if _, err := database.Migrate(ctx, pool); err != nil {
				return err
			}
		}

		dir, err := directory.New(cfg.Crawl.BaseURL, directory.DefaultSelectors(), cfg.Crawl.PageSize)
		if err != nil {
			return err
		}
		b, closeBrowser, err := openBrowser(ctx, engine, cfg.Crawl)
		if err != nil {
			return err
		}
		defer closeBrowser()

		companiesRepo := repository.NewPGXCompaniesRepository(pool)
		lookup := service.NewLookupService(crawler.New(dir, b, companiesRepo), companiesRepo)

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true

		e.Use(middlewarepkg.RequestID())
		e.Use(middlewarepkg.Logging(zap.L().With(zap.String("component", "http"))))
		e.Use(echoMiddleware.Recover())

		router.Register(e, cfg.Server, router.Handlers{
			Health:    handler.NewHealthHandler(pool),
			Companies: handler.NewCompaniesHandler(service.NewCompaniesService(companiesRepo)),
			Lookup:    handler.NewLookupHandler(lookup),
		})

		serverErr := make(chan error, 1)
		go func() {
			zap.L().Info("http server listening", zap.String("port", cfg.Server.Port))
			serverErr <- e.Start(":" + cfg.Server.Port)
		}()

		select {
		case <-ctx.Done():
			zap.L().Info("shutting down")
		case err := <-serverErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "http server")
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("graceful shutdown failed", zap.Error(err))
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "listen port (overrides PORT)")
	serveCmd.Flags().String("browser", browserChrome, "page engine for live lookups: chrome or http")
	serveCmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
