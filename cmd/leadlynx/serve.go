// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadlynx/internal/api"
	"leadlynx/internal/api/handlers"
	"leadlynx/internal/banner"
	"leadlynx/internal/database/repositories"
	"leadlynx/internal/enrichment"
	"leadlynx/internal/ingestion"
	"leadlynx/internal/realtime"
	"leadlynx/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracking endpoint and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		banner.Print(cfg.Addr())
		gin.SetMode(cfg.Server.GinMode)

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		geoip, err := enrichment.NewGeoIPEnricher(cfg.GeoIP.CityDB, cfg.GeoIP.CountryDB, cfg.GeoIP.ASNDB,
			a.store.IPLookups, logger, cfg.GeoIP.CacheSize)
		if err != nil {
			return err
		}
		defer geoip.Close()
		if err := geoip.LoadCache(ctx); err != nil {
			logger.Warn("Failed to warm GeoIP cache", logger.Args("error", err))
		}

		providers, err := enrichment.NewTelecomProviders(cfg.Enrichment.TelecomProviderList, logger)
		if err != nil {
			return err
		}
		defer providers.Close()

		companies := enrichment.NewCompanyDirectory(a.store.Catalog, logger)
		if err := companies.Reload(ctx); err != nil {
			logger.Warn("Failed to load company ranges", logger.Args("error", err))
		}

		rules, err := workflow.Load(cfg.Enrichment.WorkflowFile)
		if err != nil {
			return err
		}
		evaluator := workflow.NewEvaluator(rules, logger)

		metrics := realtime.NewMetricsCollector(logger)
		metrics.Start(time.Second)
		defer metrics.Stop()

		cleanup := a.cleanupService()
		cleanup.Start()
		defer cleanup.Stop()

		gateway := ingestion.NewGateway(a.registry, a.recorder, a.store.Catalog, evaluator,
			geoip, ingestion.NewLogMailer(logger), metrics, logger)
		statsRepo := repositories.NewStatsRepository(a.db, logger)

		router := api.NewRouter(api.Handlers{
			Track: handlers.NewTrackHandler(gateway, logger),
			Leads: handlers.NewLeadHandler(handlers.LeadDeps{
				Store:       a.store,
				Engine:      a.engine,
				Calculator:  a.calc,
				Registry:    a.registry,
				Blacklister: a.blacklister,
				Rescorer:    a.rescorer,
				Companies:   companies,
				Providers:   providers,
				Labels:      cfg.Labels,
			}, logger),
			Catalog:   handlers.NewCatalogHandler(a.store.Catalog, companies, logger),
			Dashboard: handlers.NewDashboardHandler(statsRepo, logger),
			System: handlers.NewSystemHandler(statsRepo, a.store.Visitors, cleanup, a.rescorer, metrics,
				logger, cfg.Database.Path, cfg.Cleanup.UnknownDays),
			Realtime: handlers.NewRealtimeHandler(metrics, logger),
		}, logger)

		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", logger.Args("addr", server.Addr, "workflow_rules", len(rules)))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.WithCaller().Error("HTTP server failed", logger.Args("error", err))
				return err
			}
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
