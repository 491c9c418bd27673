package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oee-dashboard/analysis"
	"oee-dashboard/api"
	"oee-dashboard/charting"
	"oee-dashboard/config"
	"oee-dashboard/database"
	"oee-dashboard/etl"
	"oee-dashboard/jobs"
	"oee-dashboard/mart"
	"oee-dashboard/metrics"
)

// Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oee-dashboard",
		Short:         "Manufacturing OEE dashboard service",
		Long:          "OEE dashboard: production, downtime, defect and maintenance analytics over a shared in-memory store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newMartCmd())
	root.AddCommand(newChartsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oee-dashboard %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func initLogger(level string) (*zap.Logger, error) {
	var zapCfg zap.Config

	if level == "debug" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	return zapCfg.Build()
}

// seedStore fills the store with mock data and prints the per-entity counts.
func seedStore(cmd *cobra.Command, store *database.Store, cfg *config.Config) error {
	counts, err := etl.RunMockGeneration(store, cfg, time.Now())
	if err != nil {
		return fmt.Errorf("mock generation failed: %w", err)
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %d\n", k, counts[k])
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the ingest scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== OEE Dashboard - Manufacturing Performance Analysis ===")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	db, err := database.Initialize(cfg.AppDBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	repo := database.NewRepository(db)
	fmt.Fprintln(out, "✓ App database ready")

	metrics.Register()

	workerPool := jobs.NewWorkerPool(cfg.WorkerPoolSize, logger)
	defer workerPool.Stop()
	fmt.Fprintf(out, "✓ Worker pool started with %d workers\n", workerPool.Workers())

	store := database.NewStore()
	if cfg.MockData.Enabled {
		fmt.Fprintln(out, "✓ Seeding mock data")
		if err := seedStore(cmd, store, cfg); err != nil {
			return err
		}
	}

	martConn, err := mart.Open(cfg.MartDBPath)
	if err != nil {
		return fmt.Errorf("failed to open mart: %w", err)
	}
	defer martConn.Close()
	martBuilder := mart.NewMartBuilder(martConn, store, logger)
	fmt.Fprintln(out, "✓ Mart database ready")

	var source *sql.DB
	if cfg.Scheduler.Source == etl.SourcePostgres && !cfg.MockData.Enabled {
		source, err = etl.OpenSource(cfg)
		if err != nil {
			// The API still serves whatever is in the store.
			logger.Warn("source database unavailable", zap.Error(err))
		} else {
			defer source.Close()
			fmt.Fprintln(out, "✓ Source database connected")
		}
	}
	ingestor := etl.NewDataIngestor(cfg, store, source, logger)

	scheduler := etl.NewScheduler(cfg, ingestor, martBuilder, repo, logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()
	if cfg.Scheduler.Enabled {
		fmt.Fprintf(out, "✓ Scheduler started (%s)\n", cfg.Scheduler.Cron)
	}

	analyzer := analysis.NewAnalyzer(store, repo, cfg, workerPool, logger)
	handler := api.NewHandler(db, repo, cfg, martBuilder, analyzer, ingestor, logger)

	router := api.SetupRouter(handler)
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware(logger))

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(out, "✓ API server listening on %s\n", addr)
		fmt.Fprintln(out, "\nAPI Endpoints:")
		fmt.Fprintln(out, "  GET  /health")
		fmt.Fprintln(out, "  GET  /metrics")
		fmt.Fprintln(out, "  GET  /api/dashboard")
		fmt.Fprintln(out, "  POST /api/dashboard/stream")
		fmt.Fprintln(out, "  POST /api/dashboard/requests")
		fmt.Fprintln(out, "  GET  /api/charts/trend.png")
		fmt.Fprintln(out, "  POST /api/production/{id}/defect-corrections")
		fmt.Fprintln(out, "  POST /api/ingest")
		fmt.Fprintln(out, "  POST /api/mart/refresh")
		fmt.Fprintln(out, "\nPress Ctrl+C to shutdown")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	fmt.Fprintln(out, "\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	fmt.Fprintln(out, "Server exited")
	return nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Generate mock data and print what would be loaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mock data (seed %d, %d days):\n", cfg.MockData.Seed, cfg.MockData.TimeRangeDays)
			return seedStore(cmd, database.NewStore(), cfg)
		},
	}
}

func newMartCmd() *cobra.Command {
	martCmd := &cobra.Command{
		Use:   "mart",
		Short: "Manage the DuckDB reporting mart",
	}

	martCmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the mart from mock data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := initLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store := database.NewStore()
			if _, err := etl.RunMockGeneration(store, cfg, time.Now()); err != nil {
				return fmt.Errorf("mock generation failed: %w", err)
			}

			conn, err := mart.Open(cfg.MartDBPath)
			if err != nil {
				return err
			}
			defer conn.Close()

			stats, err := mart.NewMartBuilder(conn, store, logger).Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Mart refreshed: %d rows, %d machines, avg OEE %.3f (%dms)\n",
				stats.TotalRows, stats.UniqueMachines, stats.AvgOEE, stats.DurationMs)
			return nil
		},
	})

	return martCmd
}

func newChartsCmd() *cobra.Command {
	var (
		area      string
		outputDir string
	)

	chartsCmd := &cobra.Command{
		Use:   "charts",
		Short: "Render dashboard charts",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Render the charts of one area over mock data into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			now := time.Now()
			store := database.NewStore()
			if _, err := etl.RunMockGeneration(store, cfg, now); err != nil {
				return fmt.Errorf("mock generation failed: %w", err)
			}

			filter := analysis.FilterSpec{
				Area:     area,
				DateFrom: now.AddDate(0, 0, -cfg.MockData.TimeRangeDays),
				DateTo:   now,
			}
			analyzer := analysis.NewAnalyzer(store, nil, cfg, nil, zap.NewNop())
			res, err := analyzer.GetDashboardData(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return exportCharts(cmd, res, outputDir)
		},
	}
	exportCmd.Flags().StringVar(&area, "area", analysis.AllToken, "area to chart")
	exportCmd.Flags().StringVar(&outputDir, "out", "./charts", "output directory")
	chartsCmd.AddCommand(exportCmd)

	return chartsCmd
}

func exportCharts(cmd *cobra.Command, res *analysis.DashboardResult, outputDir string) error {
	gen := charting.NewGenerator()
	written := 0

	save := func(name string, data []byte, err error) error {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %s: %v\n", name, err)
			return nil
		}
		path, err := charting.SaveFile(data, name, outputDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", path)
		written++
		return nil
	}

	img, err := gen.TrendPNG(res.Performance.Trend)
	if err := save("oee_trend.png", img, err); err != nil {
		return err
	}
	img, err = gen.HeatmapSVG(res.Performance.Heatmap)
	if err := save("oee_heatmap.svg", img, err); err != nil {
		return err
	}
	img, err = gen.ParetoPNG("Defects by type", res.Quality.DefectPareto)
	if err := save("pareto_defects.png", img, err); err != nil {
		return err
	}
	img, err = gen.ParetoPNG("Downtime by reason", res.Downtime.Pareto)
	if err := save("pareto_downtime.png", img, err); err != nil {
		return err
	}

	if written == 0 {
		return charting.ErrNoData
	}
	return nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
