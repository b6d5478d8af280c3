package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecase/console/internal/config"
	"github.com/carecase/console/internal/domain/cancermgmt"
	"github.com/carecase/console/internal/domain/casework"
	"github.com/carecase/console/internal/domain/psychosocial"
	"github.com/carecase/console/internal/domain/screening"
	"github.com/carecase/console/internal/domain/survivorship"
	"github.com/carecase/console/internal/domain/treatment"
	"github.com/carecase/console/internal/domain/usermgmt"
	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/apiclient"
	"github.com/carecase/console/internal/platform/audit"
	"github.com/carecase/console/internal/platform/auth"
	"github.com/carecase/console/internal/platform/blobstore"
	"github.com/carecase/console/internal/platform/db"
	"github.com/carecase/console/internal/platform/flash"
	"github.com/carecase/console/internal/platform/middleware"
	"github.com/carecase/console/internal/platform/notification"
	"github.com/carecase/console/internal/platform/reporting"
	"github.com/carecase/console/internal/platform/websocket"
	"github.com/carecase/console/migrations"
)

const sweepInterval = time.Minute

func main() {
	rootCmd := &cobra.Command{
		Use:   "console-server",
		Short: "Case management console backend",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the console server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit database schema",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			logger := newLogger("production")

			ctx := context.Background()
			pool, err := openAuditPool(ctx, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS, schema, logger)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			logger := newLogger("production")

			ctx := context.Background()
			pool, err := openAuditPool(ctx, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrations.FS, schema, logger)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func openAuditPool(ctx context.Context, logger zerolog.Logger) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.AuditEnabled() {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
}

// exportOptions are the flags of the export command.
type exportOptions struct {
	feature string
	status  string
	search  string
	month   int
	year    int
	format  string
	output  string
	token   string
}

func (o exportOptions) criteria() listing.Criteria {
	return listing.Criteria{
		Search: strings.TrimSpace(o.search),
		Status: o.status,
		Month:  o.month,
		Year:   o.year,
	}
}

func exportCmd() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a filtered feature list to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			return runExport(cmd.Context(), cfg, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.feature, "feature", "", "Feature key, e.g. screenings")
	cmd.Flags().StringVar(&opts.status, "status", "", "Only records in this status")
	cmd.Flags().StringVar(&opts.search, "search", "", "Match patient ID or name")
	cmd.Flags().IntVar(&opts.month, "month", 0, "Only records submitted in this month (1-12)")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Only records submitted in this year")
	cmd.Flags().StringVar(&opts.format, "format", "xlsx", "Output format: xlsx, html or pdf")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file; defaults to a dated file name")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("CONSOLE_API_TOKEN"), "Bearer token for the remote API")
	cmd.MarkFlagRequired("feature")
	return cmd
}

func runExport(ctx context.Context, cfg *config.Config, opts exportOptions, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := reporting.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.month < 0 || opts.month > 12 {
		return fmt.Errorf("month must be between 1 and 12, got %d", opts.month)
	}

	client := apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		RetryCount: cfg.APIRetryCount,
		Token:      func(context.Context) string { return opts.token },
	}, logger)
	var pdf *reporting.PDFRenderer
	if format == reporting.FormatPDF {
		pdf = reporting.NewPDFRenderer(cfg.PrintChromePath, time.Minute, logger)
	}
	mods, err := buildModules(casework.Deps{
		Client:   client,
		Exporter: reporting.NewExporter(pdf),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	catalog := casework.NewCatalog(nil, logger, mods...)
	defer catalog.Close()

	mod, ok := catalog.Lookup(opts.feature)
	if !ok {
		return fmt.Errorf("unknown feature %q", opts.feature)
	}
	report, err := mod.ReportFor(ctx, opts.criteria())
	if err != nil {
		return err
	}

	path := opts.output
	if path == "" {
		path = format.FileName(report)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mod.Exporter().Export(ctx, f, format, report); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info().Str("feature", opts.feature).Int("rows", len(report.Rows)).Str("file", path).Msg("export written")
	return nil
}

// buildModules mounts every console feature in menu order.
func buildModules(deps casework.Deps) ([]casework.Mountable, error) {
	sections := []func(casework.Deps) ([]casework.Mountable, error){
		cancermgmt.Modules,
		screening.Modules,
		treatment.Modules,
		survivorship.Modules,
		psychosocial.Modules,
		usermgmt.Modules,
	}
	var all []casework.Mountable
	for _, build := range sections {
		mods, err := build(deps)
		if err != nil {
			return nil, err
		}
		all = append(all, mods...)
	}
	return all, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// server holds the wired console and the resources to release on shutdown.
type server struct {
	echo    *echo.Echo
	catalog *casework.Catalog
	center  *notification.Center
	blobs   blobstore.BlobStore
	closers []func() error
}

func (s *server) sweep() {
	s.center.Sweep()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newServer wires the console. pool may be nil, in which case outcomes are
// audited to the log only.
func newServer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("2M", cfg.UploadLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	srv := &server{echo: e}

	// Push channel
	hub := websocket.NewHub(logger)
	srv.center = notification.NewCenter(cfg.NotifyTTL, hub, logger)

	// Flash messages
	store, closeFlash, err := flash.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("open flash store: %w", err)
	}
	srv.closers = append(srv.closers, closeFlash)
	if cfg.FlashKey != "" {
		key, err := flash.ParseKey(cfg.FlashKey)
		if err != nil {
			srv.close()
			return nil, err
		}
		if store, err = flash.NewSealedStore(store, key); err != nil {
			srv.close()
			return nil, err
		}
	}

	// Audit trail
	var auditStore audit.Store
	if pool != nil {
		auditStore = audit.NewPgStore(pool)
	}
	trail := audit.NewTrail(auditStore, logger)

	srv.blobs = blobstore.NewInMemoryBlobStore()

	client := apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		RetryCount: cfg.APIRetryCount,
		Token:      auth.TokenFromContext,
	}, logger)

	mods, err := buildModules(casework.Deps{
		Client:   client,
		Center:   srv.center,
		Trail:    trail,
		Flash:    store,
		Blobs:    srv.blobs,
		Exporter: reporting.NewExporter(reporting.NewPDFRenderer(cfg.PrintChromePath, time.Minute, logger)),
		Events:   hub,
		IdleTTL:  cfg.ScreenIdleTTL,
		Logger:   logger,
	})
	if err != nil {
		srv.close()
		return nil, err
	}
	srv.catalog = casework.NewCatalog(store, logger, mods...)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	var pinger db.Pinger
	if pool != nil {
		pinger = pool
	}
	e.GET("/health/db", db.HealthHandler(pinger))

	// Console API
	api := e.Group("/console/v1")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		var key []byte
		if cfg.AuthSigningKey != "" {
			key = []byte(cfg.AuthSigningKey)
		}
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		}))
	}

	srv.catalog.RegisterRoutes(api)
	notification.NewNotificationHandler(srv.center).RegisterRoutes(api)
	blobstore.NewBlobHandler(srv.blobs).RegisterRoutes(api)
	websocket.NewWebSocketHandler(hub, cfg.CORSOrigins).RegisterRoutes(api)
	audit.NewHandler(trail).RegisterRoutes(api.Group("/admin", auth.RequireRole(auth.RoleAdmin)))

	return srv, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Audit database
	var pool *pgxpool.Pool
	if cfg.AuditEnabled() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to audit database")
	}

	srv, err := newServer(ctx, cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire console")
	}
	defer srv.close()

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		srv.catalog.Run(ctx, sweepInterval, srv.sweep, func() {
			n, err := srv.blobs.Purge(ctx, time.Now().Add(-cfg.ScreenIdleTTL))
			if err != nil {
				logger.Warn().Err(err).Msg("failed to purge staged uploads")
			} else if n > 0 {
				logger.Debug().Int("purged", n).Msg("stale uploads purged")
			}
		})
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	<-sweeperDone
	logger.Info().Msg("server stopped")
	return nil
}
