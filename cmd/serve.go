package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/satheeshds/invoicedesk/docs"
	"github.com/satheeshds/invoicedesk/handlers"
	"github.com/satheeshds/invoicedesk/ingest"
	"github.com/satheeshds/invoicedesk/storage"
	"github.com/spf13/cobra"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run migrations, then serve the API on PORT together with the background
reconciler that repairs document totals left stale by failed updates.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("skip-migrate", false, "Do not run migrations on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if skip, _ := cmd.Flags().GetBool("skip-migrate"); !skip {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}

	files, err := a.fileStore(ctx)
	if err != nil {
		return fmt.Errorf("opening file store: %w", err)
	}
	extractor, err := a.extractor(ctx)
	if err != nil {
		return fmt.Errorf("creating extraction client: %w", err)
	}
	allocator, err := a.titles()
	if err != nil {
		return fmt.Errorf("creating title sequence: %w", err)
	}
	limits := storage.Limits{MaxBytes: cfg.Storage.MaxBytes, MaxFiles: cfg.Storage.MaxFiles}

	// Set shared services for handlers
	handlers.Pipeline = ingest.NewPipeline(a.repo, storage.NewUploader(files, limits), a.normalizer(files), ingest.NewSources(extractor, files))
	handlers.Review = ingest.NewReview(a.repo, files)
	handlers.Titles = allocator
	handlers.Ledgers = a.repo
	handlers.Files = files
	handlers.Limits = limits

	if cfg.PublicBaseURL != "" {
		if u, err := url.Parse(cfg.PublicBaseURL); err == nil && u.Host != "" {
			docs.SwaggerInfo.Host = u.Host
			docs.SwaggerInfo.Schemes = []string{u.Scheme}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router(cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "address", srv.Addr, "storage", cfg.Storage.Backend, "extraction", cfg.Extraction.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.reconciler().Run(ctx)
	})
	return g.Wait()
}

func router(jwtSecret string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handlers.Health)
	r.Get(storage.PublicPrefix+"{name}", handlers.ServeUpload)

	// API routes with bearer auth
	r.Route("/api/v1", func(r chi.Router) {
		handlers.Routes(r, jwtSecret)
	})

	// Swagger UI
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	return r
}
