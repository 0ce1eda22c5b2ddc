package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/satheeshds/invoicedesk/config"
	"github.com/satheeshds/invoicedesk/db"
	"github.com/satheeshds/invoicedesk/extraction"
	"github.com/satheeshds/invoicedesk/ingest"
	"github.com/satheeshds/invoicedesk/pdfconv"
	"github.com/satheeshds/invoicedesk/storage"
	"github.com/satheeshds/invoicedesk/store"
	"github.com/satheeshds/invoicedesk/titles"
)

// app holds the components shared by the subcommands. Everything that
// holds a connection is registered in closers.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	repo    *store.Store
	closers []io.Closer
}

func openApp(ctx context.Context, c *config.Config) (*app, error) {
	if err := c.RequireDatabase(); err != nil {
		return nil, err
	}
	database, err := db.Open(ctx, c.DatabaseURL, c.DBMaxOpenConns)
	if err != nil {
		return nil, err
	}
	return &app{cfg: c, db: database, repo: store.New(database), closers: []io.Closer{database}}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func (a *app) migrate(ctx context.Context) error {
	if err := db.Migrate(ctx, a.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (a *app) fileStore(ctx context.Context) (storage.FileStore, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:   sc.S3Bucket,
			Region:   sc.S3Region,
			Endpoint: sc.S3Endpoint,
		})
	case "gcs":
		s, err := storage.NewGCSStore(ctx, storage.GCSConfig{Bucket: sc.GCSBucket})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		return storage.NewLocalStore(sc.UploadDir)
	}
}

func (a *app) extractor(ctx context.Context) (*extraction.Service, error) {
	ec := a.cfg.Extraction
	var client extraction.Client
	switch ec.Provider {
	case "vertex":
		vc, err := extraction.NewVertexClient(ctx, extraction.VertexConfig{
			ProjectID: ec.VertexProject,
			Location:  ec.VertexLocation,
			Model:     ec.VertexModel,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, vc)
		client = vc
	default:
		oc, err := extraction.NewOpenAIClient(extraction.OpenAIConfig{
			APIKey:  ec.OpenAIAPIKey,
			Model:   ec.OpenAIModel,
			BaseURL: ec.OpenAIBaseURL,
		})
		if err != nil {
			return nil, err
		}
		client = oc
	}
	return extraction.NewService(client, extraction.ServiceConfig{
		Timeout:    ec.Timeout,
		MaxRetries: ec.MaxRetries,
		RPS:        ec.RPS,
	}), nil
}

func (a *app) normalizer(files storage.FileStore) *pdfconv.Normalizer {
	pc := a.cfg.PDF
	return pdfconv.NewNormalizer(files, pdfconv.PopplerRasterizer{Binary: pc.PdftoppmPath, DPI: pc.DPI}, pdfconv.Options{
		JPEGQuality: pc.JPEGQuality,
		Timeout:     pc.Timeout,
	})
}

func (a *app) titles() (*titles.Allocator, error) {
	if a.cfg.TitleSequence == "redis" {
		seq, err := titles.NewRedisSequence(a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, seq)
		return titles.NewAllocator(a.repo, seq), nil
	}
	return titles.NewAllocator(a.repo, store.NewSequence(a.db)), nil
}

func (a *app) reconciler() *ingest.Reconciler {
	return ingest.NewReconciler(a.repo, a.cfg.ReconcileEvery)
}
