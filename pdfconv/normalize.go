package pdfconv

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
)

// Options tune the conversion.
type Options struct {
	JPEGQuality int           // defaults to 80
	Timeout     time.Duration // defaults to 60s
	TempDir     string        // defaults to os.TempDir()
}

// Normalizer converts stored PDFs into a stored JPEG of their first page.
type Normalizer struct {
	store  storage.FileStore
	raster Rasterizer
	opts   Options
	log    *slog.Logger
}

// NewNormalizer returns a Normalizer writing its output to store.
func NewNormalizer(store storage.FileStore, raster Rasterizer, opts Options) *Normalizer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Normalizer{
		store:  store,
		raster: raster,
		opts:   opts,
		log:    slog.With("component", "pdfconv"),
	}
}

// Normalize returns f unchanged unless it is a PDF. For a PDF it stores the
// JPEG rendering of page 1, deletes the source PDF from the store and
// returns the JPEG. The result keeps Kind == models.FilePDF. On failure the
// source is left in place for the caller to discard.
func (n *Normalizer) Normalize(ctx context.Context, f storage.StoredFile) (storage.StoredFile, error) {
	const op = "pdfconv.Normalize"
	if f.Kind != models.FilePDF {
		return f, nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	work, err := os.MkdirTemp(n.opts.TempDir, "pdfconv-*")
	if err != nil {
		return f, apperr.Conversion(op, fmt.Errorf("creating work dir: %w", err))
	}
	defer os.RemoveAll(work)

	pdfPath := filepath.Join(work, "source.pdf")
	pngPath := filepath.Join(work, "page.png")

	if err := n.fetch(ctx, f.Name, pdfPath); err != nil {
		return f, apperr.Conversion(op, err)
	}
	if err := n.raster.RasterizeFirstPage(ctx, pdfPath, pngPath); err != nil {
		return f, apperr.Conversion(op, err)
	}
	data, err := reencode(pngPath, n.opts.JPEGQuality)
	if err != nil {
		return f, apperr.Conversion(op, err)
	}
	if err := os.Remove(pngPath); err != nil {
		n.log.Warn("failed to remove intermediate PNG", "path", pngPath, "error", err)
	}

	jpegName := strings.TrimSuffix(f.Name, filepath.Ext(f.Name)) + "-1.jpg"
	if err := n.store.Put(ctx, jpegName, bytes.NewReader(data), "image/jpeg"); err != nil {
		return f, apperr.Conversion(op, fmt.Errorf("storing JPEG: %w", err))
	}
	if err := n.store.Delete(ctx, f.Name); err != nil {
		n.log.Warn("failed to delete source PDF", "file", f.Name, "error", err)
	}

	n.log.Debug("pdf converted", "file", f.Name, "jpeg", jpegName, "bytes", len(data))
	return storage.StoredFile{
		Name:        jpegName,
		Path:        storage.PublicPrefix + jpegName,
		ContentType: "image/jpeg",
		Kind:        models.FilePDF,
		Size:        int64(len(data)),
	}, nil
}

func (n *Normalizer) fetch(ctx context.Context, name, dst string) error {
	rc, err := n.store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", name, err)
	}
	return out.Close()
}

func reencode(pngPath string, quality int) ([]byte, error) {
	in, err := os.Open(pngPath)
	if err != nil {
		return nil, fmt.Errorf("opening rendered page: %w", err)
	}
	defer in.Close()

	img, err := png.Decode(in)
	if err != nil {
		return nil, fmt.Errorf("decoding rendered page: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
