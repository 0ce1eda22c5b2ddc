// Package pdfconv turns the first page of an uploaded PDF into a JPEG so the
// extraction step only ever sees images.
package pdfconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Rasterizer renders page 1 of a PDF into a PNG file.
type Rasterizer interface {
	RasterizeFirstPage(ctx context.Context, pdfPath, pngPath string) error
}

// PopplerRasterizer shells out to poppler's pdftoppm after checking the
// document with pdfcpu, so corrupt uploads fail fast with a readable error.
type PopplerRasterizer struct {
	Binary string // defaults to "pdftoppm"
	DPI    int    // defaults to 150
}

// ValidatePDF checks that path is a readable PDF with at least one page.
func ValidatePDF(path string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if pages < 1 {
		return 0, errors.New("PDF has no pages")
	}
	return pages, nil
}

func (p PopplerRasterizer) RasterizeFirstPage(ctx context.Context, pdfPath, pngPath string) error {
	if filepath.Ext(pngPath) != ".png" {
		return fmt.Errorf("output path %s must end in .png", pngPath)
	}
	if _, err := ValidatePDF(pdfPath); err != nil {
		return err
	}

	bin := p.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 150
	}

	// -singlefile writes exactly <prefix>.png
	prefix := strings.TrimSuffix(pngPath, filepath.Ext(pngPath))
	cmd := exec.CommandContext(ctx, bin,
		"-png", "-f", "1", "-l", "1", "-singlefile",
		"-r", strconv.Itoa(dpi),
		pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pdftoppm: %w", ctx.Err())
		}
		return fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
