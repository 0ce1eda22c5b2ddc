package pdfconv

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRasterizer writes a small solid PNG instead of invoking pdftoppm.
type fakeRasterizer struct {
	err   error
	calls int
}

func (f *fakeRasterizer) RasterizeFirstPage(_ context.Context, pdfPath, pngPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	out, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	defer out.Close()
	return png.Encode(out, img)
}

func setup(t *testing.T, raster Rasterizer) (*Normalizer, *storage.LocalStore, string) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	tmp := t.TempDir()
	return NewNormalizer(store, raster, Options{TempDir: tmp}), store, tmp
}

func putPDF(t *testing.T, store *storage.LocalStore, name string) storage.StoredFile {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), name, strings.NewReader("%PDF-1.4 fake"), "application/pdf"))
	return storage.StoredFile{Name: name, Path: storage.PublicPrefix + name, ContentType: "application/pdf", Kind: models.FilePDF}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestNormalize_ImagePassthrough(t *testing.T) {
	raster := &fakeRasterizer{}
	n, _, _ := setup(t, raster)

	in := storage.StoredFile{Name: "a.png", Path: "/uploads/a.png", Kind: models.FileImage}
	out, err := n.Normalize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Zero(t, raster.calls)
}

func TestNormalize_PDF(t *testing.T) {
	n, store, tmp := setup(t, &fakeRasterizer{})
	in := putPDF(t, store, "abc-invoice.pdf")

	out, err := n.Normalize(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "abc-invoice-1.jpg", out.Name)
	assert.Equal(t, "/uploads/abc-invoice-1.jpg", out.Path)
	assert.Equal(t, "image/jpeg", out.ContentType)
	assert.Equal(t, models.FilePDF, out.Kind)

	data, err := os.ReadFile(filepath.Join(store.Dir(), out.Name))
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), out.Size)

	// only the JPEG remains, no work files left behind
	assert.Equal(t, []string{"abc-invoice-1.jpg"}, listDir(t, store.Dir()))
	assert.Empty(t, listDir(t, tmp))
}

func TestNormalize_TwiceProducesIndependentJPEGs(t *testing.T) {
	n, store, tmp := setup(t, &fakeRasterizer{})

	first, err := n.Normalize(context.Background(), putPDF(t, store, "one-scan.pdf"))
	require.NoError(t, err)
	second, err := n.Normalize(context.Background(), putPDF(t, store, "two-scan.pdf"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, []string{"one-scan-1.jpg", "two-scan-1.jpg"}, listDir(t, store.Dir()))
	assert.Empty(t, listDir(t, tmp))
}

func TestNormalize_RasterizeFailure(t *testing.T) {
	n, store, tmp := setup(t, &fakeRasterizer{err: errors.New("corrupt xref table")})
	in := putPDF(t, store, "bad.pdf")

	_, err := n.Normalize(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConversion))

	// source left for the caller, no JPEG written
	assert.Equal(t, []string{"bad.pdf"}, listDir(t, store.Dir()))
	assert.Empty(t, listDir(t, tmp))
}

func TestNormalize_MissingSource(t *testing.T) {
	n, _, _ := setup(t, &fakeRasterizer{})
	_, err := n.Normalize(context.Background(), storage.StoredFile{Name: "gone.pdf", Kind: models.FilePDF})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConversion))
}

func TestPopplerRasterizer_RejectsCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("not a pdf at all"), 0644))

	err := PopplerRasterizer{Binary: "/nonexistent/pdftoppm"}.RasterizeFirstPage(context.Background(), pdfPath, filepath.Join(dir, "out.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PDF")
}
