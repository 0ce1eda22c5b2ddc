package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
)

// PublicPrefix is the URL path under which stored files are served.
const PublicPrefix = "/uploads/"

// Default upload limits.
const (
	DefaultMaxBytes = 100 << 20
	DefaultMaxFiles = 5
)

var allowedTypes = map[string]models.FileKind{
	"image/jpeg":      models.FileImage,
	"image/png":       models.FileImage,
	"application/pdf": models.FilePDF,
}

// Incoming is an uploaded file before it is persisted.
type Incoming struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// StoredFile is a persisted upload.
type StoredFile struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	ContentType string          `json:"content_type"`
	Kind        models.FileKind `json:"kind"`
	Size        int64           `json:"size"`
}

// Limits bounds a single request.
type Limits struct {
	MaxBytes int64
	MaxFiles int
}

// Uploader validates and persists incoming files.
type Uploader struct {
	store  FileStore
	limits Limits
	newID  func() string
}

// NewUploader returns an Uploader over store. Zero limits take the defaults.
func NewUploader(store FileStore, limits Limits) *Uploader {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultMaxBytes
	}
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = DefaultMaxFiles
	}
	return &Uploader{store: store, limits: limits, newID: uuid.NewString}
}

// Store returns the underlying file store.
func (u *Uploader) Store() FileStore { return u.store }

// Limits returns the effective limits.
func (u *Uploader) Limits() Limits { return u.limits }

// CheckCount validates the number of files in one request.
func (u *Uploader) CheckCount(n int) error {
	if n > u.limits.MaxFiles {
		return apperr.Validation("storage.CheckCount", "image",
			fmt.Sprintf("too many files: at most %d per request", u.limits.MaxFiles))
	}
	return nil
}

// Save validates in against the allow-list and size ceiling and persists it
// under a collision-free name. Nothing is left in the store on failure.
func (u *Uploader) Save(ctx context.Context, in Incoming) (StoredFile, error) {
	const op = "storage.Save"

	if in.Size > u.limits.MaxBytes {
		return StoredFile{}, apperr.Validation(op, "image", "file too large")
	}
	declared := mediaType(in.ContentType)
	if _, ok := allowedTypes[declared]; !ok {
		return StoredFile{}, apperr.Validation(op, "image", "invalid file type: only JPEG, PNG and PDF are allowed")
	}

	rc, err := in.Open()
	if err != nil {
		return StoredFile{}, apperr.Internal(op, fmt.Errorf("opening upload: %w", err))
	}
	defer rc.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return StoredFile{}, apperr.Internal(op, fmt.Errorf("reading upload: %w", err))
	}
	head = head[:n]
	sniffed := mediaType(http.DetectContentType(head))
	kind, ok := allowedTypes[sniffed]
	if !ok || sniffed != declared {
		return StoredFile{}, apperr.Validation(op, "image", "invalid file type: content does not match "+declared)
	}

	name := u.newID() + "-" + SanitizeFilename(in.Filename)
	counter := &countingReader{r: io.LimitReader(io.MultiReader(bytes.NewReader(head), rc), u.limits.MaxBytes+1)}
	if err := u.store.Put(ctx, name, counter, sniffed); err != nil {
		return StoredFile{}, apperr.Internal(op, err)
	}
	if counter.n > u.limits.MaxBytes {
		_ = u.store.Delete(ctx, name)
		return StoredFile{}, apperr.Validation(op, "image", "file too large")
	}

	return StoredFile{
		Name:        name,
		Path:        PublicPrefix + name,
		ContentType: sniffed,
		Kind:        kind,
		Size:        counter.n,
	}, nil
}

// Delete removes a stored file by name.
func (u *Uploader) Delete(ctx context.Context, name string) error {
	return u.store.Delete(ctx, name)
}

// NameFromPath returns the object name behind a public path, or "" when the
// path does not point into the upload namespace.
func NameFromPath(p string) string {
	if !strings.HasPrefix(p, PublicPrefix) {
		return ""
	}
	name := strings.TrimPrefix(p, PublicPrefix)
	if validName(name) != nil {
		return ""
	}
	return name
}

// SanitizeFilename keeps the base name of an uploaded file restricted to a
// safe character set.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.TrimLeft(b.String(), ".")
	s = strings.ReplaceAll(s, "..", "_")
	if len(s) > 100 {
		s = s[len(s)-100:]
	}
	if s == "" {
		return "file"
	}
	return s
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
