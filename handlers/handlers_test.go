package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/ingest"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/satheeshds/invoicedesk/storage"
	"github.com/satheeshds/invoicedesk/store"
	"github.com/satheeshds/invoicedesk/titles"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 32)...)

type passthrough struct{}

func (passthrough) Normalize(_ context.Context, f storage.StoredFile) (storage.StoredFile, error) {
	return f, nil
}

type stubExtractor struct{ fields models.InvoiceFields }

func (s stubExtractor) ExtractFields(context.Context, []byte, string) (models.InvoiceFields, error) {
	return s.fields.WithDefaults(), nil
}

// newTestServer wires the handlers over a mocked database and a temporary
// local file store.
func newTestServer(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	repo := store.New(db)
	ex := stubExtractor{fields: models.InvoiceFields{
		InvoiceNumber: "INV-1", CompanyName: "Acme", InvoiceDate: "12-01-2024",
		GrossAmount: decimal.NewFromInt(100), VATTotal: decimal.NewFromInt(5), TotalAmount: decimal.NewFromInt(105),
	}}

	Pipeline = ingest.NewPipeline(repo, storage.NewUploader(files, storage.Limits{}), passthrough{}, ingest.NewSources(ex, files))
	Review = ingest.NewReview(repo, files)
	Titles = titles.NewAllocator(repo, nil)
	Ledgers = repo
	Files = files

	r := chi.NewRouter()
	r.Get("/uploads/{name}", ServeUpload)
	r.Route("/api/v1", func(r chi.Router) { Routes(r, testSecret) })
	return r, mock
}

func token(t *testing.T, subject, role string, perms map[string]map[string]bool) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role:        role,
		Permissions: perms,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func adminToken(t *testing.T) string { return token(t, "user-1", AdminRole, nil) }

func do(h http.Handler, method, path, tok string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (Response, map[string]any) {
	t.Helper()
	var raw struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
		Kind  string          `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	var data map[string]any
	if len(raw.Data) > 0 && raw.Data[0] == '{' {
		require.NoError(t, json.Unmarshal(raw.Data, &data))
	}
	return Response{Error: raw.Error, Kind: raw.Kind}, data
}

type part struct {
	field, filename, contentType string
	data                         []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...part) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestAuth(t *testing.T) {
	h, _ := newTestServer(t)
	viewer := token(t, "user-2", "staff", map[string]map[string]bool{"documents": {"view": true}})

	tests := []struct {
		name   string
		tok    string
		want   int
		method string
		path   string
	}{
		{"no token", "", http.StatusUnauthorized, http.MethodGet, "/api/v1/ledgers"},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized, http.MethodGet, "/api/v1/ledgers"},
		{"missing permission", viewer, http.StatusForbidden, http.MethodGet, "/api/v1/ledgers"},
		{"missing action", viewer, http.StatusForbidden, http.MethodDelete, "/api/v1/documents/1"},
		{"bad id passes auth", viewer, http.StatusBadRequest, http.MethodGet, "/api/v1/documents/abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.path, tt.tok, nil, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok := token(t, "user-1", AdminRole, nil)
	_, err := ParseToken([]byte("other"), tok)
	assert.Error(t, err)

	claims, err := ParseToken([]byte(testSecret), tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.Can("anything", "delete"))
}

func TestJWTAuth_DisabledRunsAsAdmin(t *testing.T) {
	r := chi.NewRouter()
	r.Use(JWTAuth(""))
	r.With(RequirePermission("ledger", "delete")).Get("/x", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "ok")
	})
	rec := do(r, http.MethodGet, "/x", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{apperr.Validation("op", "title", "title is required"), http.StatusBadRequest, "title is required"},
		{apperr.NotFound("op", "document not found"), http.StatusNotFound, "document not found"},
		{apperr.Conflict("op", "title", "document title already exists"), http.StatusConflict, "document title already exists"},
		{apperr.Conversion("op", errors.New("pdftoppm exited 1")), http.StatusUnprocessableEntity, "PDF conversion failed"},
		{apperr.ExtractionService("op", errors.New("503")), http.StatusBadGateway, ""},
		{apperr.ExtractionParse("op", "garbage", errors.New("bad json")), http.StatusBadGateway, "could not parse extraction response"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "an unexpected error occurred"},
	}
	for _, tt := range tests {
		t.Run(string(apperr.KindOf(tt.err)), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(apperr.KindOf(tt.err)), resp.Kind)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error)
			}
			assert.NotContains(t, resp.Error, "connection refused")
		})
	}
}

func TestUploadDocument_RejectsBeforeTouchingStorage(t *testing.T) {
	h, _ := newTestServer(t)
	img := part{"image", "a.png", "image/png", pngBytes}

	tests := []struct {
		name   string
		fields map[string]string
		files  []part
		want   int
	}{
		{"invalid document type", map[string]string{"documentType": "receipts", "title": "T"}, []part{img}, http.StatusBadRequest},
		{"bad document id", map[string]string{"documentType": "purchase", "documentId": "x"}, []part{img}, http.StatusBadRequest},
		{"negative sales amount", map[string]string{"documentType": "sales", "title": "T", "totalAmount": "-3"}, nil, http.StatusBadRequest},
		{"sales amount beyond column range", map[string]string{"documentType": "sales", "title": "T", "grossAmount": "100000000000000"}, nil, http.StatusBadRequest},
		{"purchase without file", map[string]string{"documentType": "purchase", "title": "T"}, nil, http.StatusBadRequest},
		{"too many files", map[string]string{"documentType": "purchase", "title": "T"}, []part{img, img, img, img, img, img}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.files...)
			rec := do(h, http.MethodPost, "/api/v1/documents/upload", adminToken(t), body, ct)
			assert.Equal(t, tt.want, rec.Code)
			resp, _ := decode(t, rec)
			assert.Equal(t, string(apperr.KindValidation), resp.Kind)
		})
	}
}

func TestUploadDocument_CreatesDocument(t *testing.T) {
	h, mock := newTestServer(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents WHERE title = $1)")).
		WithArgs("DOC-UP").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM customers WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM invoice_data")).
		WithArgs("12-01-2024", "INV-1", "Acme").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invoice_data")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(70, now, now))
	mock.ExpectCommit()

	body, ct := multipartBody(t,
		map[string]string{"documentType": "purchase", "title": "DOC-UP"},
		part{"image", "receipt.png", "image/png", pngBytes})
	rec := do(h, http.MethodPost, "/api/v1/documents/upload", adminToken(t), body, ct)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := decode(t, rec)
	assert.Equal(t, float64(1), data["succeeded"])
	assert.Equal(t, float64(0), data["failed"])
	assert.Equal(t, float64(7), data["document_id"])
	doc := data["document"].(map[string]any)
	assert.Equal(t, "DOC-UP", doc["title"])
	assert.Equal(t, "105", doc["total_amount"])
}

func TestUploadRequest_SalesFieldSpellings(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"upper case", map[string]string{"TRNnumber": "100234567800003", "VATtotal": "5.5"}},
		{"camel case", map[string]string{"trnNumber": "100234567800003", "vatTotal": "5.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fields["documentType"] = "sales"
			tt.fields["totalAmount"] = "105.123456"
			body, ct := multipartBody(t, tt.fields)
			r := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
			r.Header.Set("Content-Type", ct)

			_, supplied, err := uploadRequest(r)
			require.NoError(t, err)
			assert.Equal(t, "100234567800003", supplied.TRNNumber)
			assert.Equal(t, "5.5", supplied.VATTotal.String())
			assert.Equal(t, "105.1235", supplied.TotalAmount.String())
		})
	}
}

func TestUploadDocument_TitleConflict(t *testing.T) {
	h, mock := newTestServer(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents WHERE title = $1)")).
		WithArgs("DOC0001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	body, ct := multipartBody(t,
		map[string]string{"documentType": "purchase", "title": "DOC0001"},
		part{"image", "receipt.png", "image/png", pngBytes})
	rec := do(h, http.MethodPost, "/api/v1/documents/upload", adminToken(t), body, ct)

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "document title already exists", resp.Error)
}

func TestNextTitle(t *testing.T) {
	h, mock := newTestServer(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT title FROM documents WHERE title LIKE $1")).
		WillReturnRows(sqlmock.NewRows([]string{"title"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM documents WHERE title = $1)")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	rec := do(h, http.MethodGet, "/api/v1/documents/next-title", adminToken(t), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decode(t, rec)
	title, _ := data["title"].(string)
	_, seq, err := titles.ParseTitle(title)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestGetDocument_NotFound(t *testing.T) {
	h, mock := newTestServer(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := do(h, http.MethodGet, "/api/v1/documents/42", adminToken(t), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "not_found", resp.Kind)
}

func TestChangeInvoiceStatus_RequiresLedger(t *testing.T) {
	h, _ := newTestServer(t)
	body := bytes.NewBufferString(`{"bill_status":"approved"}`)
	rec := do(h, http.MethodPatch, "/api/v1/invoices/70/status", adminToken(t), body, "application/json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "ledger not selected", resp.Error)
}

func TestLedgers(t *testing.T) {
	h, mock := newTestServer(t)
	tok := adminToken(t)

	rec := do(h, http.MethodPost, "/api/v1/ledgers", tok, bytes.NewBufferString(`{"name":"  "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/ledgers", tok, bytes.NewBufferString(`{"name":"Not Selected"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/v1/ledgers", tok, bytes.NewBufferString(`{bad`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO ledgers")).
		WithArgs("Travel", nil, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_by", "updated_by", "created_at", "updated_at"}).
			AddRow(3, "Travel", nil, "user-1", "user-1", now, now))
	rec = do(h, http.MethodPost, "/api/v1/ledgers", tok, bytes.NewBufferString(`{"name":" Travel "}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := decode(t, rec)
	assert.Equal(t, "Travel", data["name"])

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ledgers WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rec = do(h, http.MethodDelete, "/api/v1/ledgers/3", tok, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateLedger(t *testing.T) {
	h, mock := newTestServer(t)
	editor := token(t, "user-2", "staff", map[string]map[string]bool{"ledger": {"edit": true}})
	viewer := token(t, "user-3", "staff", map[string]map[string]bool{"ledger": {"view": true}})

	rec := do(h, http.MethodPatch, "/api/v1/ledgers/3", viewer, bytes.NewBufferString(`{"name":"Trips"}`), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodPatch, "/api/v1/ledgers/3", editor, bytes.NewBufferString(`{"name":"not selected"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE ledgers SET")).
		WithArgs(int64(3), "Trips", nil, "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_by", "updated_by", "created_at", "updated_at"}).
			AddRow(3, "Trips", nil, "user-1", "user-2", now, now))
	rec = do(h, http.MethodPatch, "/api/v1/ledgers/3", editor, bytes.NewBufferString(`{"name":" Trips "}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := decode(t, rec)
	assert.Equal(t, "Trips", data["name"])
	assert.Equal(t, "user-2", data["updated_by"])

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE ledgers SET")).
		WithArgs(int64(4), "Travel", nil, "user-2").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	rec = do(h, http.MethodPatch, "/api/v1/ledgers/4", editor, bytes.NewBufferString(`{"name":"Travel"}`), "application/json")
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "ledger name already exists", resp.Error)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"ok"`))
}

func TestServeUpload(t *testing.T) {
	h, _ := newTestServer(t)
	require.NoError(t, Files.Put(context.Background(), "abc-scan.png", bytes.NewReader(pngBytes), "image/png"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/abc-scan.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
