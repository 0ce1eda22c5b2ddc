package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	replies []string
	errs    []error
	calls   int
}

func (c *scriptedClient) Extract(ctx context.Context, _ []byte, _ string) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func fastConfig(retries int) ServiceConfig {
	return ServiceConfig{Timeout: time.Second, MaxRetries: retries, Backoff: time.Millisecond}
}

func TestService_RetriesServiceErrors(t *testing.T) {
	client := &scriptedClient{
		errs:    []error{errors.New("502 bad gateway"), errors.New("timeout"), nil},
		replies: []string{"", "", `{"invoiceNumber":"A-1","totalAmount":"10"}`},
	}
	svc := NewService(client, fastConfig(3))

	f, err := svc.ExtractFields(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, "A-1", f.InvoiceNumber)
	assert.True(t, f.TotalAmount.Equal(decimal.NewFromInt(10)))
}

func TestService_ExhaustedRetriesIsServiceError(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("down"), errors.New("down")}}
	svc := NewService(client, fastConfig(1))

	_, err := svc.ExtractFields(context.Background(), []byte("img"), "image/jpeg")
	require.Error(t, err)
	assert.Equal(t, 2, client.calls)
	assert.True(t, apperr.Is(err, apperr.KindExtractionService))
}

func TestService_ParseErrorIsNotRetried(t *testing.T) {
	client := &scriptedClient{replies: []string{"Sorry, I can't help with that."}}
	svc := NewService(client, fastConfig(3))

	_, err := svc.ExtractFields(context.Background(), []byte("img"), "image/jpeg")
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
	assert.True(t, apperr.Is(err, apperr.KindExtractionParse))
}

func TestService_CancelledContext(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	svc := NewService(client, ServiceConfig{Timeout: time.Second, MaxRetries: 2, Backoff: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.ExtractFields(ctx, []byte("img"), "image/jpeg")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindExtractionService))
	assert.Equal(t, 1, client.calls)
}

func TestOpenAIClient_Extract(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "`+"```json\\n{\\\"invoiceNumber\\\": \\\"INV-7\\\"}\\n```"+`"}}]
		}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	raw, err := client.Extract(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, raw, "INV-7")

	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.EqualValues(t, 300, gotBody["max_tokens"])
	encoded, _ := json.Marshal(gotBody["messages"])
	assert.Contains(t, string(encoded), "data:image/jpeg;base64,/9j/")
	assert.Contains(t, string(encoded), "invoiceNumber")

	f, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", f.InvoiceNumber)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	svc := NewService(client, fastConfig(0))
	_, err = svc.ExtractFields(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindExtractionService))
	assert.False(t, strings.Contains(apperr.PublicMessage(err), "overloaded"))
}

func TestService_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"unauthorized", http.StatusUnauthorized, 1},
		{"bad request", http.StatusBadRequest, 1},
		{"rate limited", http.StatusTooManyRequests, 3},
		{"server error", http.StatusInternalServerError, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error": {"message": "nope", "type": "invalid_request_error"}}`)
			}))
			defer srv.Close()

			client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			svc := NewService(client, fastConfig(2))
			_, err = svc.ExtractFields(context.Background(), []byte("img"), "image/png")
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindExtractionService))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.False(t, retryable(fmt.Errorf("wrapped: %w", &openai.APIError{HTTPStatusCode: http.StatusForbidden})))
	assert.True(t, retryable(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}))
	assert.False(t, retryable(&openai.RequestError{HTTPStatusCode: http.StatusNotFound}))
	assert.True(t, retryable(&openai.RequestError{HTTPStatusCode: http.StatusTooManyRequests}))
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}
