package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantBody   string
	}{
		{name: "no checks", wantStatus: http.StatusOK, wantBody: "ok"},
		{
			name:       "all up",
			checks:     map[string]Pinger{"redis": func(context.Context) error { return nil }},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "one down",
			checks: map[string]Pinger{
				"redis": func(context.Context) error { return nil },
				"s3":    func(context.Context) error { return errors.New("unreachable") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checks, logger).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["status"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestParseListOpts(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"limit=10&offset=5", 10, 5},
		{"limit=-1&offset=-3", 50, 0},
		{"limit=9999", 500, 0},
		{"limit=abc", 50, 0},
	}
	for _, tt := range tests {
		opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/api/runs?"+tt.query, nil))
		assert.Equal(t, tt.wantLimit, opts.Limit, tt.query)
		assert.Equal(t, tt.wantOffset, opts.Offset, tt.query)
	}
}
