package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warning ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, ComponentApp).WithComponent(ComponentWorker).With(FieldUserID, "u1")

	logger.Info("Sweep done", FieldCount, 3)

	assert.Equal(t, ComponentWorker, logger.Component())
	out := buf.String()
	assert.Contains(t, out, "component=worker")
	assert.Contains(t, out, "user_id=u1")
	assert.Contains(t, out, "count=3")
}

func TestFromContext(t *testing.T) {
	t.Run("should fall back to the default logger", func(t *testing.T) {
		logger := FromContext(context.Background())

		require.NotNil(t, logger)
		assert.Equal(t, "unknown", logger.Component())
	})

	t.Run("should return the stored logger", func(t *testing.T) {
		var buf bytes.Buffer
		stored := bufferLogger(&buf, ComponentHTTP)

		got := FromContext(WithContext(context.Background(), stored))

		assert.Same(t, stored, got)
	})
}

func TestComponentMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := bufferLogger(&buf, ComponentHTTP)

	var seen string
	h := ComponentMiddleware(ComponentAPI)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context()).Component()
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	h.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithContext(req.Context(), base)))

	assert.Equal(t, ComponentAPI, seen)
}

func TestStructuredLogger_LogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(bufferLogger(&buf, ComponentAPI))

	sl.LogError(context.Background(), "Request failed", errors.New("disk full"),
		ComponentAPI, OpCreate, NewFields().WithUserID("u1"))

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `error="disk full"`)
	assert.Contains(t, out, "operation=create")
	assert.Contains(t, out, "user_id=u1")
}
