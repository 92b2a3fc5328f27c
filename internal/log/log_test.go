package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

func jsonLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   NewHandler(buf, FormatJSON, slog.LevelDebug),
	})
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, FormatJSON, slog.LevelInfo)).Info("Hello", "k", 1)
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))

	buf.Reset()
	slog.New(NewHandler(&buf, FormatText, slog.LevelInfo)).Info("Hello", "k", 1)
	assert.Contains(t, buf.String(), "msg=Hello")

	buf.Reset()
	slog.New(NewHandler(&buf, "", slog.LevelWarn)).Info("Hidden")
	assert.Empty(t, buf.String())
	slog.New(NewHandler(&buf, FormatTint, slog.LevelWarn)).Warn("Shown")
	assert.Contains(t, buf.String(), "Shown")
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, ComponentLedger)

	logger.Info("Entry added", FieldEntryID, 3)
	rec := lastRecord(t, &buf)
	assert.Equal(t, ComponentLedger, rec[FieldComponent])
	assert.EqualValues(t, 3, rec[FieldEntryID])

	logger.WithComponent(ComponentStorage).Warn("Save slow")
	rec = lastRecord(t, &buf)
	assert.Equal(t, ComponentStorage, rec[FieldComponent])
	assert.Equal(t, ComponentLedger, logger.Component())
}

func TestFieldsToSliceIsSorted(t *testing.T) {
	entry := core.Entry{ID: 4, Amount: decimal.RequireFromString("12.5"), Unit: "EUR", Payer: "Alice", Category: "Home"}
	got := NewFields().WithEntry(entry).WithOperation(OpAdd).WithError(nil).ToSlice()

	assert.Equal(t, []any{
		FieldAmount, "12.50",
		FieldCategory, "Home",
		FieldEntryID, 4,
		FieldOperation, OpAdd,
		FieldPayer, "Alice",
		FieldUnit, "EUR",
	}, got)
}

func TestFromContextDefault(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	assert.Equal(t, ComponentApp, logger.Component())
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, ComponentApp)
	sl := NewStructuredLogger(logger)
	ctx := NewContext(context.Background(), logger)

	req := httptest.NewRequest(http.MethodPost, "/api/entries", nil)
	sl.LogHTTPEnd(ctx, req, http.StatusUnprocessableEntity, 3, "10.0.0.1")
	rec := lastRecord(t, &buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, false, rec[FieldSuccess])
	assert.Equal(t, ComponentHTTP, rec[FieldComponent])

	sl.LogError(ctx, "Save failed", errors.New("disk full"), ComponentStorage, OpSave, nil)
	rec = lastRecord(t, &buf)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "disk full", rec[FieldError])
	assert.Equal(t, OpSave, rec[FieldOperation])
}
