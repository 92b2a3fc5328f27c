package http

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		want    core.Period
		wantErr bool
	}{
		{name: "empty selects everything", query: url.Values{}, want: core.Period{}},
		{name: "year", query: url.Values{"year": {"2025"}}, want: core.Year(2025)},
		{name: "year and month", query: url.Values{"year": {"2025"}, "month": {"03"}}, want: core.Month(2025, 3)},
		{name: "whitespace", query: url.Values{"year": {" 2024 "}}, want: core.Year(2024)},
		{name: "month zero", query: url.Values{"month": {"0"}}, wantErr: true},
		{name: "month too big", query: url.Values{"month": {"13"}}, wantErr: true},
		{name: "not a number", query: url.Values{"year": {"twenty"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePeriod(tt.query)
			if tt.wantErr {
				var reqErr *requestError
				require.True(t, errors.As(err, &reqErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountField(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `12.5`, want: "12.50"},
		{in: `"12,345"`, want: "12.35"},
		{in: `"  7 "`, want: "7.00"},
		{in: `"-1"`, wantErr: true},
		{in: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var a amountField
			require.NoError(t, json.Unmarshal([]byte(tt.in), &a))
			d, err := a.decimal()
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, core.FormatAmount(d))
		})
	}

	var a amountField
	assert.Error(t, json.Unmarshal([]byte(`true`), &a))
}

func TestPatchRequestOnlySetsGivenFields(t *testing.T) {
	var req patchRequest
	require.NoError(t, json.Unmarshal([]byte(`{"payer": " Carol ", "unit": "chf"}`), &req))

	p, err := req.toPatch()
	require.NoError(t, err)
	require.NotNil(t, p.Payer)
	assert.Equal(t, "Carol", *p.Payer)
	require.NotNil(t, p.Unit)
	assert.Equal(t, "CHF", *p.Unit)
	assert.Nil(t, p.Amount)
	assert.Nil(t, p.Participants)
	assert.Nil(t, p.Shares)
	assert.Nil(t, p.Date)
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\tb", sanitizeInput("  a\tb\x00 "))
	assert.Nil(t, sanitizeAll(nil))
	assert.Nil(t, sanitizePtr(nil))
}
