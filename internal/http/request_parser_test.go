package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blackout/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequestFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.Fields
	}{
		{
			name: "date",
			body: `{"value":12.345,"category":" Casa ","description":"luz","date":"2024-03-01"}`,
			want: core.Fields{Value: core.Cents(1235), Category: "Casa", Description: "luz", Date: core.NewDate(2024, 3, 1)},
		},
		{
			name: "data alias",
			body: `{"value":"7","category":"c","description":"d","data":"2024-03-02"}`,
			want: core.Fields{Value: core.Cents(700), Category: "c", Description: "d", Date: core.NewDate(2024, 3, 2)},
		},
		{
			name: "date wins over data",
			body: `{"value":1,"category":"c","description":"d","date":"2024-03-03","data":"2024-03-04"}`,
			want: core.Fields{Value: core.Cents(100), Category: "c", Description: "d", Date: core.NewDate(2024, 3, 3)},
		},
		{
			name: "missing value stays zero",
			body: `{"category":"c\u0007","description":"d"}`,
			want: core.Fields{Category: "c", Description: "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var rr recordRequest
			require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &rr))
			got := rr.Fields()
			assert.Equal(t, tt.want.Value, got.Value)
			assert.Equal(t, tt.want.Category, got.Category)
			assert.Equal(t, tt.want.Description, got.Description)
			assert.True(t, tt.want.Date.Equal(got.Date.Time), "date %s", got.Date)
		})
	}
}

func TestDecodeJSONRejects(t *testing.T) {
	tests := map[string]string{
		"empty":    "",
		"trailing": `{"email":"a"}{"email":"b"}`,
		"syntax":   `{"email":`,
		"too big":  `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var lr loginRequest
			assert.Error(t, decodeJSON(httptest.NewRecorder(), req, &lr))
		})
	}
}

func TestParseID(t *testing.T) {
	mux := http.NewServeMux()
	var (
		got int64
		err error
	)
	mux.HandleFunc("/r/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, err = parseID(r)
	})

	for raw, want := range map[string]int64{"42": 42, "0": 0, "-3": 0, "x": 0} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/r/"+raw, nil))
		if want == 0 {
			assert.Error(t, err, raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "a\tb", sanitizeInput("  a\x00\tb\x1b "))
	assert.Equal(t, "", sanitizeInput("   "))
}
