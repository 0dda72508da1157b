package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ports "blackout/internal/sheets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
)

// fakeSheets is a minimal stand-in for the Sheets v4 REST API.
type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	added    []string
	headers  map[string][]any
	appended map[string][][]any
	gets     int
}

func newFakeSheets(titles ...string) *fakeSheets {
	return &fakeSheets{
		titles:   titles,
		headers:  make(map[string][]any),
		appended: make(map[string][][]any),
	}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v4/spreadsheets/"):
		f.gets++
		var sheets []map[string]any
		for _, t := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.Unmarshal(body, &req)
		for _, r := range req.Requests {
			f.titles = append(f.titles, r.AddSheet.Properties.Title)
			f.added = append(f.added, r.AddSheet.Properties.Title)
		}
		_, _ = w.Write([]byte(`{}`))

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		if len(vr.Values) > 0 {
			f.headers[rng] = vr.Values[0]
		}
		_, _ = w.Write([]byte(`{}`))

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr struct {
			Values [][]any `json:"values"`
		}
		_ = json.Unmarshal(body, &vr)
		rng := strings.TrimSuffix(path[strings.Index(path, "/values/")+len("/values/"):], ":append")
		f.appended[rng] = append(f.appended[rng], vr.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": strings.Replace(rng, "A:J", "A2:J2", 1)},
		})

	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-123", SheetName: "Ledger"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return c
}

func sampleRow() ports.Row {
	return ports.Row{
		OccurredAt:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		EventType:   "expense.created",
		EventID:     "evt-1",
		OwnerID:     7,
		RecordID:    42,
		Date:        "2024-03-05",
		Category:    "Groceries",
		Description: "Market",
		Value:       "-60.00",
		Balance:     "40.00",
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "  "})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Ledger", 2024, "2024 Ledger"},
		{"  Audit ", 2025, "2025 Audit"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestNewClient_DefaultSheetName(t *testing.T) {
	c := newClient(nil, "id", "")
	assert.Equal(t, "Ledger", c.sheetBase)
}

func TestAppendRow_NilService(t *testing.T) {
	c := newClient(nil, "id", "Ledger")
	_, err := c.AppendRow(context.Background(), sampleRow())
	require.Error(t, err)
}

func TestAppendRow_CreatesYearSheetWithHeader(t *testing.T) {
	fake := newFakeSheets("Other")
	c := newTestClient(t, fake)

	ref, err := c.AppendRow(context.Background(), sampleRow())
	require.NoError(t, err)
	assert.Equal(t, "'2024 Ledger'!A2:J2", ref)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"2024 Ledger"}, fake.added)
	require.Contains(t, fake.headers, "'2024 Ledger'!A1:J1")
	assert.Equal(t, ports.Header, fake.headers["'2024 Ledger'!A1:J1"])

	rows := fake.appended["'2024 Ledger'!A:J"]
	require.Len(t, rows, 1)
	assert.Equal(t, sampleRow().Values(), rows[0])
}

func TestAppendRow_ExistingSheetIsReused(t *testing.T) {
	fake := newFakeSheets("2024 Ledger")
	c := newTestClient(t, fake)

	for i := 0; i < 3; i++ {
		_, err := c.AppendRow(context.Background(), sampleRow())
		require.NoError(t, err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.added)
	assert.Empty(t, fake.headers)
	assert.Equal(t, 1, fake.gets, "sheet lookup should be cached")
	assert.Len(t, fake.appended["'2024 Ledger'!A:J"], 3)
}

func TestAppendRow_SplitsByYear(t *testing.T) {
	fake := newFakeSheets()
	c := newTestClient(t, fake)

	row := sampleRow()
	_, err := c.AppendRow(context.Background(), row)
	require.NoError(t, err)
	row.OccurredAt = row.OccurredAt.AddDate(1, 0, 0)
	_, err = c.AppendRow(context.Background(), row)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.ElementsMatch(t, []string{"2024 Ledger", "2025 Ledger"}, fake.added)
}

func TestAppendRow_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	}))

	_, err := c.AppendRow(context.Background(), sampleRow())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read spreadsheet")
}
