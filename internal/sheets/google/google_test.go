package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"finfix/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheet is a tiny stand-in for the Sheets values API.
type fakeSheet struct {
	mu    sync.Mutex
	rows  [][]any
	gets  int
	fail  bool
	calls []string
}

var rowPattern = regexp.MustCompile(`!A(\d+):`)

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method)

	if f.fail {
		http.Error(w, `{"error":{"code":400,"message":"boom"}}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		f.gets++
		col := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			col = append(col, []any{row[0]})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": col})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values[0])
		n := len(f.rows)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": fmt.Sprintf("Onboarding!A%d:L%d", n, n)},
		})

	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		m := rowPattern.FindStringSubmatch(r.URL.Path)
		if m == nil {
			http.Error(w, "bad range "+r.URL.Path, http.StatusBadRequest)
			return
		}
		n, _ := strconv.Atoi(m[1])
		for len(f.rows) < n {
			f.rows = append(f.rows, []any{""})
		}
		f.rows[n-1] = vr.Values[0]
		_ = json.NewEncoder(w).Encode(map[string]any{})

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, fake *fakeSheet) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewWithService(svc, "sheet-id", "")
}

func row(userID, incomes string) sheets.ProfileRow {
	return sheets.ProfileRow{UserID: userID, Incomes: incomes, CompletedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestExportProfileWritesHeaderThenAppends(t *testing.T) {
	fake := &fakeSheet{}
	c := newTestClient(t, fake)

	ref, err := c.ExportProfile(context.Background(), row("u1", "100.00"))
	if err != nil {
		t.Fatalf("ExportProfile: %v", err)
	}
	if ref != "Onboarding!A2:L2" {
		t.Fatalf("ref = %q", ref)
	}
	if len(fake.rows) != 2 || fake.rows[0][0] != "User" || fake.rows[1][0] != "u1" {
		t.Fatalf("unexpected sheet %v", fake.rows)
	}
}

func TestExportProfileReplacesExistingRow(t *testing.T) {
	fake := &fakeSheet{rows: [][]any{{"User"}, {"u0"}, {"u1"}}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	ref, err := c.ExportProfile(ctx, row("u1", "250.00"))
	if err != nil {
		t.Fatal(err)
	}
	if ref != "Onboarding!A3:L3" {
		t.Fatalf("ref = %q", ref)
	}
	if len(fake.rows) != 3 || fake.rows[2][3] != "250.00" {
		t.Fatalf("unexpected sheet %v", fake.rows)
	}

	// second export of a new user uses the cached index
	if _, err := c.ExportProfile(ctx, row("u2", "1.00")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExportProfile(ctx, row("u2", "2.00")); err != nil {
		t.Fatal(err)
	}
	if fake.gets != 1 {
		t.Fatalf("expected a single column read, got %d", fake.gets)
	}
	if len(fake.rows) != 4 || fake.rows[3][3] != "2.00" {
		t.Fatalf("unexpected sheet %v", fake.rows)
	}
}

func TestExportProfileErrorInvalidatesCache(t *testing.T) {
	fake := &fakeSheet{rows: [][]any{{"User"}}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	if _, err := c.ExportProfile(ctx, row("u1", "1.00")); err != nil {
		t.Fatal(err)
	}
	fake.mu.Lock()
	fake.fail = true
	fake.mu.Unlock()
	if _, err := c.ExportProfile(ctx, row("u1", "2.00")); err == nil {
		t.Fatal("expected error from failing API")
	}

	c.mu.Lock()
	cached := c.rowIndex != nil
	c.mu.Unlock()
	if cached {
		t.Fatal("row cache should be invalidated after a write error")
	}
}

func TestExportProfileValidation(t *testing.T) {
	if _, err := (&Client{}).ExportProfile(context.Background(), row("u1", "")); err == nil {
		t.Fatal("expected error without service")
	}
	c := newTestClient(t, &fakeSheet{})
	if _, err := c.ExportProfile(context.Background(), row(" ", "")); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestNewRequiresSpreadsheetAndCredentials(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), Options{SpreadsheetID: "x"}); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if _, err := New(context.Background(), Options{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"}); err == nil {
		t.Fatal("expected error for unreadable credentials file")
	}
}
