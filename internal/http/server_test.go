package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finfix/internal/finance/memory"
	"finfix/internal/services"
	"finfix/internal/session"
)

const testSecret = "test-secret"

// browser replays the session cookie like a real client would.
type browser struct {
	t      *testing.T
	srv    *Server
	cookie *http.Cookie
}

func newTestServer(t *testing.T, ready func(context.Context) error) (*browser, *memory.Store) {
	t.Helper()
	backend := memory.New(memory.DefaultCategories())
	sessions := session.NewManager(session.DefaultConfig(), session.NewTokenVerifier(testSecret), backend, nil, nil)
	onboardingSvc := services.NewOnboardingService(backend, nil, services.DefaultOnboardingServiceConfig(), nil)
	srv := NewServer(":0", Deps{Sessions: sessions, Onboarding: onboardingSvc, Ready: ready})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &browser{t: t, srv: srv}, backend
}

func (b *browser) do(method, target, body string) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.srv.Handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			b.cookie = c
		}
	}
	return rec
}

func (b *browser) login(subject string) {
	b.t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		b.t.Fatal(err)
	}
	rec := b.do(http.MethodPost, "/api/session/login", `{"token":"`+tok+`"}`)
	if rec.Code != http.StatusOK {
		b.t.Fatalf("login status=%d body=%s", rec.Code, rec.Body)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status=%d, want %d, body=%s", rec.Code, want, rec.Body)
	}
}

func expectRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body RedirectBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	if body.Redirect != want {
		t.Fatalf("redirect=%q, want %q", body.Redirect, want)
	}
	if rec.Code == http.StatusSeeOther && rec.Header().Get("Location") != want {
		t.Fatalf("Location=%q, want %q", rec.Header().Get("Location"), want)
	}
}

func TestHealthAndReady(t *testing.T) {
	b, _ := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		expectStatus(t, b.do(http.MethodGet, path, ""), http.StatusOK)
	}

	down, _ := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	expectStatus(t, down.do(http.MethodGet, "/readyz", ""), http.StatusServiceUnavailable)
}

func TestGuestIsSentToLogin(t *testing.T) {
	b, _ := newTestServer(t, nil)

	rec := b.do(http.MethodGet, "/", "")
	expectStatus(t, rec, http.StatusSeeOther)
	expectRedirect(t, rec, "/login")
	if b.cookie == nil || !b.cookie.HttpOnly {
		t.Fatal("expected an HttpOnly session cookie")
	}

	rec = b.do(http.MethodGet, "/onboarding/expenses", "")
	expectStatus(t, rec, http.StatusSeeOther)
	expectRedirect(t, rec, "/login?next=%2Fonboarding%2Fexpenses")

	expectStatus(t, b.do(http.MethodGet, "/login", ""), http.StatusOK)
	expectStatus(t, b.do(http.MethodPost, "/onboarding/incomes/next", ""), http.StatusSeeOther)
}

func TestLoginRejectsBadToken(t *testing.T) {
	b, _ := newTestServer(t, nil)
	expectStatus(t, b.do(http.MethodPost, "/api/session/login", `{"token":"nope"}`), http.StatusUnauthorized)
	expectStatus(t, b.do(http.MethodPost, "/api/session/login", `not json`), http.StatusBadRequest)
}

func TestLoginHonoursNext(t *testing.T) {
	b, _ := newTestServer(t, nil)
	b.do(http.MethodGet, "/api/session", "")
	claims := jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

	rec := b.do(http.MethodPost, "/api/session/login?next=%2Fonboarding%2Fincomes", `{"token":"`+tok+`"}`)
	expectStatus(t, rec, http.StatusOK)
	expectRedirect(t, rec, "/onboarding/incomes")

	rec = b.do(http.MethodPost, "/api/session/login?next=%2F%2Fevil.example", `{"token":"`+tok+`"}`)
	expectRedirect(t, rec, "/onboarding")
}

func TestWizardEndToEnd(t *testing.T) {
	b, backend := newTestServer(t, nil)
	b.login("u1")

	expectRedirect(t, b.do(http.MethodGet, "/", ""), "/onboarding")
	expectStatus(t, b.do(http.MethodGet, "/onboarding", ""), http.StatusOK)
	expectRedirect(t, b.do(http.MethodGet, "/onboarding/expenses", ""), "/onboarding/currency")
	expectStatus(t, b.do(http.MethodGet, "/profile", ""), http.StatusSeeOther)

	expectStatus(t, b.do(http.MethodPut, "/onboarding/currency", `{"currency":"xyz"}`), http.StatusBadRequest)
	expectStatus(t, b.do(http.MethodPut, "/onboarding/currency", `{"currency":"eur"}`), http.StatusOK)
	expectRedirect(t, b.do(http.MethodPost, "/onboarding/currency/next", ""), "/onboarding/incomes")

	expectStatus(t, b.do(http.MethodPut, "/onboarding/incomes", `{"incomes":"12a"}`), http.StatusBadRequest)
	rec := b.do(http.MethodPost, "/onboarding/incomes/next", "")
	expectStatus(t, rec, http.StatusUnprocessableEntity)
	if !strings.Contains(rec.Body.String(), `"incomes"`) {
		t.Fatalf("expected incomes error, got %s", rec.Body)
	}
	expectStatus(t, b.do(http.MethodPut, "/onboarding/incomes", `{"incomes":"1500"}`), http.StatusOK)
	expectRedirect(t, b.do(http.MethodPost, "/onboarding/incomes/next", ""), "/onboarding/expenses")

	rec = b.do(http.MethodPost, "/onboarding/expenses/rows", "")
	expectStatus(t, rec, http.StatusCreated)
	rowID := rec.Header().Get("X-Row-ID")
	if rowID == "" {
		t.Fatal("missing X-Row-ID")
	}
	expectStatus(t, b.do(http.MethodPost, "/onboarding/expenses/next", ""), http.StatusUnprocessableEntity)
	expectStatus(t, b.do(http.MethodPatch, "/onboarding/expenses/rows/"+rowID, `{"field":"colour","value":"red"}`), http.StatusBadRequest)
	expectStatus(t, b.do(http.MethodPatch, "/onboarding/expenses/rows/missing", `{"field":"amount","value":"1"}`), http.StatusNotFound)
	expectStatus(t, b.do(http.MethodPatch, "/onboarding/expenses/rows/"+rowID, `{"field":"amount","value":"250.50"}`), http.StatusOK)
	expectRedirect(t, b.do(http.MethodPost, "/onboarding/expenses/next", ""), "/onboarding/debts")

	expectRedirect(t, b.do(http.MethodPost, "/onboarding/debts/next", ""), "/onboarding/installments")
	expectRedirect(t, b.do(http.MethodPost, "/onboarding/installments/next", ""), "/onboarding/complete")
	expectStatus(t, b.do(http.MethodGet, "/onboarding/complete", ""), http.StatusOK)

	expectRedirect(t, b.do(http.MethodPost, "/onboarding/complete", ""), "/profile")
	expectRedirect(t, b.do(http.MethodGet, "/onboarding", ""), "/profile")
	expectStatus(t, b.do(http.MethodGet, "/profile", ""), http.StatusOK)

	summary, err := backend.FetchSummary(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !summary.IsOnboarded || summary.Currency != "EUR" || len(summary.Expenses) != 1 {
		t.Fatalf("backend summary %+v", summary)
	}
}

func TestInstallmentDateInput(t *testing.T) {
	b, _ := newTestServer(t, nil)
	b.login("u1")

	rec := b.do(http.MethodPost, "/onboarding/installments/rows", "")
	expectStatus(t, rec, http.StatusCreated)
	id := rec.Header().Get("X-Row-ID")

	expectStatus(t, b.do(http.MethodPut, "/onboarding/installments/rows/"+id+"/date", `{"raw":"0101"}`), http.StatusOK)
	rec = b.do(http.MethodPost, "/onboarding/installments/rows/"+id+"/date/blur", "")
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, b.do(http.MethodPut, "/onboarding/installments/rows/nope/date", `{"raw":"1"}`), http.StatusNotFound)
	expectStatus(t, b.do(http.MethodDelete, "/onboarding/installments/rows/"+id, ""), http.StatusOK)
	expectStatus(t, b.do(http.MethodDelete, "/onboarding/installments/rows/"+id, ""), http.StatusNotFound)
	expectStatus(t, b.do(http.MethodPost, "/onboarding/widgets/rows", ""), http.StatusNotFound)
}

func TestLogoutDropsIdentityAndWizard(t *testing.T) {
	b, _ := newTestServer(t, nil)
	b.login("u1")
	expectStatus(t, b.do(http.MethodPut, "/onboarding/incomes", `{"incomes":"10"}`), http.StatusOK)

	rec := b.do(http.MethodPost, "/api/session/logout", "")
	expectStatus(t, rec, http.StatusOK)
	expectRedirect(t, rec, "/login")

	rec = b.do(http.MethodPost, "/api/session/refresh", "")
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), `"authenticated":true`) {
		t.Fatalf("refresh after logout restored identity: %s", rec.Body)
	}
	expectStatus(t, b.do(http.MethodGet, "/onboarding", ""), http.StatusSeeOther)
}

func TestSetMode(t *testing.T) {
	b, _ := newTestServer(t, nil)
	expectStatus(t, b.do(http.MethodPut, "/api/session/mode", `{"mode":"kiosk"}`), http.StatusBadRequest)

	rec := b.do(http.MethodPut, "/api/session/mode", `{"mode":"pwa"}`)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"mode":"pwa"`) {
		t.Fatalf("body %s", rec.Body)
	}

	b.login("u1")
	expectRedirect(t, b.do(http.MethodGet, "/login", ""), "/analytics")
}

func TestSecurityHeadersApplied(t *testing.T) {
	b, _ := newTestServer(t, nil)
	rec := b.do(http.MethodGet, "/api/session", "")
	if rec.Header().Get("Cache-Control") != "no-store" || rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("headers %v", rec.Header())
	}
}
