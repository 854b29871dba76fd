package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"finfix/internal/core"
	"finfix/internal/finance"
)

func TestFetchSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.EscapedPath() != "/users/u%2F1/onboarding/summary" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"currency":"UAH","incomes":"2500","isOnboarded":false,
			"expenses":[{"id":"e1","userId":"u/1","categoryId":"food","amount":"10","description":""}],
			"debts":[],"installments":[{"id":"i1","userId":"u/1","description":"tv","startDate":"2024-01-15T00:00:00.000Z","totalAmount":"1200","totalPayments":12}]}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, srv.Client())
	ctx := finance.WithToken(context.Background(), "tok")
	s, err := c.FetchSummary(ctx, "u/1")
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if s.Currency != core.CurrencyUAH || s.Incomes != "2500" || len(s.Expenses) != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(s.Installments) != 1 || s.Installments[0].StartDate.ISO() != "2024-01-15" {
		t.Fatalf("unexpected installments %+v", s.Installments)
	}
}

func TestCreateDebtsSendsJSON(t *testing.T) {
	var got []core.Debt
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/debts/bulk" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL+"/", srv.Client())
	err := c.CreateDebts(context.Background(), []core.Debt{{ID: "d1", UserID: "u1", TotalDebt: "100", Interest: "-1"}})
	if err != nil {
		t.Fatalf("CreateDebts: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d1" || got[0].Interest != "-1" {
		t.Fatalf("server received %+v", got)
	}
}

func TestStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, func(err error) bool { return errors.Is(err, finance.ErrNotFound) }},
		{http.StatusUnauthorized, func(err error) bool { return errors.Is(err, finance.ErrUnauthorized) }},
		{http.StatusBadGateway, func(err error) bool {
			var se *finance.StatusError
			return errors.As(err, &se) && se.Status == http.StatusBadGateway && se.Body == "upstream"
		}},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("upstream\n"))
		}))
		c := NewWithHTTPClient(srv.URL, srv.Client())
		err := c.DeleteDebt(context.Background(), "d1")
		srv.Close()
		if err == nil || !tc.check(err) {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
	}
}
