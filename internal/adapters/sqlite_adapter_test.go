package adapters

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/storage"
)

func newAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "finfix.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewSQLiteAdapter(repo)
}

func TestSummaryReflectsWrites(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	if err := a.UpsertCurrency(ctx, "u1", core.CurrencyUAH); err != nil {
		t.Fatal(err)
	}
	if err := a.UpsertIncomes(ctx, "u1", "30000"); err != nil {
		t.Fatal(err)
	}
	if err := a.CreateExpenses(ctx, []core.Expense{{ID: "e1", UserID: "u1", CategoryID: "food", Amount: "5000"}}); err != nil {
		t.Fatal(err)
	}
	if err := a.CreateInstallments(ctx, []core.Installment{{
		ID: "i1", UserID: "u1", Description: "phone",
		StartDate: core.NewDate(2024, 2, 29), TotalAmount: "24000", TotalPayments: 24,
	}}); err != nil {
		t.Fatal(err)
	}

	s, err := a.FetchSummary(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Currency != core.CurrencyUAH || !s.HasIncomes() || s.IsOnboarded {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(s.Expenses) != 1 || s.Expenses[0].CategoryID != "food" {
		t.Fatalf("unexpected expenses %+v", s.Expenses)
	}
	if len(s.Installments) != 1 || s.Installments[0].StartDate.ISO() != "2024-02-29" {
		t.Fatalf("unexpected installments %+v", s.Installments)
	}
	if s.Debts == nil {
		t.Fatal("debts must be an empty slice, not nil")
	}
}

func TestNotFoundMapping(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	if err := a.DeleteDebt(ctx, "nope"); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("DeleteDebt: %v", err)
	}
	if err := a.UpdateDebt(ctx, "nope", core.Debt{TotalDebt: "1"}); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("UpdateDebt: %v", err)
	}
	if _, err := a.Identity(ctx, "nobody"); !errors.Is(err, finance.ErrNotFound) {
		t.Fatalf("Identity: %v", err)
	}
}

func TestRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	if err := a.UpsertIncomes(ctx, "u1", "-5"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("incomes: %v", err)
	}
	if err := a.CreateDebts(ctx, []core.Debt{{UserID: "u1", TotalDebt: "0"}}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("debts: %v", err)
	}
}

func TestCompleteOnboarding(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	if err := a.RegisterIdentity(ctx, core.Identity{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := a.CompleteOnboarding(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	id, err := a.Identity(ctx, "u1")
	if err != nil || !id.IsOnboarded || id.Email != "u1@example.com" {
		t.Fatalf("identity %+v err=%v", id, err)
	}
}
