package onboarding

import (
	"context"
	"errors"
	"testing"

	"finfix/internal/core"
)

func TestAddThenRemoveLocalDebtMakesNoCalls(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(core.Summary{})

	row := flow.Store().AddDebt()
	if err := flow.RemoveDebt(context.Background(), row.ID); err != nil {
		t.Fatalf("RemoveDebt: %v", err)
	}
	if backend.total() != 0 {
		t.Fatalf("expected no backend calls, got %+v", backend.calls)
	}
	if len(flow.Store().Draft().Debts) != 0 {
		t.Fatalf("row should be gone")
	}
}

func TestSavedDebtRemovalDeletesOnce(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(core.Summary{})

	row := flow.Store().AddDebt()
	if err := flow.Store().UpdateDebt(row.ID, DebtEdit{Field: DebtTotalDebt, Value: "500"}); err != nil {
		t.Fatalf("UpdateDebt: %v", err)
	}
	next, err := flow.Next(ctx, StepDebts)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != "/onboarding/installments" {
		t.Fatalf("Next = %q", next)
	}
	if backend.count("createDebts") != 1 {
		t.Fatalf("expected one bulk create, got %+v", backend.calls)
	}
	if backend.debts[0].ID != row.ID || backend.debts[0].UserID != "user-1" {
		t.Fatalf("create payload must carry the client id and user id, got %+v", backend.debts[0])
	}

	if err := flow.RemoveDebt(ctx, row.ID); err != nil {
		t.Fatalf("RemoveDebt: %v", err)
	}
	deletes := backend.callsFor("deleteDebt")
	if len(deletes) != 1 || deletes[0].id != row.ID {
		t.Fatalf("expected exactly one delete for %s, got %+v", row.ID, deletes)
	}
	if flow.Store().IsServerDebt(row.ID) {
		t.Fatalf("deleted row must leave the snapshot")
	}
}

func TestFailedRemoteDeleteKeepsLocalRemoval(t *testing.T) {
	backend := newFakeBackend()
	backend.failOn["deleteDebt"] = errors.New("boom")
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(seededSummary())

	err := flow.RemoveDebt(context.Background(), "d1")
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if len(flow.Store().Draft().Debts) != 0 {
		t.Fatalf("local removal must not be rolled back")
	}
	if !flow.Store().IsServerDebt("d1") {
		t.Fatalf("row still exists remotely and must stay in the snapshot")
	}
}

func TestRemoveInstallmentPolicy(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(seededSummary())

	local := flow.Store().AddInstallment()
	if err := flow.RemoveInstallment(ctx, local.ID); err != nil {
		t.Fatalf("RemoveInstallment(local): %v", err)
	}
	if backend.count("deleteInstallment") != 0 {
		t.Fatalf("local row must not be deleted remotely")
	}
	if err := flow.RemoveInstallment(ctx, "i1"); err != nil {
		t.Fatalf("RemoveInstallment(i1): %v", err)
	}
	if backend.count("deleteInstallment") != 1 {
		t.Fatalf("server row must be deleted remotely once")
	}
	if err := flow.RemoveInstallment(ctx, "nope"); !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func TestSetCurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("persists before updating the draft", func(t *testing.T) {
		backend := newFakeBackend()
		flow := newTestFlow(backend)
		flow.Store().InitializeFromSummary(core.Summary{})
		if err := flow.SetCurrency(ctx, "usd"); err != nil {
			t.Fatalf("SetCurrency: %v", err)
		}
		if backend.count("upsertCurrency") != 1 || flow.Store().Draft().Currency != core.CurrencyUSD {
			t.Fatalf("calls=%+v draft=%+v", backend.calls, flow.Store().Draft())
		}
	})

	t.Run("failure skips the local update", func(t *testing.T) {
		backend := newFakeBackend()
		backend.failOn["upsertCurrency"] = errors.New("down")
		flow := newTestFlow(backend)
		flow.Store().InitializeFromSummary(core.Summary{})
		err := flow.SetCurrency(ctx, "EUR")
		var perr *PersistenceError
		if !errors.As(err, &perr) {
			t.Fatalf("expected PersistenceError, got %v", err)
		}
		if flow.Store().Draft().Currency != "" {
			t.Fatalf("draft must keep the previous currency")
		}
	})

	t.Run("unsupported currency never reaches the backend", func(t *testing.T) {
		backend := newFakeBackend()
		flow := newTestFlow(backend)
		if err := flow.SetCurrency(ctx, "GBP"); !errors.Is(err, core.ErrInvalidCurrency) {
			t.Fatalf("expected ErrInvalidCurrency, got %v", err)
		}
		if backend.total() != 0 {
			t.Fatalf("unexpected calls %+v", backend.calls)
		}
	})
}

func TestNextIncomes(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(core.Summary{})

	_, err := flow.Next(ctx, StepIncomes)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Errors.Incomes != "Please, enter amount of your incomes" {
		t.Fatalf("unexpected message %q", verr.Errors.Incomes)
	}
	if backend.total() != 0 {
		t.Fatalf("validation failure must not call the backend")
	}

	_ = flow.Store().SetIncomes("2500")
	next, err := flow.Next(ctx, StepIncomes)
	if err != nil || next != "/onboarding/expenses" {
		t.Fatalf("Next = %q, %v", next, err)
	}
	if c := backend.callsFor("upsertIncomes"); len(c) != 1 || c[0].id != "2500" {
		t.Fatalf("unexpected calls %+v", c)
	}
}

func TestNextIncomesSavesZero(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(core.Summary{Currency: core.CurrencyUAH})

	_ = flow.Store().SetIncomes("0")
	next, err := flow.Next(ctx, StepIncomes)
	if err != nil || next != "/onboarding/expenses" {
		t.Fatalf("Next = %q, %v", next, err)
	}
	if c := backend.callsFor("upsertIncomes"); len(c) != 1 || c[0].id != "0" {
		t.Fatalf("unexpected calls %+v", c)
	}

	// zero is saved but does not count as set when resuming
	action := flow.Sequencer().Resolve(core.Summary{Currency: core.CurrencyUAH, Incomes: "0"}, next)
	if action != RedirectTo("/onboarding/incomes") {
		t.Fatalf("resume = %v", action)
	}
}

func TestNextExpensesSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	if _, err := flow.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	flow.Store().InitializeFromSummary(core.Summary{})

	row := flow.Store().AddExpense("")
	_ = flow.Store().UpdateExpense(row.ID, ExpenseEdit{Field: ExpenseAmount, Value: "120"})
	if _, err := flow.Next(ctx, StepExpenses); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if backend.count("createExpenses") != 1 {
		t.Fatalf("expected one bulk create, got %+v", backend.calls)
	}
	if got := backend.expenses[0]; got.ID != row.ID || got.UserID != "user-1" || got.CategoryID != "food" {
		t.Fatalf("unexpected payload %+v", got)
	}

	if _, err := flow.Next(ctx, StepExpenses); err != nil {
		t.Fatalf("Next (revisit): %v", err)
	}
	if backend.count("createExpenses") != 1 {
		t.Fatalf("unchanged expenses must not be saved again")
	}
}

func TestNextDebtsPartitionsNewAndExisting(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(seededSummary())

	if err := flow.Store().UpdateDebt("d1", DebtEdit{Field: DebtInterest, Value: "4"}); err != nil {
		t.Fatalf("UpdateDebt: %v", err)
	}
	row := flow.Store().AddDebt()
	_ = flow.Store().UpdateDebt(row.ID, DebtEdit{Field: DebtTotalDebt, Value: "80"})

	if _, err := flow.Next(ctx, StepDebts); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c := backend.callsFor("createDebts"); len(c) != 1 || c[0].n != 1 {
		t.Fatalf("expected one bulk create of one row, got %+v", c)
	}
	if c := backend.callsFor("updateDebt"); len(c) != 1 || c[0].id != "d1" {
		t.Fatalf("expected one update of d1, got %+v", c)
	}
	if flow.Store().HasDebtsChanged() {
		t.Fatalf("saved debts must match the snapshot")
	}
}

func TestNextDebtsWithoutRowsSkipsValidation(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(core.Summary{})

	next, err := flow.Next(context.Background(), StepDebts)
	if err != nil || next != "/onboarding/installments" {
		t.Fatalf("Next = %q, %v", next, err)
	}
	if backend.total() != 0 {
		t.Fatalf("unexpected calls %+v", backend.calls)
	}
}

func TestNextDebtsBlocksOnInvalidRow(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(core.Summary{})
	row := flow.Store().AddDebt()
	_ = flow.Store().UpdateDebt(row.ID, DebtEdit{Field: DebtTotalDebt, Value: "0"})

	_, err := flow.Next(context.Background(), StepDebts)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Errors.Debts[row.ID] == "" {
		t.Fatalf("expected ValidationError for %s, got %v", row.ID, err)
	}
	if backend.total() != 0 {
		t.Fatalf("unexpected calls %+v", backend.calls)
	}
}

func TestNextDebtsUpdateFailureAbortsNavigation(t *testing.T) {
	backend := newFakeBackend()
	backend.failOn["updateDebt"] = errors.New("timeout")
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(seededSummary())
	_ = flow.Store().UpdateDebt("d1", DebtEdit{Field: DebtDescription, Value: "visa"})
	row := flow.Store().AddDebt()
	_ = flow.Store().UpdateDebt(row.ID, DebtEdit{Field: DebtTotalDebt, Value: "10"})

	next, err := flow.Next(context.Background(), StepDebts)
	var perr *PersistenceError
	if !errors.As(err, &perr) || next != "" {
		t.Fatalf("expected PersistenceError and no path, got %q, %v", next, err)
	}
	if !flow.Store().IsServerDebt(row.ID) {
		t.Fatalf("rows created before the failure must stay recorded")
	}
}

func TestNextInstallments(t *testing.T) {
	ctx := context.Background()

	t.Run("no rows goes straight to completion", func(t *testing.T) {
		backend := newFakeBackend()
		flow := newTestFlow(backend)
		flow.Store().InitializeFromSummary(core.Summary{})
		next, err := flow.Next(ctx, StepInstallments)
		if err != nil || next != CompletePath {
			t.Fatalf("Next = %q, %v", next, err)
		}
		if backend.total() != 0 {
			t.Fatalf("unexpected calls %+v", backend.calls)
		}
	})

	t.Run("rows are validated then created as a full set", func(t *testing.T) {
		backend := newFakeBackend()
		flow := newTestFlow(backend)
		flow.Store().InitializeFromSummary(seededSummary())
		row := flow.Store().AddInstallment()
		if _, err := flow.Next(ctx, StepInstallments); err == nil {
			t.Fatalf("incomplete row must block")
		}

		_ = flow.Store().UpdateInstallment(row.ID, InstallmentEdit{Field: InstallmentTotalAmount, Value: "600"})
		_ = flow.Store().UpdateInstallment(row.ID, InstallmentEdit{Field: InstallmentTotalPayments, Value: "6"})
		if _, err := flow.Store().TypeInstallmentDate(row.ID, "01.02.2025"); err != nil {
			t.Fatalf("TypeInstallmentDate: %v", err)
		}
		next, err := flow.Next(ctx, StepInstallments)
		if err != nil || next != CompletePath {
			t.Fatalf("Next = %q, %v", next, err)
		}
		if c := backend.callsFor("createInstallments"); len(c) != 1 || c[0].n != 2 {
			t.Fatalf("expected full set of 2 rows, got %+v", c)
		}
	})
}

func TestLoadFallsBackOnErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.summaryErr = errors.New("summary down")
	flow := newTestFlow(backend)

	_, err := flow.Load(context.Background())
	var lerr *LoadError
	if !errors.As(err, &lerr) || lerr.Summary == nil || lerr.Categories != nil {
		t.Fatalf("expected summary LoadError, got %v", err)
	}
	if flow.Store().Initialized() {
		t.Fatalf("failed summary must leave the store open for a retry")
	}
	if len(flow.Store().Categories()) != 2 {
		t.Fatalf("categories should still load")
	}

	backend.summaryErr = nil
	backend.summary = seededSummary()
	if _, err := flow.Load(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if flow.Store().Draft().Currency != core.CurrencyUAH {
		t.Fatalf("retry should seed the store")
	}
}

func TestResolveStaysWhenSummaryUnavailable(t *testing.T) {
	backend := newFakeBackend()
	backend.summaryErr = errors.New("down")
	flow := newTestFlow(backend)
	action, err := flow.Resolve(context.Background(), "/onboarding/debts")
	if err == nil || action != Stay() {
		t.Fatalf("Resolve = %v, %v", action, err)
	}
}

func TestComplete(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	if err := flow.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if c := backend.callsFor("complete"); len(c) != 1 || c[0].id != "user-1" {
		t.Fatalf("unexpected calls %+v", c)
	}
}

func TestView(t *testing.T) {
	backend := newFakeBackend()
	flow := newTestFlow(backend)
	flow.Store().InitializeFromSummary(seededSummary())

	v := flow.View(StepInstallments)
	if v.Progress != 100 || v.BackPath != "/onboarding/debts" || v.Path != "/onboarding/installments" {
		t.Fatalf("unexpected navigation fields %+v", v)
	}
	if len(v.Installs) != 1 || v.Installs[0].MonthlyPayment != "100.00" || v.Installs[0].Date.Text != "15.01.2024" {
		t.Fatalf("unexpected installments %+v", v.Installs)
	}
	if v.Totals.Expenses != "1200.00" || v.Totals.Debts != "1200.00" {
		t.Fatalf("unexpected totals %+v", v.Totals)
	}
	if welcome := flow.View(StepWelcome); welcome.BackPath != "" {
		t.Fatalf("welcome must not expose a back path")
	}
}
