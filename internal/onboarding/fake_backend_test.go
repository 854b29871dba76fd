package onboarding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finfix/internal/core"
	"finfix/internal/log"
)

type call struct {
	op string
	id string
	n  int
}

// fakeBackend records every collaborator call and fails the ops listed in
// failOn.
type fakeBackend struct {
	mu            sync.Mutex
	summary       core.Summary
	categories    []core.Category
	summaryErr    error
	categoriesErr error
	failOn        map[string]error
	calls         []call
	debts         []core.Debt
	expenses      []core.Expense
	installments  []core.Installment
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		categories: []core.Category{{ID: "food", Name: "Food"}, {ID: "rent", Name: "Rent"}},
		failOn:     map[string]error{},
	}
}

func (f *fakeBackend) record(op, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: op, id: id, n: n})
	return f.failOn[op]
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) callsFor(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) FetchSummary(ctx context.Context, userID string) (core.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, f.summaryErr
}

func (f *fakeBackend) ListCategories(ctx context.Context) ([]core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, f.categoriesErr
}

func (f *fakeBackend) UpsertCurrency(ctx context.Context, userID string, currency core.Currency) error {
	return f.record("upsertCurrency", string(currency), 1)
}

func (f *fakeBackend) UpsertIncomes(ctx context.Context, userID, incomes string) error {
	return f.record("upsertIncomes", incomes, 1)
}

func (f *fakeBackend) CreateExpenses(ctx context.Context, expenses []core.Expense) error {
	if err := f.record("createExpenses", "", len(expenses)); err != nil {
		return err
	}
	f.mu.Lock()
	f.expenses = append(f.expenses, expenses...)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) CreateDebts(ctx context.Context, debts []core.Debt) error {
	if err := f.record("createDebts", "", len(debts)); err != nil {
		return err
	}
	f.mu.Lock()
	f.debts = append(f.debts, debts...)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) UpdateDebt(ctx context.Context, id string, debt core.Debt) error {
	return f.record("updateDebt", id, 1)
}

func (f *fakeBackend) DeleteDebt(ctx context.Context, id string) error {
	return f.record("deleteDebt", id, 1)
}

func (f *fakeBackend) CreateInstallments(ctx context.Context, installments []core.Installment) error {
	if err := f.record("createInstallments", "", len(installments)); err != nil {
		return err
	}
	f.mu.Lock()
	f.installments = append(f.installments, installments...)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) DeleteInstallment(ctx context.Context, id string) error {
	return f.record("deleteInstallment", id, 1)
}

func (f *fakeBackend) CompleteOnboarding(ctx context.Context, userID string) error {
	return f.record("complete", userID, 1)
}

func (f *fakeBackend) Identity(ctx context.Context, userID string) (core.Identity, error) {
	return core.Identity{ID: userID}, nil
}

// sequentialIDs yields row-1, row-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("row-%d", n)
	}
}

var fixedNow = time.Date(2055, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestFlow(backend *fakeBackend) *Flow {
	store := NewStore(WithIDGenerator(sequentialIDs()), WithClock(func() time.Time { return fixedNow }))
	return NewFlow("user-1", NewSequencer("/profile"), store, backend, log.Discard())
}
