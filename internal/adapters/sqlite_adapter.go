package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/storage"
)

// SQLiteAdapter exposes SQLiteRepository as a finance.Backend so the
// onboarding flow can run against a local database instead of the remote API.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
}

var _ finance.Backend = (*SQLiteAdapter)(nil)

func NewSQLiteAdapter(storage *storage.SQLiteRepository) *SQLiteAdapter {
	return &SQLiteAdapter{storage: storage}
}

func (a *SQLiteAdapter) FetchSummary(ctx context.Context, userID string) (core.Summary, error) {
	rows, err := a.storage.LoadUserRows(ctx, userID)
	if err != nil {
		return core.Summary{}, err
	}

	s := core.Summary{
		Currency:     core.Currency(rows.User.Currency),
		Incomes:      rows.User.Incomes,
		IsOnboarded:  rows.User.IsOnboarded,
		Expenses:     make([]core.Expense, 0, len(rows.Expenses)),
		Debts:        make([]core.Debt, 0, len(rows.Debts)),
		Installments: make([]core.Installment, 0, len(rows.Installments)),
	}
	for _, e := range rows.Expenses {
		s.Expenses = append(s.Expenses, core.Expense(e))
	}
	for _, d := range rows.Debts {
		s.Debts = append(s.Debts, core.Debt(d))
	}
	for _, in := range rows.Installments {
		start, err := core.ParseISODate(in.StartDate)
		if err != nil {
			slog.WarnContext(ctx, "Stored installment has unreadable start date",
				"id", in.ID, "start_date", in.StartDate)
		}
		s.Installments = append(s.Installments, core.Installment{
			ID:            in.ID,
			UserID:        in.UserID,
			Description:   in.Description,
			StartDate:     start,
			TotalAmount:   in.TotalAmount,
			TotalPayments: int(in.TotalPayments),
		})
	}
	return s, nil
}

func (a *SQLiteAdapter) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := a.storage.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Category, len(rows))
	for i, c := range rows {
		out[i] = core.Category(c)
	}
	return out, nil
}

func (a *SQLiteAdapter) UpsertCurrency(ctx context.Context, userID string, currency core.Currency) error {
	if _, err := core.ParseCurrency(string(currency)); err != nil {
		return err
	}
	return a.storage.SetCurrency(ctx, userID, string(currency))
}

func (a *SQLiteAdapter) UpsertIncomes(ctx context.Context, userID, incomes string) error {
	if !core.IsPositiveAmount(incomes) {
		return core.ErrInvalidAmount
	}
	return a.storage.SetIncomes(ctx, userID, incomes)
}

func (a *SQLiteAdapter) CreateExpenses(ctx context.Context, expenses []core.Expense) error {
	rows := make([]storage.Expense, 0, len(expenses))
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		rows = append(rows, storage.Expense(e))
	}
	return a.storage.SaveExpenses(ctx, rows)
}

func (a *SQLiteAdapter) CreateDebts(ctx context.Context, debts []core.Debt) error {
	rows := make([]storage.Debt, 0, len(debts))
	for _, d := range debts {
		if err := d.Validate(); err != nil {
			return err
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		rows = append(rows, storage.Debt(d))
	}
	return a.storage.SaveDebts(ctx, rows)
}

func (a *SQLiteAdapter) UpdateDebt(ctx context.Context, id string, debt core.Debt) error {
	if !core.IsPositiveAmount(debt.TotalDebt) {
		return core.ErrInvalidAmount
	}
	debt.ID = id
	return notFound(a.storage.UpdateDebt(ctx, storage.Debt(debt)), "debt", id)
}

func (a *SQLiteAdapter) DeleteDebt(ctx context.Context, id string) error {
	return notFound(a.storage.DeleteDebt(ctx, id), "debt", id)
}

func (a *SQLiteAdapter) CreateInstallments(ctx context.Context, installments []core.Installment) error {
	rows := make([]storage.Installment, 0, len(installments))
	for _, in := range installments {
		if err := in.Validate(); err != nil {
			return err
		}
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		rows = append(rows, storage.Installment{
			ID:            in.ID,
			UserID:        in.UserID,
			Description:   in.Description,
			StartDate:     in.StartDate.ISO(),
			TotalAmount:   in.TotalAmount,
			TotalPayments: int64(in.TotalPayments),
		})
	}
	return a.storage.SaveInstallments(ctx, rows)
}

func (a *SQLiteAdapter) DeleteInstallment(ctx context.Context, id string) error {
	return notFound(a.storage.DeleteInstallment(ctx, id), "installment", id)
}

func (a *SQLiteAdapter) CompleteOnboarding(ctx context.Context, userID string) error {
	return notFound(a.storage.CompleteOnboarding(ctx, userID), "user", userID)
}

func (a *SQLiteAdapter) Identity(ctx context.Context, userID string) (core.Identity, error) {
	u, err := a.storage.GetUser(ctx, userID)
	if err != nil {
		return core.Identity{}, notFound(err, "user", userID)
	}
	return core.Identity{ID: u.ID, Email: u.Email, Name: u.Name, IsOnboarded: u.IsOnboarded}, nil
}

// RegisterIdentity records a user seen through a verified token.
func (a *SQLiteAdapter) RegisterIdentity(ctx context.Context, id core.Identity) error {
	return a.storage.UpsertIdentity(ctx, id.ID, id.Email, id.Name)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, storage.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", kind, id, finance.ErrNotFound)
	}
	return err
}
