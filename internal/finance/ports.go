// Package finance defines the collaborator ports the onboarding wizard
// talks to. Implementations live in subpackages: rest for the remote
// finance API, memory for tests and demos. The sqlite adapter lives in
// internal/adapters.
package finance

import (
	"context"
	"errors"
	"fmt"

	"finfix/internal/core"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

// SummaryReader fetches the onboarding summary of a user.
type SummaryReader interface {
	FetchSummary(ctx context.Context, userID string) (core.Summary, error)
}

// CategoryReader lists expense categories.
type CategoryReader interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
}

type CurrencyWriter interface {
	UpsertCurrency(ctx context.Context, userID string, currency core.Currency) error
}

type IncomesWriter interface {
	UpsertIncomes(ctx context.Context, userID, incomes string) error
}

// ExpenseWriter creates or replaces expenses. Rows carrying an id replace the
// stored row with that id.
type ExpenseWriter interface {
	CreateExpenses(ctx context.Context, expenses []core.Expense) error
}

type DebtWriter interface {
	CreateDebts(ctx context.Context, debts []core.Debt) error
	UpdateDebt(ctx context.Context, id string, debt core.Debt) error
	DeleteDebt(ctx context.Context, id string) error
}

type InstallmentWriter interface {
	CreateInstallments(ctx context.Context, installments []core.Installment) error
	DeleteInstallment(ctx context.Context, id string) error
}

type OnboardingCompleter interface {
	CompleteOnboarding(ctx context.Context, userID string) error
}

// IdentityReader resolves the identity behind a verified user id.
type IdentityReader interface {
	Identity(ctx context.Context, userID string) (core.Identity, error)
}

// Backend groups every port the onboarding flow needs.
type Backend interface {
	SummaryReader
	CategoryReader
	CurrencyWriter
	IncomesWriter
	ExpenseWriter
	DebtWriter
	InstallmentWriter
	OnboardingCompleter
	IdentityReader
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token for backends that forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached with WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
