// Package sheets exports onboarded profiles to a reporting spreadsheet.
package sheets

import (
	"context"
	"time"

	"finfix/internal/core"
)

// ProfileExporter writes one row per user. Exporting the same user twice
// replaces the earlier row.
type ProfileExporter interface {
	ExportProfile(ctx context.Context, row ProfileRow) (rowRef string, err error)
}

// ProfileRow is the flattened onboarding profile as it appears in the sheet.
type ProfileRow struct {
	UserID              string
	Email               string
	Currency            core.Currency
	Incomes             string
	ExpensesTotal       string
	ExpenseCount        int
	DebtsTotal          string
	DebtCount           int
	InstallmentsTotal   string
	MonthlyInstallments string
	InstallmentCount    int
	CompletedAt         time.Time
}

// Header is the column layout written by exporters.
var Header = []string{
	"User", "Email", "Currency", "Incomes",
	"Expenses", "Expense rows",
	"Debts", "Debt rows",
	"Installments", "Monthly installments", "Installment rows",
	"Completed at",
}

// BuildProfileRow flattens a summary into a sheet row.
func BuildProfileRow(id core.Identity, s core.Summary, completedAt time.Time) ProfileRow {
	var expenses, debts, installments, monthly []string
	for _, e := range s.Expenses {
		expenses = append(expenses, e.Amount)
	}
	for _, d := range s.Debts {
		debts = append(debts, d.TotalDebt)
	}
	for _, in := range s.Installments {
		installments = append(installments, in.TotalAmount)
		if m, err := core.MonthlyPayment(in.TotalAmount, in.TotalPayments); err == nil {
			monthly = append(monthly, m.String())
		}
	}

	incomes := ""
	if s.HasIncomes() {
		incomes = core.SumAmounts(s.Incomes).StringFixed(2)
	}

	return ProfileRow{
		UserID:              id.ID,
		Email:               id.Email,
		Currency:            s.Currency,
		Incomes:             incomes,
		ExpensesTotal:       core.SumAmounts(expenses...).StringFixed(2),
		ExpenseCount:        len(s.Expenses),
		DebtsTotal:          core.SumAmounts(debts...).StringFixed(2),
		DebtCount:           len(s.Debts),
		InstallmentsTotal:   core.SumAmounts(installments...).StringFixed(2),
		MonthlyInstallments: core.SumAmounts(monthly...).StringFixed(2),
		InstallmentCount:    len(s.Installments),
		CompletedAt:         completedAt.UTC(),
	}
}

// Values renders the row in Header order.
func (r ProfileRow) Values() []any {
	return []any{
		r.UserID, r.Email, string(r.Currency), r.Incomes,
		r.ExpensesTotal, r.ExpenseCount,
		r.DebtsTotal, r.DebtCount,
		r.InstallmentsTotal, r.MonthlyInstallments, r.InstallmentCount,
		r.CompletedAt.Format(time.RFC3339),
	}
}
