package sheets

import (
	"testing"
	"time"

	"finfix/internal/core"
)

func TestBuildProfileRow(t *testing.T) {
	at := time.Date(2025, 5, 4, 10, 30, 0, 0, time.FixedZone("EEST", 3*3600))
	s := core.Summary{
		Currency: core.CurrencyUSD,
		Incomes:  "3000",
		Expenses: []core.Expense{{Amount: "100.5"}, {Amount: "200"}},
		Debts:    []core.Debt{{TotalDebt: "1000"}},
		Installments: []core.Installment{
			{TotalAmount: "1200", TotalPayments: 12},
			{TotalAmount: "100", TotalPayments: 3},
		},
	}
	row := BuildProfileRow(core.Identity{ID: "u1", Email: "u1@example.com"}, s, at)

	want := ProfileRow{
		UserID:              "u1",
		Email:               "u1@example.com",
		Currency:            core.CurrencyUSD,
		Incomes:             "3000.00",
		ExpensesTotal:       "300.50",
		ExpenseCount:        2,
		DebtsTotal:          "1000.00",
		DebtCount:           1,
		InstallmentsTotal:   "1300.00",
		MonthlyInstallments: "133.33",
		InstallmentCount:    2,
		CompletedAt:         at.UTC(),
	}
	if row != want {
		t.Fatalf("BuildProfileRow() =\n%+v\nwant\n%+v", row, want)
	}

	values := row.Values()
	if len(values) != len(Header) {
		t.Fatalf("values has %d columns, header has %d", len(values), len(Header))
	}
	if values[len(values)-1] != "2025-05-04T07:30:00Z" {
		t.Fatalf("completed at rendered as %v", values[len(values)-1])
	}
}

func TestBuildProfileRowEmptySummary(t *testing.T) {
	row := BuildProfileRow(core.Identity{ID: "u1"}, core.Summary{}, time.Time{})
	if row.Incomes != "" || row.ExpensesTotal != "0.00" || row.InstallmentCount != 0 {
		t.Fatalf("unexpected row %+v", row)
	}
}
