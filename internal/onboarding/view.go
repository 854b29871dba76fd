package onboarding

import "finfix/internal/core"

// StepView is everything a client needs to render one wizard screen.
type StepView struct {
	Step       Step              `json:"step"`
	Title      string            `json:"title"`
	Path       string            `json:"path"`
	Progress   int               `json:"progress"`
	BackPath   string            `json:"backPath,omitempty"`
	Steps      []StepDescriptor  `json:"steps"`
	Currencies []core.Currency   `json:"currencies,omitempty"`
	Categories []core.Category   `json:"categories,omitempty"`
	Currency   core.Currency     `json:"currency,omitempty"`
	Incomes    string            `json:"incomes"`
	Expenses   []ExpenseRow      `json:"expenses"`
	Debts      []DebtRow         `json:"debts"`
	Installs   []InstallmentView `json:"installments"`
	Totals     Totals            `json:"totals"`
	Errors     ValidationErrors  `json:"errors"`
}

type InstallmentView struct {
	InstallmentRow
	Date           DateInputView `json:"date"`
	MonthlyPayment string        `json:"monthlyPayment,omitempty"`
}

type Totals struct {
	Expenses     string `json:"expenses"`
	Debts        string `json:"debts"`
	Installments string `json:"installments"`
}

// View renders the current state of step.
func (f *Flow) View(step Step) StepView {
	d, _ := f.seq.Descriptor(step)
	draft := f.store.Draft()
	dates := f.store.DateInputs()

	v := StepView{
		Step:       step,
		Title:      d.Title,
		Path:       d.Path(),
		Progress:   f.seq.Progress(step),
		Steps:      f.seq.Steps(),
		Currencies: core.SupportedCurrencies,
		Categories: f.store.Categories(),
		Currency:   draft.Currency,
		Incomes:    draft.Incomes,
		Expenses:   draft.Expenses,
		Debts:      draft.Debts,
		Installs:   make([]InstallmentView, 0, len(draft.Installments)),
		Errors:     f.store.Errors(),
	}
	if back, ok := f.seq.PreviousPath(step); ok {
		v.BackPath = back
	}

	var expenseAmounts, debtAmounts, installmentAmounts []string
	for _, e := range draft.Expenses {
		expenseAmounts = append(expenseAmounts, e.Amount)
	}
	for _, debt := range draft.Debts {
		debtAmounts = append(debtAmounts, debt.TotalDebt)
	}
	for _, row := range draft.Installments {
		installmentAmounts = append(installmentAmounts, row.TotalAmount)
		iv := InstallmentView{InstallmentRow: row, Date: dates[row.ID]}
		if monthly, err := core.MonthlyPayment(row.TotalAmount, row.TotalPayments); err == nil {
			iv.MonthlyPayment = monthly.StringFixed(2)
		}
		v.Installs = append(v.Installs, iv)
	}
	v.Totals = Totals{
		Expenses:     core.SumAmounts(expenseAmounts...).StringFixed(2),
		Debts:        core.SumAmounts(debtAmounts...).StringFixed(2),
		Installments: core.SumAmounts(installmentAmounts...).StringFixed(2),
	}
	return v
}
