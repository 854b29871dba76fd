package onboarding

import (
	"slices"
	"strings"

	"finfix/internal/core"
)

const (
	msgIncomesRequired     = "Please, enter amount of your incomes"
	msgCategoryRequired    = "Please select a category"
	msgAmountPositive      = "Amount must be greater than zero"
	msgTotalDebtRequired   = "Total debt is required"
	msgTotalDebtPositive   = "Total debt must be greater than zero"
	msgStartDateRequired   = "Start date is required"
	msgTotalAmountPositive = "Total amount must be greater than zero"
	msgPaymentsRequired    = "Number of payments must be at least 1"
)

// ValidateIncomes only requires a non-empty value. Zero is saved and left
// to the resolver, which sends the user back to incomes.
func (s *Store) ValidateIncomes() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs.Incomes = ""
	if strings.TrimSpace(s.draft.Incomes) == "" {
		s.errs.Incomes = msgIncomesRequired
	}
	return s.errs.Incomes == ""
}

// ValidateExpenses checks every expense row and replaces the expense errors.
func (s *Store) ValidateExpenses() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs.Expenses = nil
	for _, row := range s.draft.Expenses {
		if msg := s.expenseProblem(row); msg != "" {
			setMessage(&s.errs.Expenses, row.ID, msg)
		}
	}
	return len(s.errs.Expenses) == 0
}

func (s *Store) expenseProblem(row ExpenseRow) string {
	known := slices.ContainsFunc(s.categories, func(c core.Category) bool { return c.ID == row.CategoryID })
	if !known {
		return msgCategoryRequired
	}
	if !core.IsPositiveAmount(row.Amount) {
		return msgAmountPositive
	}
	return ""
}

// ValidateDebts checks every debt row and replaces the debt errors.
func (s *Store) ValidateDebts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs.Debts = nil
	for _, row := range s.draft.Debts {
		if msg := debtProblem(row); msg != "" {
			setMessage(&s.errs.Debts, row.ID, msg)
		}
	}
	return len(s.errs.Debts) == 0
}

// ValidateDebtRow re-checks one debt row, as on blur.
func (s *Store) ValidateDebtRow(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.draft.Debts, id, func(r DebtRow) string { return r.ID })
	if i < 0 {
		return false, ErrRowNotFound
	}
	if msg := debtProblem(s.draft.Debts[i]); msg != "" {
		setMessage(&s.errs.Debts, id, msg)
		return false, nil
	}
	delete(s.errs.Debts, id)
	return true, nil
}

func debtProblem(row DebtRow) string {
	if strings.TrimSpace(row.TotalDebt) == "" {
		return msgTotalDebtRequired
	}
	if !core.IsPositiveAmount(row.TotalDebt) {
		return msgTotalDebtPositive
	}
	return ""
}

// ValidateInstallments checks every installment row, including the state of
// its date input, and replaces the installment errors.
func (s *Store) ValidateInstallments() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errs.Installments = nil
	for _, row := range s.draft.Installments {
		if msg := s.installmentProblem(row); msg != "" {
			setMessage(&s.errs.Installments, row.ID, msg)
		}
	}
	return len(s.errs.Installments) == 0
}

func (s *Store) installmentProblem(row InstallmentRow) string {
	if in, ok := s.dates[row.ID]; ok {
		if msg := in.Problem(); msg != "" {
			return msg
		}
	}
	switch {
	case row.StartDate.IsEmpty():
		return msgStartDateRequired
	case !core.IsPositiveAmount(row.TotalAmount):
		return msgTotalAmountPositive
	case row.TotalPayments < 1:
		return msgPaymentsRequired
	}
	return ""
}
