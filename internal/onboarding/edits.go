package onboarding

import (
	"strconv"

	"finfix/internal/core"
)

type ExpenseField int

const (
	ExpenseCategory ExpenseField = iota + 1
	ExpenseAmount
	ExpenseDescription
)

type DebtField int

const (
	DebtDescription DebtField = iota + 1
	DebtTotalDebt
	DebtInterest
)

type InstallmentField int

const (
	InstallmentDescription InstallmentField = iota + 1
	InstallmentTotalAmount
	InstallmentTotalPayments
)

// Field edits are single keystroke-level changes to one row.
type (
	ExpenseEdit struct {
		Field ExpenseField
		Value string
	}

	DebtEdit struct {
		Field DebtField
		Value string
	}

	InstallmentEdit struct {
		Field InstallmentField
		Value string
	}
)

var (
	expenseFields = map[string]ExpenseField{
		"categoryId":  ExpenseCategory,
		"amount":      ExpenseAmount,
		"description": ExpenseDescription,
	}
	debtFields = map[string]DebtField{
		"description": DebtDescription,
		"totalDebt":   DebtTotalDebt,
		"interest":    DebtInterest,
	}
	installmentFields = map[string]InstallmentField{
		"description":   InstallmentDescription,
		"totalAmount":   InstallmentTotalAmount,
		"totalPayments": InstallmentTotalPayments,
	}
)

// ParseExpenseEdit builds an edit from a wire field name.
func ParseExpenseEdit(field, value string) (ExpenseEdit, error) {
	f, ok := expenseFields[field]
	if !ok {
		return ExpenseEdit{}, ErrUnknownField
	}
	return ExpenseEdit{Field: f, Value: value}, nil
}

func ParseDebtEdit(field, value string) (DebtEdit, error) {
	f, ok := debtFields[field]
	if !ok {
		return DebtEdit{}, ErrUnknownField
	}
	return DebtEdit{Field: f, Value: value}, nil
}

func ParseInstallmentEdit(field, value string) (InstallmentEdit, error) {
	f, ok := installmentFields[field]
	if !ok {
		return InstallmentEdit{}, ErrUnknownField
	}
	return InstallmentEdit{Field: f, Value: value}, nil
}

// UpdateExpense applies edit to the expense row. Editing a row clears its
// inline error.
func (s *Store) UpdateExpense(id string, edit ExpenseEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.draft.Expenses, id, func(r ExpenseRow) string { return r.ID })
	if i < 0 {
		return ErrRowNotFound
	}
	row := &s.draft.Expenses[i]
	switch edit.Field {
	case ExpenseCategory:
		row.CategoryID = edit.Value
	case ExpenseAmount:
		if !core.MatchesDecimalInput(edit.Value) {
			return ErrRejectedInput
		}
		row.Amount = edit.Value
	case ExpenseDescription:
		row.Description = edit.Value
	default:
		return ErrUnknownField
	}
	delete(s.errs.Expenses, id)
	return nil
}

// UpdateDebt applies edit to the debt row. Keystrokes outside the decimal
// pattern are rejected. Every total keystroke, even a rejected one, re-checks the row.
func (s *Store) UpdateDebt(id string, edit DebtEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.draft.Debts, id, func(r DebtRow) string { return r.ID })
	if i < 0 {
		return ErrRowNotFound
	}
	row := &s.draft.Debts[i]
	switch edit.Field {
	case DebtDescription:
		row.Description = edit.Value
	case DebtTotalDebt:
		accepted := core.MatchesDecimalInput(edit.Value)
		if accepted {
			row.TotalDebt = edit.Value
		}
		if msg := debtProblem(*row); msg != "" {
			setMessage(&s.errs.Debts, id, msg)
		} else {
			delete(s.errs.Debts, id)
		}
		if !accepted {
			return ErrRejectedInput
		}
	case DebtInterest:
		if !core.MatchesDecimalInput(edit.Value) {
			return ErrRejectedInput
		}
		row.Interest = edit.Value
	default:
		return ErrUnknownField
	}
	return nil
}

// UpdateInstallment applies edit to the installment row. Start dates go
// through TypeInstallmentDate instead.
func (s *Store) UpdateInstallment(id string, edit InstallmentEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.draft.Installments, id, func(r InstallmentRow) string { return r.ID })
	if i < 0 {
		return ErrRowNotFound
	}
	row := &s.draft.Installments[i]
	switch edit.Field {
	case InstallmentDescription:
		row.Description = edit.Value
	case InstallmentTotalAmount:
		if !core.MatchesDecimalInput(edit.Value) {
			return ErrRejectedInput
		}
		row.TotalAmount = edit.Value
	case InstallmentTotalPayments:
		if !core.MatchesCountInput(edit.Value) {
			return ErrRejectedInput
		}
		n := 0
		if edit.Value != "" {
			parsed, err := strconv.Atoi(edit.Value)
			if err != nil {
				return ErrRejectedInput
			}
			n = parsed
		}
		row.TotalPayments = n
	default:
		return ErrUnknownField
	}
	delete(s.errs.Installments, id)
	return nil
}

// TypeInstallmentDate feeds raw keystrokes into the row's date input. A
// complete valid date is committed to the draft.
func (s *Store) TypeInstallmentDate(id, raw string) (DateInputView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.draft.Installments, id, func(r InstallmentRow) string { return r.ID })
	if i < 0 {
		return DateInputView{}, ErrRowNotFound
	}
	in := s.dateInput(id, s.draft.Installments[i].StartDate)
	if committed, ok := in.Type(raw, s.now()); ok {
		s.draft.Installments[i].StartDate = committed
	}
	delete(s.errs.Installments, id)
	return in.View(), nil
}

// BlurInstallmentDate flags incomplete or invalid date input.
func (s *Store) BlurInstallmentDate(id string) (DateInputView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexByID(s.draft.Installments, id, func(r InstallmentRow) string { return r.ID })
	if i < 0 {
		return DateInputView{}, ErrRowNotFound
	}
	in := s.dateInput(id, s.draft.Installments[i].StartDate)
	in.Blur(s.now())
	return in.View(), nil
}

// DateInputs returns the visible state of every installment date input.
func (s *Store) DateInputs() map[string]DateInputView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]DateInputView, len(s.draft.Installments))
	for _, row := range s.draft.Installments {
		out[row.ID] = s.dateInput(row.ID, row.StartDate).View()
	}
	return out
}

func (s *Store) dateInput(id string, committed core.Date) *DateInput {
	in, ok := s.dates[id]
	if !ok {
		in = NewDateInput(committed)
		s.dates[id] = in
	}
	return in
}

func indexByID[T any](rows []T, id string, key func(T) string) int {
	for i, r := range rows {
		if key(r) == id {
			return i
		}
	}
	return -1
}
