package onboarding

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"finfix/internal/core"
)

var (
	ErrRowNotFound    = errors.New("row not found")
	ErrRejectedInput  = errors.New("input rejected")
	ErrUnknownField   = errors.New("unknown field")
	ErrNotInitialized = errors.New("draft not initialized")
)

type (
	ExpenseRow struct {
		ID          string `json:"id"`
		CategoryID  string `json:"categoryId"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}

	DebtRow struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		TotalDebt   string `json:"totalDebt"`
		Interest    string `json:"interest"`
	}

	InstallmentRow struct {
		ID            string    `json:"id"`
		Description   string    `json:"description"`
		StartDate     core.Date `json:"startDate"`
		TotalAmount   string    `json:"totalAmount"`
		TotalPayments int       `json:"totalPayments"`
	}

	// Draft is the working copy of the user's answers. The same shape holds
	// the snapshot of what the backend last confirmed.
	Draft struct {
		Currency     core.Currency    `json:"currency,omitempty"`
		Incomes      string           `json:"incomes"`
		Expenses     []ExpenseRow     `json:"expenses"`
		Debts        []DebtRow        `json:"debts"`
		Installments []InstallmentRow `json:"installments"`
	}

	// ValidationErrors holds inline messages keyed by row id.
	ValidationErrors struct {
		Incomes      string            `json:"incomes,omitempty"`
		Expenses     map[string]string `json:"expenses,omitempty"`
		Debts        map[string]string `json:"debts,omitempty"`
		Installments map[string]string `json:"installments,omitempty"`
	}
)

func (d Draft) clone() Draft {
	return Draft{
		Currency:     d.Currency,
		Incomes:      d.Incomes,
		Expenses:     slices.Clone(d.Expenses),
		Debts:        slices.Clone(d.Debts),
		Installments: slices.Clone(d.Installments),
	}
}

// Empty reports whether no field carries an error.
func (v ValidationErrors) Empty() bool {
	return v.Incomes == "" && len(v.Expenses) == 0 && len(v.Debts) == 0 && len(v.Installments) == 0
}

func (v ValidationErrors) clone() ValidationErrors {
	return ValidationErrors{
		Incomes:      v.Incomes,
		Expenses:     cloneMessages(v.Expenses),
		Debts:        cloneMessages(v.Debts),
		Installments: cloneMessages(v.Installments),
	}
}

func cloneMessages(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func setMessage(m *map[string]string, id, msg string) {
	if *m == nil {
		*m = make(map[string]string)
	}
	(*m)[id] = msg
}

// Store holds the draft and the snapshot for one onboarding flow.
// All methods are safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	initialized bool
	draft       Draft
	original    Draft
	errs        ValidationErrors
	categories  []core.Category
	dates       map[string]*DateInput

	newID func() string
	now   func() time.Time
}

type StoreOption func(*Store)

// WithIDGenerator replaces the uuid row id generator.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// WithClock sets the clock used for date horizon checks.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		dates: make(map[string]*DateInput),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitializeFromSummary seeds the draft and the snapshot. Only the first call
// has any effect; it reports whether this call did the seeding.
func (s *Store) InitializeFromSummary(summary core.Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return false
	}

	// rows the backend sent without an id get a local one and stay out of
	// the snapshot, so they are created rather than updated or deleted
	local := make(map[string]bool)
	idOr := func(id string) string {
		if id != "" {
			return id
		}
		id = s.newID()
		local[id] = true
		return id
	}

	d := Draft{
		Currency:     summary.Currency,
		Incomes:      summary.Incomes,
		Expenses:     make([]ExpenseRow, 0, len(summary.Expenses)),
		Debts:        make([]DebtRow, 0, len(summary.Debts)),
		Installments: make([]InstallmentRow, 0, len(summary.Installments)),
	}
	for _, e := range summary.Expenses {
		d.Expenses = append(d.Expenses, ExpenseRow{
			ID:          idOr(e.ID),
			CategoryID:  e.CategoryID,
			Amount:      e.Amount,
			Description: e.Description,
		})
	}
	for _, debt := range summary.Debts {
		d.Debts = append(d.Debts, DebtRow{
			ID:          idOr(debt.ID),
			Description: debt.Description,
			TotalDebt:   debt.TotalDebt,
			Interest:    debt.Interest,
		})
	}
	for _, in := range summary.Installments {
		row := InstallmentRow{
			ID:            idOr(in.ID),
			Description:   in.Description,
			StartDate:     in.StartDate,
			TotalAmount:   in.TotalAmount,
			TotalPayments: in.TotalPayments,
		}
		d.Installments = append(d.Installments, row)
		s.dates[row.ID] = NewDateInput(row.StartDate)
	}

	s.draft = d
	s.original = d.clone()
	isLocal := func(id string) bool { return local[id] }
	s.original.Expenses = slices.DeleteFunc(s.original.Expenses, func(r ExpenseRow) bool { return isLocal(r.ID) })
	s.original.Debts = slices.DeleteFunc(s.original.Debts, func(r DebtRow) bool { return isLocal(r.ID) })
	s.original.Installments = slices.DeleteFunc(s.original.Installments, func(r InstallmentRow) bool { return isLocal(r.ID) })
	s.applyDefaultCategory()
	s.initialized = true
	return true
}

func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Draft returns a copy of the working draft.
func (s *Store) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.clone()
}

// Snapshot returns a copy of the last confirmed server state.
func (s *Store) Snapshot() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original.clone()
}

func (s *Store) Errors() ValidationErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.clone()
}

func (s *Store) Categories() []core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories)
}

// SetCategories records the selectable categories and defaults rows created
// without one to the first option.
func (s *Store) SetCategories(categories []core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = slices.Clone(categories)
	s.applyDefaultCategory()
}

// applyDefaultCategory fills empty categories in the draft and the snapshot
// alike; defaulting alone is not a change.
func (s *Store) applyDefaultCategory() {
	if len(s.categories) == 0 {
		return
	}
	for _, rows := range [][]ExpenseRow{s.draft.Expenses, s.original.Expenses} {
		for i := range rows {
			if rows[i].CategoryID == "" {
				rows[i].CategoryID = s.categories[0].ID
			}
		}
	}
}

// SetCurrencyLocally records a currency the backend has already accepted.
func (s *Store) SetCurrencyLocally(c core.Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Currency = c
	s.original.Currency = c
}

// SetIncomes stores the incomes text. The incomes error is cleared as soon as
// the value is non-empty, before any re-validation.
func (s *Store) SetIncomes(text string) error {
	if !core.MatchesDecimalInput(text) {
		return ErrRejectedInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Incomes = text
	if text != "" {
		s.errs.Incomes = ""
	}
	return nil
}

func (s *Store) SetIncomesError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs.Incomes = msg
}

// AddExpense appends a local expense row. An empty defaultCategoryID falls
// back to the first known category.
func (s *Store) AddExpense(defaultCategoryID string) ExpenseRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if defaultCategoryID == "" && len(s.categories) > 0 {
		defaultCategoryID = s.categories[0].ID
	}
	row := ExpenseRow{ID: s.newID(), CategoryID: defaultCategoryID}
	s.draft.Expenses = append(s.draft.Expenses, row)
	return row
}

// RemoveExpense drops the row locally. Expenses are never deleted remotely
// from the wizard.
func (s *Store) RemoveExpense(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs.Expenses, id)
	return removeRow(&s.draft.Expenses, func(r ExpenseRow) bool { return r.ID == id })
}

func (s *Store) AddDebt() DebtRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := DebtRow{ID: s.newID()}
	s.draft.Debts = append(s.draft.Debts, row)
	return row
}

// RemoveDebtLocally drops the debt from the draft only.
func (s *Store) RemoveDebtLocally(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs.Debts, id)
	return removeRow(&s.draft.Debts, func(r DebtRow) bool { return r.ID == id })
}

func (s *Store) AddInstallment() InstallmentRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := InstallmentRow{ID: s.newID()}
	s.draft.Installments = append(s.draft.Installments, row)
	s.dates[row.ID] = NewDateInput(core.Date{})
	return row
}

// RemoveInstallmentLocally drops the installment from the draft only.
func (s *Store) RemoveInstallmentLocally(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errs.Installments, id)
	delete(s.dates, id)
	return removeRow(&s.draft.Installments, func(r InstallmentRow) bool { return r.ID == id })
}

// IsServerDebt reports whether the debt id is part of the snapshot.
func (s *Store) IsServerDebt(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.original.Debts, func(r DebtRow) bool { return r.ID == id })
}

// IsServerInstallment reports whether the installment id is part of the snapshot.
func (s *Store) IsServerInstallment(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.original.Installments, func(r InstallmentRow) bool { return r.ID == id })
}

func (s *Store) forgetDebt(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removeRow(&s.original.Debts, func(r DebtRow) bool { return r.ID == id })
}

func (s *Store) forgetInstallment(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removeRow(&s.original.Installments, func(r InstallmentRow) bool { return r.ID == id })
}

// HasExpensesChanged compares the expense rows, in order, with the snapshot.
func (s *Store) HasExpensesChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !slices.Equal(s.draft.Expenses, s.original.Expenses)
}

// HasDebtsChanged compares the debt rows, in order, with the snapshot.
func (s *Store) HasDebtsChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !slices.Equal(s.draft.Debts, s.original.Debts)
}

func (s *Store) HasInstallmentsChanged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !slices.EqualFunc(s.draft.Installments, s.original.Installments, func(a, b InstallmentRow) bool {
		return a.ID == b.ID && a.Description == b.Description && a.StartDate.Equal(b.StartDate.Time) &&
			a.TotalAmount == b.TotalAmount && a.TotalPayments == b.TotalPayments
	})
}

// commitIncomes marks the current incomes as confirmed by the backend.
func (s *Store) commitIncomes(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original.Incomes = text
}

func (s *Store) commitExpenses(rows []ExpenseRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original.Expenses = slices.Clone(rows)
}

// commitDebts upserts saved rows into the snapshot, keeping draft order for
// new rows.
func (s *Store) commitDebts(rows ...DebtRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		i := slices.IndexFunc(s.original.Debts, func(r DebtRow) bool { return r.ID == row.ID })
		if i >= 0 {
			s.original.Debts[i] = row
			continue
		}
		s.original.Debts = append(s.original.Debts, row)
	}
}

func (s *Store) commitInstallments(rows []InstallmentRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.original.Installments = slices.Clone(rows)
}

func removeRow[T any](rows *[]T, match func(T) bool) bool {
	i := slices.IndexFunc(*rows, match)
	if i < 0 {
		return false
	}
	*rows = slices.Delete(*rows, i, i+1)
	return true
}
