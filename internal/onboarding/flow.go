package onboarding

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/log"
)

// maxParallelUpdates bounds the per-row debt update calls issued on Next.
const maxParallelUpdates = 4

// Flow is one user's pass through the wizard: the draft store plus the
// backend calls that reconcile it.
type Flow struct {
	userID  string
	seq     *Sequencer
	store   *Store
	backend finance.Backend
	logger  *log.Logger
}

func NewFlow(userID string, seq *Sequencer, store *Store, backend finance.Backend, logger *log.Logger) *Flow {
	if logger == nil {
		logger = log.Discard()
	}
	return &Flow{
		userID:  userID,
		seq:     seq,
		store:   store,
		backend: backend,
		logger:  logger.WithComponent(log.ComponentOnboarding).With(log.FieldUserID, userID),
	}
}

func (f *Flow) UserID() string { return f.userID }

func (f *Flow) Store() *Store { return f.store }

func (f *Flow) Sequencer() *Sequencer { return f.seq }

// Load fetches the summary and the categories concurrently and seeds the
// store. A failed fetch leaves that part at its empty default and is
// reported as a *LoadError.
func (f *Flow) Load(ctx context.Context) (core.Summary, error) {
	var (
		summary    core.Summary
		categories []core.Category
		loadErr    LoadError
		g          errgroup.Group
	)
	g.Go(func() error {
		summary, loadErr.Summary = f.backend.FetchSummary(ctx, f.userID)
		return nil
	})
	g.Go(func() error {
		categories, loadErr.Categories = f.backend.ListCategories(ctx)
		return nil
	})
	_ = g.Wait()

	if loadErr.Categories == nil {
		f.store.SetCategories(categories)
	}
	if loadErr.Summary == nil {
		f.store.InitializeFromSummary(summary)
	}
	if loadErr.Summary != nil || loadErr.Categories != nil {
		f.logger.WarnContext(ctx, "Onboarding data partially unavailable", log.FieldError, loadErr.Error())
		return summary, &loadErr
	}
	return summary, nil
}

// Resolve fetches a fresh summary and decides where path belongs. When the
// summary cannot be fetched the user stays where they are.
func (f *Flow) Resolve(ctx context.Context, path string) (Action, error) {
	summary, err := f.backend.FetchSummary(ctx, f.userID)
	if err != nil {
		return Stay(), &LoadError{Summary: err}
	}
	f.store.InitializeFromSummary(summary)
	return f.seq.Resolve(summary, path), nil
}

// SetCurrency persists the currency first. The draft only changes once the
// backend accepted it.
func (f *Flow) SetCurrency(ctx context.Context, raw string) error {
	currency, err := core.ParseCurrency(raw)
	if err != nil {
		return err
	}
	if err := f.backend.UpsertCurrency(ctx, f.userID, currency); err != nil {
		f.logger.ErrorContext(ctx, "Failed to update currency", log.FieldCurrency, currency, log.FieldError, err)
		return persistence("upsert currency", err)
	}
	f.store.SetCurrencyLocally(currency)
	return nil
}

// Next runs the save policy of step and returns the route to navigate to.
// Validation failures return *ValidationError, failed saves
// *PersistenceError; in both cases the user stays on step.
func (f *Flow) Next(ctx context.Context, step Step) (string, error) {
	var err error
	switch step {
	case StepIncomes:
		err = f.saveIncomes(ctx)
	case StepExpenses:
		err = f.saveExpenses(ctx)
	case StepDebts:
		err = f.saveDebts(ctx)
	case StepInstallments:
		if err := f.saveInstallments(ctx); err != nil {
			return "", err
		}
		return CompletePath, nil
	case StepWelcome, StepCurrency:
	default:
		return "", errors.New("unknown step " + string(step))
	}
	if err != nil {
		return "", err
	}
	return f.seq.NextPath(step), nil
}

func (f *Flow) invalid(step Step) error {
	return &ValidationError{Step: step, Errors: f.store.Errors()}
}

func (f *Flow) saveIncomes(ctx context.Context) error {
	if !f.store.ValidateIncomes() {
		return f.invalid(StepIncomes)
	}
	incomes := f.store.Draft().Incomes
	if err := f.backend.UpsertIncomes(ctx, f.userID, incomes); err != nil {
		return persistence("upsert incomes", err)
	}
	f.store.commitIncomes(incomes)
	return nil
}

func (f *Flow) saveExpenses(ctx context.Context) error {
	if !f.store.ValidateExpenses() {
		return f.invalid(StepExpenses)
	}
	if !f.store.HasExpensesChanged() {
		return nil
	}

	rows := f.store.Draft().Expenses
	if len(rows) > 0 {
		payload := make([]core.Expense, 0, len(rows))
		for _, row := range rows {
			payload = append(payload, core.Expense{
				ID:          row.ID,
				UserID:      f.userID,
				CategoryID:  row.CategoryID,
				Amount:      row.Amount,
				Description: row.Description,
			})
		}
		if err := f.backend.CreateExpenses(ctx, payload); err != nil {
			return persistence("create expenses", err)
		}
	}
	f.store.commitExpenses(rows)
	return nil
}

// saveDebts creates rows the backend has never seen in one bulk call, then
// updates known rows one by one. The batch is best-effort: rows saved before
// a failure stay saved and are recorded in the snapshot.
func (f *Flow) saveDebts(ctx context.Context) error {
	rows := f.store.Draft().Debts
	if len(rows) > 0 && !f.store.ValidateDebts() {
		return f.invalid(StepDebts)
	}
	if !f.store.HasDebtsChanged() {
		return nil
	}

	var created, existing []DebtRow
	for _, row := range rows {
		if f.store.IsServerDebt(row.ID) {
			existing = append(existing, row)
		} else {
			created = append(created, row)
		}
	}

	if len(created) > 0 {
		payload := make([]core.Debt, 0, len(created))
		for _, row := range created {
			payload = append(payload, f.debtPayload(row, true))
		}
		if err := f.backend.CreateDebts(ctx, payload); err != nil {
			return persistence("create debts", err)
		}
		f.store.commitDebts(created...)
	}

	var g errgroup.Group
	g.SetLimit(maxParallelUpdates)
	for _, row := range existing {
		g.Go(func() error {
			if err := f.backend.UpdateDebt(ctx, row.ID, f.debtPayload(row, false)); err != nil {
				f.logger.WarnContext(ctx, "Failed to update debt", log.FieldRowID, row.ID, log.FieldError, err)
				return err
			}
			f.store.commitDebts(row)
			return nil
		})
	}
	return persistence("update debts", g.Wait())
}

func (f *Flow) debtPayload(row DebtRow, withID bool) core.Debt {
	d := core.Debt{
		UserID:      f.userID,
		Description: row.Description,
		TotalDebt:   row.TotalDebt,
		Interest:    row.Interest,
	}
	if withID {
		d.ID = row.ID
	}
	return d
}

func (f *Flow) saveInstallments(ctx context.Context) error {
	rows := f.store.Draft().Installments
	if len(rows) == 0 {
		return nil
	}
	if !f.store.ValidateInstallments() {
		return f.invalid(StepInstallments)
	}

	payload := make([]core.Installment, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, core.Installment{
			ID:            row.ID,
			UserID:        f.userID,
			Description:   row.Description,
			StartDate:     row.StartDate,
			TotalAmount:   row.TotalAmount,
			TotalPayments: row.TotalPayments,
		})
	}
	if err := f.backend.CreateInstallments(ctx, payload); err != nil {
		return persistence("create installments", err)
	}
	f.store.commitInstallments(rows)
	return nil
}

// Complete marks onboarding as finished on the backend.
func (f *Flow) Complete(ctx context.Context) error {
	return persistence("complete onboarding", f.backend.CompleteOnboarding(ctx, f.userID))
}
