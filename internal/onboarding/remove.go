package onboarding

import (
	"context"

	"finfix/internal/log"
)

// Removal of debts and installments runs in two phases. The local removal is
// always applied. The remote delete only runs for rows present in the
// snapshot; its failure is returned but the local removal is kept. A row
// whose remote delete failed stays in the snapshot, since the backend still
// holds it.

// RemoveDebt removes a debt row from the draft and, when the backend knows
// it, deletes it remotely.
func (f *Flow) RemoveDebt(ctx context.Context, id string) error {
	known := f.store.IsServerDebt(id)
	if !f.store.RemoveDebtLocally(id) && !known {
		return ErrRowNotFound
	}
	if !known {
		return nil
	}
	if err := f.backend.DeleteDebt(ctx, id); err != nil {
		f.logger.WarnContext(ctx, "Failed to delete debt", log.NewFields().WithRow("debt", id).WithError(err).ToSlice()...)
		return persistence("delete debt", err)
	}
	f.store.forgetDebt(id)
	return nil
}

// RemoveInstallment mirrors RemoveDebt for installment rows.
func (f *Flow) RemoveInstallment(ctx context.Context, id string) error {
	known := f.store.IsServerInstallment(id)
	if !f.store.RemoveInstallmentLocally(id) && !known {
		return ErrRowNotFound
	}
	if !known {
		return nil
	}
	if err := f.backend.DeleteInstallment(ctx, id); err != nil {
		f.logger.WarnContext(ctx, "Failed to delete installment", log.NewFields().WithRow("installment", id).WithError(err).ToSlice()...)
		return persistence("delete installment", err)
	}
	f.store.forgetInstallment(id)
	return nil
}
