// Package worker turns onboarding completions into spreadsheet rows.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finfix/internal/amqp"
	"finfix/internal/core"
	"finfix/internal/finance"
	"finfix/internal/log"
	"finfix/internal/sheets"
)

// ExportQueue durably records that a user's profile needs exporting.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, userID string) error
}

// ExportWorker reads a user's profile from the finance backend and writes
// it to the exporter.
type ExportWorker struct {
	queue     ExportQueue
	summaries finance.SummaryReader
	identity  finance.IdentityReader
	exporter  sheets.ProfileExporter
	logger    *log.Logger
	now       func() time.Time
}

// NewExportWorker builds a worker. queue may be nil, in which case messages
// are exported inline instead of being queued.
func NewExportWorker(queue ExportQueue, summaries finance.SummaryReader, identity finance.IdentityReader, exporter sheets.ProfileExporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		queue:     queue,
		summaries: summaries,
		identity:  identity,
		exporter:  exporter,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleCompletedMessage is the AMQP handler for onboarding completions.
func (w *ExportWorker) HandleCompletedMessage(ctx context.Context, msg *amqp.OnboardingCompletedMessage) error {
	w.logger.InfoContext(ctx, "Processing onboarding completed message",
		log.FieldUserID, msg.UserID,
		log.FieldMode, msg.Mode,
		"published_at", msg.Timestamp)

	if w.queue == nil {
		return w.ExportUser(ctx, msg.UserID)
	}
	if err := w.queue.EnqueueExport(ctx, msg.UserID); err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}
	return nil
}

// ExportUser writes the current profile of userID.
func (w *ExportWorker) ExportUser(ctx context.Context, userID string) error {
	summary, err := w.summaries.FetchSummary(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch summary: %w", err)
	}

	id, err := w.identity.Identity(ctx, userID)
	switch {
	case errors.Is(err, finance.ErrNotFound):
		// the profile is still worth exporting without contact details
		id = core.Identity{ID: userID}
	case err != nil:
		return fmt.Errorf("fetch identity: %w", err)
	}
	if id.ID == "" {
		id.ID = userID
	}

	row := sheets.BuildProfileRow(id, summary, w.now())
	ref, err := w.exporter.ExportProfile(ctx, row)
	if err != nil {
		return fmt.Errorf("export profile: %w", err)
	}

	w.logger.InfoContext(ctx, "Exported onboarding profile",
		log.FieldUserID, userID,
		log.FieldOperation, log.OpExport,
		"sheets_ref", ref,
		log.FieldCurrency, string(summary.Currency))
	return nil
}
