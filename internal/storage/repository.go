package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoRows is returned when a lookup or targeted write matches nothing.
var ErrNoRows = errors.New("no rows")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpsertIdentity records who a user is, creating the row on first sight.
func (r *SQLiteRepository) UpsertIdentity(ctx context.Context, id, email, name string) error {
	if err := r.queries.UpsertIdentity(ctx, id, email, name); err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// GetUser returns ErrNoRows when the user was never seen.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (User, error) {
	u, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoRows
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UserRows is everything the onboarding summary is built from.
type UserRows struct {
	User         User
	Expenses     []Expense
	Debts        []Debt
	Installments []Installment
}

func (r *SQLiteRepository) LoadUserRows(ctx context.Context, userID string) (UserRows, error) {
	var out UserRows
	u, err := r.GetUser(ctx, userID)
	switch {
	case errors.Is(err, ErrNoRows):
		out.User = User{ID: userID}
	case err != nil:
		return UserRows{}, err
	default:
		out.User = u
	}
	if out.Expenses, err = r.queries.ListExpenses(ctx, userID); err != nil {
		return UserRows{}, fmt.Errorf("list expenses: %w", err)
	}
	if out.Debts, err = r.queries.ListDebts(ctx, userID); err != nil {
		return UserRows{}, fmt.Errorf("list debts: %w", err)
	}
	if out.Installments, err = r.queries.ListInstallments(ctx, userID); err != nil {
		return UserRows{}, fmt.Errorf("list installments: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]Category, error) {
	cats, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (r *SQLiteRepository) SetCurrency(ctx context.Context, userID, currency string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.EnsureUser(ctx, userID); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		if err := q.SetCurrency(ctx, userID, currency); err != nil {
			return fmt.Errorf("set currency: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) SetIncomes(ctx context.Context, userID, incomes string) error {
	return r.inTx(ctx, func(q *Queries) error {
		if err := q.EnsureUser(ctx, userID); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		if err := q.SetIncomes(ctx, userID, incomes); err != nil {
			return fmt.Errorf("set incomes: %w", err)
		}
		return nil
	})
}

// SaveExpenses upserts the batch atomically.
func (r *SQLiteRepository) SaveExpenses(ctx context.Context, expenses []Expense) error {
	err := r.inTx(ctx, func(q *Queries) error {
		for _, e := range expenses {
			if err := q.EnsureUser(ctx, e.UserID); err != nil {
				return fmt.Errorf("ensure user: %w", err)
			}
			if err := q.UpsertExpense(ctx, e); err != nil {
				return fmt.Errorf("upsert expense %s: %w", e.ID, err)
			}
		}
		return nil
	})
	if err == nil {
		slog.DebugContext(ctx, "Expenses saved to SQLite", "count", len(expenses))
	}
	return err
}

func (r *SQLiteRepository) SaveDebts(ctx context.Context, debts []Debt) error {
	return r.inTx(ctx, func(q *Queries) error {
		for _, d := range debts {
			if err := q.EnsureUser(ctx, d.UserID); err != nil {
				return fmt.Errorf("ensure user: %w", err)
			}
			if err := q.UpsertDebt(ctx, d); err != nil {
				return fmt.Errorf("upsert debt %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateDebt(ctx context.Context, d Debt) error {
	n, err := r.queries.UpdateDebt(ctx, d)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func (r *SQLiteRepository) DeleteDebt(ctx context.Context, id string) error {
	n, err := r.queries.DeleteDebt(ctx, id)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func (r *SQLiteRepository) SaveInstallments(ctx context.Context, installments []Installment) error {
	return r.inTx(ctx, func(q *Queries) error {
		for _, in := range installments {
			if err := q.EnsureUser(ctx, in.UserID); err != nil {
				return fmt.Errorf("ensure user: %w", err)
			}
			if err := q.UpsertInstallment(ctx, in); err != nil {
				return fmt.Errorf("upsert installment %s: %w", in.ID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteInstallment(ctx context.Context, id string) error {
	n, err := r.queries.DeleteInstallment(ctx, id)
	if err != nil {
		return fmt.Errorf("delete installment: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

// CompleteOnboarding flags the user and queues the profile export in one
// transaction.
func (r *SQLiteRepository) CompleteOnboarding(ctx context.Context, userID string) error {
	now := r.now().Unix()
	return r.inTx(ctx, func(q *Queries) error {
		n, err := q.MarkOnboarded(ctx, userID)
		if err != nil {
			return fmt.Errorf("mark onboarded: %w", err)
		}
		if n == 0 {
			return ErrNoRows
		}
		if err := q.EnqueueExport(ctx, userID, now); err != nil {
			return fmt.Errorf("enqueue export: %w", err)
		}
		return nil
	})
}

// EnqueueExport schedules a profile export. Enqueueing a user that is
// already queued resets the job.
func (r *SQLiteRepository) EnqueueExport(ctx context.Context, userID string) error {
	if err := r.queries.EnqueueExport(ctx, userID, r.now().Unix()); err != nil {
		return fmt.Errorf("enqueue export: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DequeueExportBatch(ctx context.Context, limit int) ([]ExportJob, error) {
	jobs, err := r.queries.DequeueExportBatch(ctx, r.now().Unix(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("dequeue export batch: %w", err)
	}
	return jobs, nil
}

// MarkExportProcessing claims a pending job. It returns ErrNoRows when
// someone else already claimed it.
func (r *SQLiteRepository) MarkExportProcessing(ctx context.Context, id int64) error {
	n, err := r.queries.MarkExportProcessing(ctx, id, r.now().Unix())
	if err != nil {
		return fmt.Errorf("mark export processing: %w", err)
	}
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

func (r *SQLiteRepository) MarkExportComplete(ctx context.Context, id int64) error {
	if err := r.queries.MarkExportComplete(ctx, id, r.now().Unix()); err != nil {
		return fmt.Errorf("mark export complete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RetryExportLater(ctx context.Context, id int64, lastErr string, delay time.Duration) error {
	now := r.now()
	if err := r.queries.RetryExportLater(ctx, id, lastErr, now.Add(delay).Unix(), now.Unix()); err != nil {
		return fmt.Errorf("schedule export retry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkExportFailed(ctx context.Context, id int64, lastErr string) error {
	if err := r.queries.MarkExportFailed(ctx, id, lastErr, r.now().Unix()); err != nil {
		return fmt.Errorf("mark export failed: %w", err)
	}
	slog.WarnContext(ctx, "Export marked as failed", "id", id, "error", lastErr)
	return nil
}

// ResetStaleExports returns jobs left in processing by a crashed worker to
// the pending state.
func (r *SQLiteRepository) ResetStaleExports(ctx context.Context) error {
	n, err := r.queries.ResetStaleExports(ctx)
	if err != nil {
		return fmt.Errorf("reset stale exports: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale export jobs", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedExports(ctx context.Context) (int64, error) {
	n, err := r.queries.RetryFailedExports(ctx, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("retry failed exports: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) CleanupCompletedExports(ctx context.Context, before time.Time) error {
	n, err := r.queries.CleanupCompletedExports(ctx, before.Unix())
	if err != nil {
		return fmt.Errorf("cleanup completed exports: %w", err)
	}
	if n > 0 {
		slog.DebugContext(ctx, "Cleaned up completed exports", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) ExportQueueStats(ctx context.Context) (ExportQueueStats, error) {
	s, err := r.queries.ExportQueueStats(ctx)
	if err != nil {
		return ExportQueueStats{}, fmt.Errorf("export queue stats: %w", err)
	}
	return s, nil
}
