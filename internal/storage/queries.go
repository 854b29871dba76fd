package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type (
	User struct {
		ID          string
		Email       string
		Name        string
		Currency    string
		Incomes     string
		IsOnboarded bool
	}

	Category struct {
		ID   string
		Name string
	}

	Expense struct {
		ID          string
		UserID      string
		CategoryID  string
		Amount      string
		Description string
	}

	Debt struct {
		ID          string
		UserID      string
		Description string
		TotalDebt   string
		Interest    string
	}

	Installment struct {
		ID            string
		UserID        string
		Description   string
		StartDate     string
		TotalAmount   string
		TotalPayments int64
	}

	ExportJob struct {
		ID        int64
		UserID    string
		Status    string
		Attempts  int64
		LastError sql.NullString
	}

	ExportQueueStats struct {
		Pending    int64
		Processing int64
		Completed  int64
		Failed     int64
	}
)

const ensureUser = `INSERT INTO users (id) VALUES (?) ON CONFLICT(id) DO NOTHING`

func (q *Queries) EnsureUser(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, ensureUser, id)
	return err
}

const upsertIdentity = `
INSERT INTO users (id, email, name) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name, updated_at = unixepoch()`

func (q *Queries) UpsertIdentity(ctx context.Context, id, email, name string) error {
	_, err := q.db.ExecContext(ctx, upsertIdentity, id, email, name)
	return err
}

const getUser = `SELECT id, email, name, currency, incomes, is_onboarded FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.Name, &u.Currency, &u.Incomes, &u.IsOnboarded)
	return u, err
}

const setCurrency = `UPDATE users SET currency = ?, updated_at = unixepoch() WHERE id = ?`

func (q *Queries) SetCurrency(ctx context.Context, id, currency string) error {
	_, err := q.db.ExecContext(ctx, setCurrency, currency, id)
	return err
}

const setIncomes = `UPDATE users SET incomes = ?, updated_at = unixepoch() WHERE id = ?`

func (q *Queries) SetIncomes(ctx context.Context, id, incomes string) error {
	_, err := q.db.ExecContext(ctx, setIncomes, incomes, id)
	return err
}

const markOnboarded = `UPDATE users SET is_onboarded = 1, updated_at = unixepoch() WHERE id = ?`

func (q *Queries) MarkOnboarded(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markOnboarded, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listCategories = `SELECT id, name FROM categories ORDER BY position, name`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const upsertExpense = `
INSERT INTO expenses (id, user_id, category_id, amount, description) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    category_id = excluded.category_id,
    amount = excluded.amount,
    description = excluded.description,
    updated_at = unixepoch()
WHERE expenses.user_id = excluded.user_id`

func (q *Queries) UpsertExpense(ctx context.Context, e Expense) error {
	_, err := q.db.ExecContext(ctx, upsertExpense, e.ID, e.UserID, e.CategoryID, e.Amount, e.Description)
	return err
}

const listExpenses = `SELECT id, user_id, category_id, amount, description FROM expenses WHERE user_id = ? ORDER BY created_at, id`

func (q *Queries) ListExpenses(ctx context.Context, userID string) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Expense{}
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Amount, &e.Description); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const upsertDebt = `
INSERT INTO debts (id, user_id, description, total_debt, interest) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    description = excluded.description,
    total_debt = excluded.total_debt,
    interest = excluded.interest,
    updated_at = unixepoch()
WHERE debts.user_id = excluded.user_id`

func (q *Queries) UpsertDebt(ctx context.Context, d Debt) error {
	_, err := q.db.ExecContext(ctx, upsertDebt, d.ID, d.UserID, d.Description, d.TotalDebt, d.Interest)
	return err
}

const updateDebt = `UPDATE debts SET description = ?, total_debt = ?, interest = ?, updated_at = unixepoch() WHERE id = ?`

func (q *Queries) UpdateDebt(ctx context.Context, d Debt) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateDebt, d.Description, d.TotalDebt, d.Interest, d.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteDebt = `DELETE FROM debts WHERE id = ?`

func (q *Queries) DeleteDebt(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteDebt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listDebts = `SELECT id, user_id, description, total_debt, interest FROM debts WHERE user_id = ? ORDER BY created_at, id`

func (q *Queries) ListDebts(ctx context.Context, userID string) ([]Debt, error) {
	rows, err := q.db.QueryContext(ctx, listDebts, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Debt{}
	for rows.Next() {
		var d Debt
		if err := rows.Scan(&d.ID, &d.UserID, &d.Description, &d.TotalDebt, &d.Interest); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const upsertInstallment = `
INSERT INTO installments (id, user_id, description, start_date, total_amount, total_payments) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    description = excluded.description,
    start_date = excluded.start_date,
    total_amount = excluded.total_amount,
    total_payments = excluded.total_payments,
    updated_at = unixepoch()
WHERE installments.user_id = excluded.user_id`

func (q *Queries) UpsertInstallment(ctx context.Context, i Installment) error {
	_, err := q.db.ExecContext(ctx, upsertInstallment, i.ID, i.UserID, i.Description, i.StartDate, i.TotalAmount, i.TotalPayments)
	return err
}

const deleteInstallment = `DELETE FROM installments WHERE id = ?`

func (q *Queries) DeleteInstallment(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteInstallment, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listInstallments = `
SELECT id, user_id, description, start_date, total_amount, total_payments
FROM installments WHERE user_id = ? ORDER BY created_at, id`

func (q *Queries) ListInstallments(ctx context.Context, userID string) ([]Installment, error) {
	rows, err := q.db.QueryContext(ctx, listInstallments, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Installment{}
	for rows.Next() {
		var i Installment
		if err := rows.Scan(&i.ID, &i.UserID, &i.Description, &i.StartDate, &i.TotalAmount, &i.TotalPayments); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const enqueueExport = `
INSERT INTO export_queue (user_id, status, attempts, next_attempt_at, updated_at) VALUES (?, 'pending', 0, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    status = 'pending',
    attempts = 0,
    last_error = NULL,
    next_attempt_at = excluded.next_attempt_at,
    updated_at = excluded.updated_at`

func (q *Queries) EnqueueExport(ctx context.Context, userID string, now int64) error {
	_, err := q.db.ExecContext(ctx, enqueueExport, userID, now, now)
	return err
}

const dequeueExportBatch = `
SELECT id, user_id, status, attempts, last_error FROM export_queue
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY next_attempt_at, id LIMIT ?`

func (q *Queries) DequeueExportBatch(ctx context.Context, now, limit int64) ([]ExportJob, error) {
	rows, err := q.db.QueryContext(ctx, dequeueExportBatch, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExportJob
	for rows.Next() {
		var j ExportJob
		if err := rows.Scan(&j.ID, &j.UserID, &j.Status, &j.Attempts, &j.LastError); err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	return items, rows.Err()
}

const markExportProcessing = `UPDATE export_queue SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`

func (q *Queries) MarkExportProcessing(ctx context.Context, id, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markExportProcessing, now, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markExportComplete = `UPDATE export_queue SET status = 'completed', last_error = NULL, updated_at = ? WHERE id = ?`

func (q *Queries) MarkExportComplete(ctx context.Context, id, now int64) error {
	_, err := q.db.ExecContext(ctx, markExportComplete, now, id)
	return err
}

const retryExportLater = `
UPDATE export_queue SET status = 'pending', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) RetryExportLater(ctx context.Context, id int64, lastErr string, nextAt, now int64) error {
	_, err := q.db.ExecContext(ctx, retryExportLater, lastErr, nextAt, now, id)
	return err
}

const markExportFailed = `UPDATE export_queue SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`

func (q *Queries) MarkExportFailed(ctx context.Context, id int64, lastErr string, now int64) error {
	_, err := q.db.ExecContext(ctx, markExportFailed, lastErr, now, id)
	return err
}

const resetStaleExports = `UPDATE export_queue SET status = 'pending' WHERE status = 'processing'`

func (q *Queries) ResetStaleExports(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetStaleExports)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const retryFailedExports = `UPDATE export_queue SET status = 'pending', attempts = 0, next_attempt_at = ? WHERE status = 'failed'`

func (q *Queries) RetryFailedExports(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedExports, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cleanupCompletedExports = `DELETE FROM export_queue WHERE status = 'completed' AND updated_at < ?`

func (q *Queries) CleanupCompletedExports(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupCompletedExports, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const exportQueueStats = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM export_queue`

func (q *Queries) ExportQueueStats(ctx context.Context) (ExportQueueStats, error) {
	var s ExportQueueStats
	err := q.db.QueryRowContext(ctx, exportQueueStats).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	return s, err
}
