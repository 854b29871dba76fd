// Package memory is an in-process finance backend for development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"finfix/internal/core"
	"finfix/internal/finance"
)

type user struct {
	identity     core.Identity
	currency     core.Currency
	incomes      string
	expenses     []core.Expense
	debts        []core.Debt
	installments []core.Installment
}

type Store struct {
	mu    sync.Mutex
	cats  []core.Category
	users map[string]*user
	owner map[string]string // row id -> user id
}

var _ finance.Backend = (*Store)(nil)

func New(cats []core.Category) *Store {
	return &Store{
		cats:  dedupe(cats),
		users: map[string]*user{},
		owner: map[string]string{},
	}
}

// NewFromFiles seeds categories from seed_categories.txt under base, one
// "id name" pair per line.
func NewFromFiles(base string) *Store {
	cats := readCategories(filepath.Join(base, "seed_categories.txt"))
	if len(cats) == 0 {
		cats = DefaultCategories()
	}
	return New(cats)
}

func DefaultCategories() []core.Category {
	return []core.Category{
		{ID: "housing", Name: "Housing"},
		{ID: "food", Name: "Food"},
		{ID: "transport", Name: "Transport"},
		{ID: "health", Name: "Health"},
		{ID: "leisure", Name: "Leisure"},
	}
}

// AddUser registers an identity so that sessions can be opened for it.
func (s *Store) AddUser(id core.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(id.ID).identity = id
}

// RegisterIdentity records a user seen for the first time at login.
func (s *Store) RegisterIdentity(_ context.Context, id core.Identity) error {
	if strings.TrimSpace(id.ID) == "" {
		return core.ErrEmptyUserID
	}
	s.AddUser(id)
	return nil
}

func (s *Store) userLocked(id string) *user {
	u, ok := s.users[id]
	if !ok {
		u = &user{identity: core.Identity{ID: id}}
		s.users[id] = u
	}
	return u
}

func (s *Store) FetchSummary(_ context.Context, userID string) (core.Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return core.Summary{}, core.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.Summary{Expenses: []core.Expense{}, Debts: []core.Debt{}, Installments: []core.Installment{}}, nil
	}
	return core.Summary{
		Currency:     u.currency,
		Incomes:      u.incomes,
		IsOnboarded:  u.identity.IsOnboarded,
		Expenses:     append([]core.Expense{}, u.expenses...),
		Debts:        append([]core.Debt{}, u.debts...),
		Installments: append([]core.Installment{}, u.installments...),
	}, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.cats...), nil
}

func (s *Store) UpsertCurrency(_ context.Context, userID string, currency core.Currency) error {
	if _, err := core.ParseCurrency(string(currency)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(userID).currency = currency
	return nil
}

func (s *Store) UpsertIncomes(_ context.Context, userID, incomes string) error {
	if !core.IsPositiveAmount(incomes) {
		return core.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(userID).incomes = incomes
	return nil
}

func (s *Store) CreateExpenses(_ context.Context, expenses []core.Expense) error {
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range expenses {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		u := s.userLocked(e.UserID)
		u.expenses = upsert(u.expenses, e, func(x core.Expense) string { return x.ID })
		s.owner[e.ID] = e.UserID
	}
	return nil
}

func (s *Store) CreateDebts(_ context.Context, debts []core.Debt) error {
	for _, d := range debts {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range debts {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		u := s.userLocked(d.UserID)
		u.debts = upsert(u.debts, d, func(x core.Debt) string { return x.ID })
		s.owner[d.ID] = d.UserID
	}
	return nil
}

func (s *Store) UpdateDebt(_ context.Context, id string, debt core.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.ownerLocked(id)
	if err != nil {
		return err
	}
	debt.ID = id
	debt.UserID = u.identity.ID
	if err := debt.Validate(); err != nil {
		return err
	}
	u.debts = upsert(u.debts, debt, func(x core.Debt) string { return x.ID })
	return nil
}

func (s *Store) DeleteDebt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.ownerLocked(id)
	if err != nil {
		return err
	}
	u.debts = remove(u.debts, id, func(x core.Debt) string { return x.ID })
	delete(s.owner, id)
	return nil
}

func (s *Store) CreateInstallments(_ context.Context, installments []core.Installment) error {
	for _, in := range installments {
		if err := in.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range installments {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		u := s.userLocked(in.UserID)
		u.installments = upsert(u.installments, in, func(x core.Installment) string { return x.ID })
		s.owner[in.ID] = in.UserID
	}
	return nil
}

func (s *Store) DeleteInstallment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.ownerLocked(id)
	if err != nil {
		return err
	}
	u.installments = remove(u.installments, id, func(x core.Installment) string { return x.ID })
	delete(s.owner, id)
	return nil
}

func (s *Store) CompleteOnboarding(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLocked(userID).identity.IsOnboarded = true
	return nil
}

func (s *Store) Identity(_ context.Context, userID string) (core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.Identity{}, fmt.Errorf("user %q: %w", userID, finance.ErrNotFound)
	}
	return u.identity, nil
}

func (s *Store) ownerLocked(rowID string) (*user, error) {
	uid, ok := s.owner[rowID]
	if !ok {
		return nil, fmt.Errorf("row %q: %w", rowID, finance.ErrNotFound)
	}
	return s.users[uid], nil
}

func upsert[T any](rows []T, row T, id func(T) string) []T {
	for i := range rows {
		if id(rows[i]) == id(row) {
			rows[i] = row
			return rows
		}
	}
	return append(rows, row)
}

func remove[T any](rows []T, rowID string, id func(T) string) []T {
	out := rows[:0]
	for _, r := range rows {
		if id(r) != rowID {
			out = append(out, r)
		}
	}
	return out
}

func readCategories(path string) []core.Category {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Category
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, name, found := strings.Cut(line, " ")
		if !found {
			name = id
		}
		out = append(out, core.Category{ID: id, Name: strings.TrimSpace(name)})
	}
	return out
}

func dedupe(in []core.Category) []core.Category {
	seen := map[string]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
