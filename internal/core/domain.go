package core

import (
	"errors"
	"slices"
	"strings"
	"time"
)

const (
	CurrencyUAH Currency = "UAH"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// SupportedCurrencies lists the base currencies offered during onboarding.
var SupportedCurrencies = []Currency{CurrencyUAH, CurrencyUSD, CurrencyEUR}

type (
	Currency string

	Date struct {
		time.Time
	}

	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Identity is the authenticated user as reported by the finance backend.
	Identity struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		Name        string `json:"name,omitempty"`
		IsOnboarded bool   `json:"isOnboarded"`
	}

	Expense struct {
		ID          string `json:"id,omitempty"`
		UserID      string `json:"userId"`
		CategoryID  string `json:"categoryId"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}

	Debt struct {
		ID          string `json:"id,omitempty"`
		UserID      string `json:"userId"`
		Description string `json:"description"`
		TotalDebt   string `json:"totalDebt"`
		Interest    string `json:"interest"`
	}

	Installment struct {
		ID            string `json:"id,omitempty"`
		UserID        string `json:"userId"`
		Description   string `json:"description"`
		StartDate     Date   `json:"startDate"`
		TotalAmount   string `json:"totalAmount"`
		TotalPayments int    `json:"totalPayments"`
	}

	// Summary is the onboarding state the backend holds for a user.
	// Incomes is decimal text; empty means unset.
	Summary struct {
		Currency     Currency      `json:"currency,omitempty"`
		Incomes      string        `json:"incomes,omitempty"`
		IsOnboarded  bool          `json:"isOnboarded"`
		Expenses     []Expense     `json:"expenses"`
		Debts        []Debt        `json:"debts"`
		Installments []Installment `json:"installments"`
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyAmount      = errors.New("empty amount")
	ErrInvalidCurrency  = errors.New("unsupported currency")
	ErrEmptyUserID      = errors.New("empty user id")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidPayments  = errors.New("invalid number of payments")
	ErrInvalidDateInput = errors.New("invalid date")
)

const (
	isoLayout     = "2006-01-02"
	displayLayout = "02.01.2006"
)

// ParseCurrency normalizes s and checks it against SupportedCurrencies.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(SupportedCurrencies, c) {
		return "", ErrInvalidCurrency
	}
	return c, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseISODate parses a yyyy-mm-dd date.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDateInput
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// ISO formats the date as yyyy-mm-dd, or "" when unset.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(isoLayout)
}

// Display formats the date the way it is typed, dd.mm.yyyy.
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(displayLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.ISO() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Backends sometimes return full timestamps
	if len(s) > len(isoLayout) {
		s = s[:len(isoLayout)]
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !IsPositiveAmount(e.Amount) {
		return ErrInvalidAmount
	}
	return nil
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.UserID) == "" {
		return ErrEmptyUserID
	}
	if !IsPositiveAmount(d.TotalDebt) {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(d.Interest) != "" {
		if _, err := ParseSignedAmount(d.Interest); err != nil {
			return err
		}
	}
	return nil
}

func (i Installment) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := i.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !IsPositiveAmount(i.TotalAmount) {
		return ErrInvalidAmount
	}
	if i.TotalPayments < 1 {
		return ErrInvalidPayments
	}
	return nil
}

// HasIncomes reports whether incomes are set to a positive amount.
func (s Summary) HasIncomes() bool {
	return IsPositiveAmount(s.Incomes)
}
