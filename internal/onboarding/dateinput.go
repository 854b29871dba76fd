package onboarding

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"finfix/internal/core"
)

const (
	dateInputLength = len("dd.mm.yyyy")
	maxYearsAhead   = 50
)

var (
	ErrIncompleteDate = errors.New("incomplete date")
	ErrInvalidDate    = errors.New("invalid date")
	ErrDateTooFar     = errors.New("date too far in the future")
)

// DateErrorMessage is the inline text shown for a date input error.
func DateErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncompleteDate):
		return "Please enter a complete date"
	case errors.Is(err, ErrDateTooFar):
		return "Date cannot be more than 50 years in the future"
	default:
		return "Invalid date"
	}
}

// FormatDateMask keeps up to eight digits of raw and inserts the dd.mm.yyyy
// separators as the digits arrive.
func FormatDateMask(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' && digits.Len() < 8 {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) <= 2:
		return d
	case len(d) <= 4:
		return d[:2] + "." + d[2:]
	default:
		return d[:2] + "." + d[2:4] + "." + d[4:]
	}
}

// ParseDateText validates a complete dd.mm.yyyy value against the calendar
// and a horizon of 50 years after now.
func ParseDateText(text string, now time.Time) (core.Date, error) {
	if len(text) != dateInputLength {
		return core.Date{}, ErrIncompleteDate
	}
	parts := strings.Split(text, ".")
	if len(parts) != 3 {
		return core.Date{}, ErrInvalidDate
	}
	day, errD := strconv.Atoi(parts[0])
	month, errM := strconv.Atoi(parts[1])
	year, errY := strconv.Atoi(parts[2])
	if errD != nil || errM != nil || errY != nil {
		return core.Date{}, ErrInvalidDate
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return core.Date{}, ErrInvalidDate
	}

	d := core.NewDate(year, month, day)
	// time.Date normalizes overflow such as 29.02 in a common year
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return core.Date{}, ErrInvalidDate
	}

	horizon := now.AddDate(maxYearsAhead, 0, 0)
	if d.After(horizon) {
		return core.Date{}, ErrDateTooFar
	}
	return d, nil
}

type DateState int

const (
	DateEmpty DateState = iota
	DateTyping
	DateValid
	DateInvalid
)

func (s DateState) String() string {
	switch s {
	case DateTyping:
		return "typing"
	case DateValid:
		return "valid"
	case DateInvalid:
		return "invalid"
	default:
		return "empty"
	}
}

// DateInput is the masked start date field of one installment row.
//
// Empty -> Typing while fewer than ten characters are present, then Valid
// (committed) or Invalid (not committed). Any further keystroke returns to
// Typing. Typing is only flagged on blur.
type DateInput struct {
	text  string
	state DateState
	err   string
}

// DateInputView is the renderable state of a DateInput.
type DateInputView struct {
	Text  string `json:"text"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// NewDateInput starts from an already committed date, if any.
func NewDateInput(committed core.Date) *DateInput {
	if committed.IsEmpty() {
		return &DateInput{state: DateEmpty}
	}
	return &DateInput{text: committed.Display(), state: DateValid}
}

// Type replaces the field content with the masked form of raw. It returns
// the date to commit once a complete valid value is present.
func (d *DateInput) Type(raw string, now time.Time) (core.Date, bool) {
	d.text = FormatDateMask(raw)
	d.err = ""

	switch {
	case d.text == "":
		d.state = DateEmpty
		return core.Date{}, false
	case len(d.text) < dateInputLength:
		d.state = DateTyping
		return core.Date{}, false
	}

	parsed, err := ParseDateText(d.text, now)
	if err != nil {
		d.state = DateInvalid
		d.err = DateErrorMessage(err)
		return core.Date{}, false
	}
	d.state = DateValid
	return parsed, true
}

// Blur flags partial input and re-checks complete input.
func (d *DateInput) Blur(now time.Time) {
	switch d.state {
	case DateTyping:
		d.err = DateErrorMessage(ErrIncompleteDate)
	case DateValid, DateInvalid:
		if _, err := ParseDateText(d.text, now); err != nil {
			d.state = DateInvalid
			d.err = DateErrorMessage(err)
		}
	}
}

func (d *DateInput) State() DateState { return d.state }

func (d *DateInput) Text() string { return d.text }

// Problem is the message that blocks saving, if any.
func (d *DateInput) Problem() string {
	switch d.state {
	case DateTyping:
		return DateErrorMessage(ErrIncompleteDate)
	case DateInvalid:
		return d.err
	default:
		return ""
	}
}

func (d *DateInput) View() DateInputView {
	return DateInputView{Text: d.text, State: d.state.String(), Error: d.err}
}
