// Package onboarding holds the onboarding wizard: step sequencing, the
// resume resolver, the draft store with its snapshot diffing, field
// validation and the save-on-next policy.
package onboarding

import "strings"

// Step identifies a wizard screen.
type Step string

const (
	StepWelcome      Step = "welcome"
	StepCurrency     Step = "currency"
	StepIncomes      Step = "incomes"
	StepExpenses     Step = "expenses"
	StepDebts        Step = "debts"
	StepInstallments Step = "installments"
)

// Welcome lives at RootPath; CompletePath follows the last sequenced step.
const (
	RootPath     = "/onboarding"
	CompletePath = "/onboarding/complete"
)

// StepDescriptor describes one screen of the wizard.
type StepDescriptor struct {
	Step     Step   `json:"id"`
	Segment  string `json:"segment"`
	Title    string `json:"title"`
	Optional bool   `json:"optional"`
}

// Path is the route of the step. Welcome lives at the onboarding root.
func (d StepDescriptor) Path() string {
	if d.Segment == "" {
		return RootPath
	}
	return RootPath + "/" + d.Segment
}

// DefaultSteps is the wizard order. Completion is a terminal page outside
// the sequence.
var DefaultSteps = []StepDescriptor{
	{Step: StepWelcome, Segment: "", Title: "Welcome"},
	{Step: StepCurrency, Segment: "currency", Title: "Currency"},
	{Step: StepIncomes, Segment: "incomes", Title: "Incomes"},
	{Step: StepExpenses, Segment: "expenses", Title: "Expenses"},
	{Step: StepDebts, Segment: "debts", Title: "Debts", Optional: true},
	{Step: StepInstallments, Segment: "installments", Title: "Installments", Optional: true},
}

// Sequencer answers navigation questions about the static step list.
// landing is where users go once there is no next step.
type Sequencer struct {
	steps   []StepDescriptor
	landing string
}

// NewSequencer builds a sequencer over DefaultSteps ending at landing.
func NewSequencer(landing string) *Sequencer {
	return &Sequencer{steps: DefaultSteps, landing: landing}
}

func (s *Sequencer) Steps() []StepDescriptor {
	out := make([]StepDescriptor, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s *Sequencer) Landing() string { return s.landing }

func (s *Sequencer) index(step Step) int {
	for i, d := range s.steps {
		if d.Step == step {
			return i
		}
	}
	return -1
}

// Descriptor returns the descriptor of step.
func (s *Sequencer) Descriptor(step Step) (StepDescriptor, bool) {
	i := s.index(step)
	if i < 0 {
		return StepDescriptor{}, false
	}
	return s.steps[i], true
}

// PathOf returns the route of step, or "" for an unknown step.
func (s *Sequencer) PathOf(step Step) string {
	d, ok := s.Descriptor(step)
	if !ok {
		return ""
	}
	return d.Path()
}

// NextPath returns the route after step, or the landing route when step is
// the last one.
func (s *Sequencer) NextPath(step Step) string {
	i := s.index(step)
	if i < 0 || i+1 >= len(s.steps) {
		return s.landing
	}
	return s.steps[i+1].Path()
}

// PreviousPath returns the route before step. Welcome has none.
func (s *Sequencer) PreviousPath(step Step) (string, bool) {
	i := s.index(step)
	if i <= 0 {
		return "", false
	}
	return s.steps[i-1].Path(), true
}

// StepForPath maps a route back onto its step.
func (s *Sequencer) StepForPath(path string) (Step, bool) {
	path = normalizePath(path)
	for _, d := range s.steps {
		if d.Path() == path {
			return d.Step, true
		}
	}
	return "", false
}

// StepForSegment maps a path segment such as "debts" onto its step.
func (s *Sequencer) StepForSegment(segment string) (Step, bool) {
	for _, d := range s.steps {
		if d.Segment == segment {
			return d.Step, true
		}
	}
	return "", false
}

// Progress is the completion percentage shown while on step.
func (s *Sequencer) Progress(step Step) int {
	i := s.index(step)
	if i < 0 {
		return 0
	}
	return (i + 1) * 100 / len(s.steps)
}

func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
