package onboarding

import "finfix/internal/core"

// ActionKind tells a resolver outcome apart.
type ActionKind int

const (
	ActionStay ActionKind = iota
	ActionRedirect
)

// Action is the outcome of resolving where a user belongs in the wizard.
type Action struct {
	Kind ActionKind
	Path string
}

// Stay keeps the user on the current path.
func Stay() Action { return Action{Kind: ActionStay} }

// RedirectTo sends the user to path.
func RedirectTo(path string) Action { return Action{Kind: ActionRedirect, Path: path} }

func (a Action) IsRedirect() bool { return a.Kind == ActionRedirect }

func (a Action) String() string {
	if a.IsRedirect() {
		return "redirect " + a.Path
	}
	return "stay"
}

// Resolve decides whether a user visiting currentPath may stay or must be
// sent to the first unsatisfied required step. Onboarded users always go to
// the landing route. Debts, installments and the completion page are only
// reachable once currency, incomes and expenses are present.
func (s *Sequencer) Resolve(summary core.Summary, currentPath string) Action {
	if summary.IsOnboarded {
		return RedirectTo(s.landing)
	}

	current := normalizePath(currentPath)
	if current == s.PathOf(StepWelcome) {
		return Stay()
	}

	requireAt := func(step Step) Action {
		target := s.PathOf(step)
		if current == target {
			return Stay()
		}
		return RedirectTo(target)
	}

	switch {
	case summary.Currency == "":
		return requireAt(StepCurrency)
	case !summary.HasIncomes():
		return requireAt(StepIncomes)
	case len(summary.Expenses) == 0:
		return requireAt(StepExpenses)
	}

	switch current {
	case s.PathOf(StepDebts), s.PathOf(StepInstallments), CompletePath:
		return Stay()
	}
	return RedirectTo(s.PathOf(StepDebts))
}
