package http

import (
	"errors"
	"net/http"

	"finfix/internal/log"
	"finfix/internal/onboarding"
	"finfix/internal/session"
)

var wizardGuard = session.Chain(session.RequireAuth, session.RequireOnboarded(true))

const completeSegment = "complete"

type completeView struct {
	Step    string `json:"step"`
	Landing string `json:"landing"`
}

// wizard guards the request and returns the session's flow. Partial load
// failures are logged; the flow stays usable with empty defaults.
func (s *Server) wizard(w http.ResponseWriter, r *http.Request) (*onboarding.Flow, session.Session, bool) {
	sess := s.currentSession(w, r)
	if !s.guard(w, r, sess, wizardGuard) {
		return nil, sess, false
	}
	flow, err := s.onboarding.Flow(r.Context(), sess)
	var loadErr *onboarding.LoadError
	switch {
	case flow != nil && errors.As(err, &loadErr):
		log.FromContext(r.Context()).WarnContext(r.Context(), "Serving wizard with partial data",
			log.FieldSessionID, sess.ID, log.FieldError, err)
	case err != nil:
		s.writeError(w, r, err)
		return nil, sess, false
	}
	return flow, sess, true
}

// handleStep resolves where the user belongs and renders the step.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	flow, sess, ok := s.wizard(w, r)
	if !ok {
		return
	}

	action, err := s.onboarding.Resolve(r.Context(), sess, r.URL.Path)
	if err != nil {
		// keep the user where they are
		log.FromContext(r.Context()).WarnContext(r.Context(), "Resume check failed",
			log.FieldPath, r.URL.Path, log.FieldError, err)
	}
	if action.IsRedirect() {
		NewJSONResponse().Redirect(action.Path).Write(w)
		return
	}

	segment := r.PathValue("step")
	if segment == completeSegment {
		NewJSONResponse().Body(completeView{Step: completeSegment, Landing: flow.Sequencer().Landing()}).Write(w)
		return
	}
	step, found := flow.Sequencer().StepForSegment(segment)
	if !found {
		NotFoundError("unknown onboarding step").Write(w)
		return
	}
	NewJSONResponse().Body(flow.View(step)).Write(w)
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}
	var req currencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := flow.SetCurrency(r.Context(), sanitizeInput(req.Currency)); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(onboarding.StepCurrency)).Write(w)
}

// handleSetIncomes stores the incomes text. Text that is not a decimal in
// progress is rejected and the stored value kept.
func (s *Server) handleSetIncomes(w http.ResponseWriter, r *http.Request) {
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}
	var req incomesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := flow.Store().SetIncomes(sanitizeInput(req.Incomes)); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(onboarding.StepIncomes)).Write(w)
}

// rowStep maps the {kind} path segment onto the step owning those rows.
func rowStep(kind string) (onboarding.Step, bool) {
	switch onboarding.Step(kind) {
	case onboarding.StepExpenses, onboarding.StepDebts, onboarding.StepInstallments:
		return onboarding.Step(kind), true
	}
	return "", false
}

func (s *Server) handleAddRow(w http.ResponseWriter, r *http.Request) {
	step, found := rowStep(r.PathValue("kind"))
	if !found {
		NotFoundError("unknown row kind").Write(w)
		return
	}
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}

	store := flow.Store()
	var id string
	switch step {
	case onboarding.StepExpenses:
		var req addRowRequest
		if err := decodeOptionalJSON(w, r, &req); err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		id = store.AddExpense(sanitizeInput(req.CategoryID)).ID
	case onboarding.StepDebts:
		id = store.AddDebt().ID
	case onboarding.StepInstallments:
		id = store.AddInstallment().ID
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Row-ID", id).
		Body(flow.View(step)).
		Write(w)
}

func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	step, found := rowStep(r.PathValue("kind"))
	if !found {
		NotFoundError("unknown row kind").Write(w)
		return
	}
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	id, value, store := r.PathValue("id"), sanitizeInput(req.Value), flow.Store()
	var err error
	switch step {
	case onboarding.StepExpenses:
		var edit onboarding.ExpenseEdit
		if edit, err = onboarding.ParseExpenseEdit(req.Field, value); err == nil {
			err = store.UpdateExpense(id, edit)
		}
	case onboarding.StepDebts:
		var edit onboarding.DebtEdit
		if edit, err = onboarding.ParseDebtEdit(req.Field, value); err == nil {
			err = store.UpdateDebt(id, edit)
		}
	case onboarding.StepInstallments:
		var edit onboarding.InstallmentEdit
		if edit, err = onboarding.ParseInstallmentEdit(req.Field, value); err == nil {
			err = store.UpdateInstallment(id, edit)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(step)).Write(w)
}

// handleRemoveRow removes a row. Server-known debts and installments are
// deleted remotely as well; when that fails the row stays removed locally and
// 502 is returned.
func (s *Server) handleRemoveRow(w http.ResponseWriter, r *http.Request) {
	step, found := rowStep(r.PathValue("kind"))
	if !found {
		NotFoundError("unknown row kind").Write(w)
		return
	}
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	var err error
	switch step {
	case onboarding.StepExpenses:
		if !flow.Store().RemoveExpense(id) {
			err = onboarding.ErrRowNotFound
		}
	case onboarding.StepDebts:
		err = flow.RemoveDebt(r.Context(), id)
	case onboarding.StepInstallments:
		err = flow.RemoveInstallment(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(step)).Write(w)
}

func (s *Server) handleDebtBlur(w http.ResponseWriter, r *http.Request) {
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}
	if _, err := flow.Store().ValidateDebtRow(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(onboarding.StepDebts)).Write(w)
}

func (s *Server) handleInstallmentDate(w http.ResponseWriter, r *http.Request) {
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}
	var req dateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if _, err := flow.Store().TypeInstallmentDate(r.PathValue("id"), sanitizeInput(req.Raw)); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(onboarding.StepInstallments)).Write(w)
}

func (s *Server) handleInstallmentDateBlur(w http.ResponseWriter, r *http.Request) {
	flow, _, ok := s.wizard(w, r)
	if !ok {
		return
	}
	if _, err := flow.Store().BlurInstallmentDate(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(flow.View(onboarding.StepInstallments)).Write(w)
}

// handleNext runs the step's save policy and answers with the route to
// navigate to. Validation failures answer 422, failed saves 502.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	flow, sess, ok := s.wizard(w, r)
	if !ok {
		return
	}
	segment := r.PathValue("step")
	step, found := flow.Sequencer().StepForSegment(segment)
	if !found && segment == string(onboarding.StepWelcome) {
		step, found = onboarding.StepWelcome, true
	}
	if !found {
		NotFoundError("unknown onboarding step").Write(w)
		return
	}

	reqLog := log.NewStructuredLogger(log.FromContext(r.Context()))
	next, err := flow.Next(r.Context(), step)
	if err != nil {
		var validation *onboarding.ValidationError
		if !errors.As(err, &validation) {
			reqLog.LogError(r.Context(), "Failed to save onboarding step", err, log.ComponentOnboarding, log.OpSave,
				log.NewFields().WithStep(string(step), sess.UserID()))
		}
		s.writeError(w, r, err)
		return
	}
	reqLog.LogStepSaved(r.Context(), sess.UserID(), string(step), next)
	NewJSONResponse().Body(RedirectBody{Redirect: next}).Write(w)
}

// handleComplete finishes onboarding. The user proceeds to the landing route
// even when the backend call failed.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession(w, r)
	if !s.guard(w, r, sess, wizardGuard) {
		return
	}
	if err := s.onboarding.Complete(r.Context(), sess); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Proceeding after failed completion",
			log.FieldUserID, sess.UserID(), log.FieldError, err)
	}
	if _, err := s.sessions.MarkOnboarded(sess.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(RedirectBody{Redirect: sess.Mode.LandingPath()}).Write(w)
}
