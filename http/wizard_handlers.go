package http

import (
	"errors"
	"net/http"
	"time"

	"cardiopredict/clinical"
	"cardiopredict/wizard"
)

func (a *API) registerWizardHandlers(mux *http.ServeMux) {
	a.handle(mux, "POST /wizard/sessions", a.handleWizardCreate)
	a.handle(mux, "GET /wizard/sessions/{id}", a.handleWizardGet)
	a.handle(mux, "DELETE /wizard/sessions/{id}", a.handleWizardDelete)
	a.handle(mux, "POST /wizard/sessions/{id}/submit", a.handleWizardSubmit)
	a.handle(mux, "POST /wizard/sessions/{id}/back", a.handleWizardBack)
	a.handle(mux, "POST /wizard/sessions/{id}/predict", a.handleWizardPredict)
}

type sessionResponse struct {
	ID        string           `json:"id"`
	Version   int              `json:"version"`
	Step      wizard.Step      `json:"step"`
	Title     string           `json:"title"`
	Values    clinical.Draft   `json:"values"`
	Fields    []wizard.Entry   `json:"fields,omitempty"`
	Summary   []wizard.Entry   `json:"summary,omitempty"`
	Result    *predictResponse `json:"result,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func newSessionResponse(sess wizard.Session) sessionResponse {
	state := sess.State
	resp := sessionResponse{
		ID:        sess.ID,
		Version:   sess.Version,
		Step:      state.Step(),
		Title:     state.Step().Title(),
		Values:    state.Draft(),
		Fields:    state.Fields(),
		UpdatedAt: sess.UpdatedAt,
	}
	if state.Step() >= wizard.StepReview {
		resp.Summary = state.Summary()
	}
	if result, ok := state.Result(); ok {
		pr := newPredictResponse(result)
		resp.Result = &pr
	}
	return resp
}

// wizardRequest is the body of every transition. Version is optional; when
// given, the transition fails with 409 if the session moved on meanwhile.
type wizardRequest struct {
	Version *int           `json:"version,omitempty"`
	Values  clinical.Draft `json:"values"`
}

func (req wizardRequest) expected() int {
	if req.Version == nil {
		return -1
	}
	return *req.Version
}

// decodeWizardRequest accepts an empty body for back and predict.
func decodeWizardRequest(r *http.Request) (wizardRequest, error) {
	var req wizardRequest
	err := decodeBody(r, &req)
	var berr *bodyError
	if errors.As(err, &berr) && berr.empty {
		return req, nil
	}
	return req, err
}

func (a *API) handleWizardCreate(w http.ResponseWriter, r *http.Request) {
	sess := a.Wizard.Create()
	respondJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (a *API) handleWizardGet(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Wizard.Get(r.PathValue("id"))
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (a *API) handleWizardDelete(w http.ResponseWriter, r *http.Request) {
	if !a.Wizard.Delete(r.PathValue("id")) {
		a.respondServiceError(w, r, wizard.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWizardSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWizardRequest(r)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	validator := a.Predictions.Validator()
	a.transition(w, r, req.expected(), func(s wizard.State) (wizard.State, error) {
		return s.Submit(validator, req.Values)
	})
}

func (a *API) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWizardRequest(r)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	a.transition(w, r, req.expected(), wizard.State.Back)
}

func (a *API) handleWizardPredict(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWizardRequest(r)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	a.transition(w, r, req.expected(), func(s wizard.State) (wizard.State, error) {
		return s.Predict(r.Context(), a.Predictions)
	})
}

func (a *API) transition(w http.ResponseWriter, r *http.Request, expected int, fn func(wizard.State) (wizard.State, error)) {
	sess, err := a.Wizard.Update(r.PathValue("id"), expected, fn)
	if err != nil {
		a.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

