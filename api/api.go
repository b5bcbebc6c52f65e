// Package api exposes the recovery engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	goRecover "github.com/MrEthical07/goRecover"
)

// API wires engine operations to HTTP handlers.
type API struct {
	engine *goRecover.Engine
}

// New returns an API over the given engine.
func New(engine *goRecover.Engine) *API {
	return &API{engine: engine}
}

// Router returns the API route tree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", a.handleLogin)
	r.Post("/auth/logout", a.handleLogout)

	r.Get("/questions/catalog", a.handleCatalog)

	r.Post("/recovery/reset/begin", a.handleResetBegin)
	r.Post("/recovery/reset/answers", a.handleResetAnswers)
	r.Post("/recovery/reset/complete", a.handleResetComplete)
	r.Post("/recovery/reset/abandon", a.handleResetAbandon)

	// Everything below requires a valid session token.
	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/questions", a.handleQuestionsStatus)
		r.Post("/questions/setup", a.handleQuestionsSetup)
		r.Post("/questions/replace", a.handleQuestionsReplace)

		r.Post("/recovery/change/begin", a.handleChangeBegin)
		r.Post("/recovery/change/answers", a.handleChangeAnswers)
		r.Post("/recovery/change/complete", a.handleChangeComplete)
	})

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := a.engine.Login(withClientIP(r), req.Username, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		UserID:    result.UserID,
		SessionID: result.SessionID,
		Token:     result.Token,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth, ok := a.authenticate(w, r)
	if !ok {
		return
	}

	if err := a.engine.Logout(r.Context(), auth.SessionID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type catalogEntry struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (a *API) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	catalog := goRecover.Catalog()
	entries := make([]catalogEntry, 0, len(catalog))
	for _, id := range catalog {
		entries = append(entries, catalogEntry{ID: string(id), Text: goRecover.QuestionText(id)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": entries})
}

type questionView struct {
	Slot     uint8  `json:"slot"`
	Question string `json:"question"`
	Text     string `json:"text"`
}

type resetBeginRequest struct {
	Username string `json:"username"`
}

type resetBeginResponse struct {
	SessionID string         `json:"session_id"`
	Questions []questionView `json:"questions"`
}

func (a *API) handleResetBegin(w http.ResponseWriter, r *http.Request) {
	var req resetBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	challenge, err := a.engine.BeginReset(withClientIP(r), req.Username)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resetBeginResponse{
		SessionID: challenge.SessionID,
		Questions: challengeViews(challenge.Questions),
	})
}

type resetAnswersRequest struct {
	SessionID string `json:"session_id"`
	Answer1   string `json:"answer1"`
	Answer2   string `json:"answer2"`
}

func (a *API) handleResetAnswers(w http.ResponseWriter, r *http.Request) {
	var req resetAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.engine.SubmitResetAnswers(r.Context(), req.SessionID, req.Answer1, req.Answer2); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetCompleteRequest struct {
	SessionID       string `json:"session_id"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (a *API) handleResetComplete(w http.ResponseWriter, r *http.Request) {
	var req resetCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.engine.CompleteReset(r.Context(), req.SessionID, req.NewPassword, req.ConfirmPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetAbandonRequest struct {
	SessionID string `json:"session_id"`
}

func (a *API) handleResetAbandon(w http.ResponseWriter, r *http.Request) {
	var req resetAbandonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.engine.AbandonReset(r.Context(), req.SessionID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleQuestionsStatus(w http.ResponseWriter, r *http.Request) {
	auth := authFromContext(r)

	configured, err := a.engine.HasQuestions(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": configured})
}

type setupRequest struct {
	Selections []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"selections"`
}

func (a *API) decodeSelections(w http.ResponseWriter, r *http.Request) ([goRecover.QuestionSetSize]goRecover.QuestionSelection, bool) {
	var out [goRecover.QuestionSetSize]goRecover.QuestionSelection

	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return out, false
	}
	if len(req.Selections) != goRecover.QuestionSetSize {
		writeError(w, http.StatusBadRequest, "exactly five selections required")
		return out, false
	}

	for i, sel := range req.Selections {
		out[i] = goRecover.QuestionSelection{
			Question: goRecover.QuestionID(sel.Question),
			Answer:   sel.Answer,
		}
	}
	return out, true
}

func (a *API) handleQuestionsSetup(w http.ResponseWriter, r *http.Request) {
	selections, ok := a.decodeSelections(w, r)
	if !ok {
		return
	}

	auth := authFromContext(r)
	if err := a.engine.SetupQuestions(r.Context(), auth.UserID, selections); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleQuestionsReplace(w http.ResponseWriter, r *http.Request) {
	selections, ok := a.decodeSelections(w, r)
	if !ok {
		return
	}

	auth := authFromContext(r)
	if err := a.engine.ReplaceQuestions(r.Context(), auth.UserID, selections); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangeBegin(w http.ResponseWriter, r *http.Request) {
	auth := authFromContext(r)

	challenge, err := a.engine.BeginChange(r.Context(), auth.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]questionView{
		"questions": challengeViews(challenge.Questions),
	})
}

type changeAnswersRequest struct {
	Answer1 string `json:"answer1"`
	Answer2 string `json:"answer2"`
}

func (a *API) handleChangeAnswers(w http.ResponseWriter, r *http.Request) {
	var req changeAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auth := authFromContext(r)
	if err := a.engine.SubmitChangeAnswers(r.Context(), auth.UserID, req.Answer1, req.Answer2); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeCompleteRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (a *API) handleChangeComplete(w http.ResponseWriter, r *http.Request) {
	var req changeCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auth := authFromContext(r)
	if err := a.engine.CompleteChange(r.Context(), auth.UserID, auth.SessionID, req.NewPassword, req.ConfirmPassword); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func challengeViews(questions [goRecover.ChallengeSize]goRecover.ChallengeQuestion) []questionView {
	out := make([]questionView, 0, len(questions))
	for _, q := range questions {
		out = append(out, questionView{
			Slot:     q.Slot,
			Question: string(q.Question),
			Text:     q.Text,
		})
	}
	return out
}

func withClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return goRecover.WithClientIP(r.Context(), host)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goRecover.ErrInvalidCredentials),
		errors.Is(err, goRecover.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, goRecover.ErrUnknownUser),
		errors.Is(err, goRecover.ErrNoSecurityQuestions),
		errors.Is(err, goRecover.ErrSessionExpired):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, goRecover.ErrIncorrectAnswers),
		errors.Is(err, goRecover.ErrNotVerified):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, goRecover.ErrPasswordMismatch),
		errors.Is(err, goRecover.ErrWeakPassword),
		errors.Is(err, goRecover.ErrDuplicateQuestion),
		errors.Is(err, goRecover.ErrMissingAnswer),
		errors.Is(err, goRecover.ErrQuestionUnknown):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, goRecover.ErrAlreadyConfigured):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, goRecover.ErrResetRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
