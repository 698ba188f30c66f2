package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"buff/internal/adapters/http/middleware"
	"buff/internal/adapters/oauth"
	"buff/internal/application/session"
	"buff/internal/domain/identity"
	"buff/internal/domain/member"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// memberView is the JSON shape of a member. Credential material never
// leaves the server.
type memberView struct {
	ID              string                  `json:"id"`
	Email           string                  `json:"email"`
	FullName        string                  `json:"fullName"`
	PhotoURL        string                  `json:"photoURL,omitempty"`
	HasPassword     bool                    `json:"hasPassword"`
	Provider        string                  `json:"provider,omitempty"`
	CreatedAt       time.Time               `json:"createdAt"`
	LastUpdated     time.Time               `json:"lastUpdated"`
	Membership      member.Membership       `json:"membership"`
	Sessions        []member.WorkoutSession `json:"sessions"`
	Payments        []member.Payment        `json:"payments"`
	AssignedTrainer *member.Trainer         `json:"assignedTrainer"`
}

func toView(m *member.Member) *memberView {
	if m == nil {
		return nil
	}
	return &memberView{
		ID:              m.ID,
		Email:           m.Email,
		FullName:        m.DisplayName(""),
		PhotoURL:        m.PhotoURL,
		HasPassword:     m.Credential.HasPassword(),
		Provider:        m.Credential.Provider,
		CreatedAt:       m.CreatedAt,
		LastUpdated:     m.LastUpdated,
		Membership:      m.Membership,
		Sessions:        nonNil(m.Sessions),
		Payments:        nonNil(m.Payments),
		AssignedTrainer: m.AssignedTrainer,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// sessionView answers GET /api/auth/session.
type sessionView struct {
	Authenticated bool        `json:"authenticated"`
	Member        *memberView `json:"member"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response_encode_failed", "error", err)
	}
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrEmailInUse), errors.Is(err, identity.ErrAuthInProgress):
		return http.StatusConflict
	case identity.IsCredentialFailure(err), errors.Is(err, identity.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, identity.ErrFederatedSignInFailed):
		return http.StatusBadGateway
	case errors.Is(err, identity.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		slog.Error("request_failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: identity.UserMessage(err)})
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return identity.Invalid("body", "request body is not valid JSON")
	}
	return nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	f := facadeFrom(r)
	if err := f.Register(r.Context(), req.Email, req.Password, req.FullName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toView(f.Snapshot().CurrentMember))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	f := facadeFrom(r)
	if err := f.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(f.Snapshot().CurrentMember))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	facadeFrom(r).SignOut(r.Context())
	s.forgetClient(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	f := facadeFrom(r)
	snap := f.Snapshot()
	writeJSON(w, http.StatusOK, sessionView{
		Authenticated: f.IsAuthenticated(),
		Member:        toView(snap.CurrentMember),
	})
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		http.NotFound(w, r)
		return
	}
	nonce, state, err := s.deps.States.Issue()
	if err != nil {
		writeError(w, err)
		return
	}
	middleware.SetCookie(w, middleware.StateCookieName, nonce, "/api/auth/google", int(oauth.DefaultStateTTL.Seconds()))
	http.Redirect(w, r, s.deps.Google.LoginURL(state), http.StatusSeeOther)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Google == nil {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	cb := session.Callback{Code: q.Get("code"), State: q.Get("state"), Error: q.Get("error")}
	middleware.ClearCookie(w, middleware.StateCookieName, "/api/auth/google")

	f := facadeFrom(r)
	if err := f.SignInWithFederatedIdentity(r.Context(), cb); err != nil {
		http.Redirect(w, r, "/login?error="+url.QueryEscape(f.Snapshot().Error), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	snap := facadeFrom(r).Snapshot()
	if snap.CurrentMember == nil {
		writeError(w, identity.ErrNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, toView(snap.CurrentMember))
}

type profileRequest struct {
	FullName *string `json:"fullName"`
	PhotoURL *string `json:"photoURL"`
}

func (s *Server) handlePatchMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	f := facadeFrom(r)
	if err := f.UpdateProfile(r.Context(), req.FullName, req.PhotoURL); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(f.Snapshot().CurrentMember))
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := facadeFrom(r).ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			slog.Error("health_check_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
