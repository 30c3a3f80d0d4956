package http

import (
	"errors"
	"net/http"

	"profitdash/internal/auth"
	"profitdash/internal/log"
)

type loginData struct {
	Error         string
	GoogleEnabled bool
	DevEnabled    bool
	Email         string
	DisplayName   string
}

// loginErrors are the messages behind /login?error=<code>.
var loginErrors = map[string]string{
	"google":   "Google sign-in failed. Please try again.",
	"disabled": "That sign-in method is not enabled.",
	"expired":  "Your session has expired. Please sign in again.",
}

func (s *Server) loginData() loginData {
	return loginData{GoogleEnabled: s.auth.GoogleEnabled(), DevEnabled: s.auth.DevEnabled()}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Authenticate(r); err == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	data := s.loginData()
	data.Error = loginErrors[r.URL.Query().Get("error")]
	s.render(w, r, http.StatusOK, "login_page", s.page(r, "Sign in", "", data))
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := s.auth.BeginGoogle(w)
	if errors.Is(err, auth.ErrProviderDisabled) {
		http.Redirect(w, r, "/login?error=disabled", http.StatusSeeOther)
		return
	}
	if err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).ErrorContext(r.Context(), "Failed to start Google sign-in", log.FieldError, err)
		http.Redirect(w, r, "/login?error=google", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.CompleteGoogle(w, r); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).WarnContext(r.Context(), "Google sign-in failed",
			log.FieldError, err,
			log.FieldOperation, log.OpLogin)
		code := "google"
		if errors.Is(err, auth.ErrProviderDisabled) {
			code = "disabled"
		}
		http.Redirect(w, r, "/login?error="+code, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	vals, err := formValues(r, "email", "display_name")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid sign-in form")
		return
	}

	_, err = s.auth.DevLogin(r.Context(), w, auth.DevLoginForm{Email: vals["email"], DisplayName: vals["display_name"]})
	switch {
	case err == nil:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, auth.ErrProviderDisabled):
		s.fail(w, r, http.StatusNotFound, "Page not found")
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Dev sign-in rejected",
			log.FieldError, err,
			log.FieldOperation, log.OpLogin)
		data := s.loginData()
		data.Error = "Please enter a valid email address."
		data.Email = vals["email"]
		data.DisplayName = vals["display_name"]
		s.render(w, r, http.StatusUnprocessableEntity, "login_page", s.page(r, "Sign in", "", data))
	}
}

// handleLogout ends the session, which also clears the user's products.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(w, r); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).ErrorContext(r.Context(), "Sign-out failed",
			log.FieldError, err,
			log.FieldOperation, log.OpLogout)
	}
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
