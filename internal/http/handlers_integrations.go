package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"profitdash/internal/integrations"
	"profitdash/internal/log"
)

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.provider(w, r)
	if !ok {
		return
	}
	user := currentUser(r)

	creds, err := formValues(r, provider.Fields()...)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid form")
		return
	}

	st, err := s.integrations.Connect(user.ID, provider, creds)
	var credErr *integrations.CredentialsError
	switch {
	case errors.As(err, &credErr):
		if wantsJSON(r) {
			s.writeJSON(w, r, http.StatusUnprocessableEntity, apiError{Error: credErr.Error()})
			return
		}
		s.render(w, r, http.StatusUnprocessableEntity, "tab_integration",
			integrationView(s.integrations.Status(user.ID, provider), credErr.Error()))
		return
	case err != nil:
		log.FromContext(r.Context()).WithComponent(log.ComponentIntegration).ErrorContext(r.Context(), "Integration connect failed",
			log.FieldError, err,
			log.FieldProvider, string(provider),
			log.FieldOperation, log.OpConnect)
		s.fail(w, r, http.StatusInternalServerError, "Could not connect "+provider.Title())
		return
	}

	s.integrationChanged(w, r, st, provider.Title()+" connected")
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	provider, ok := s.provider(w, r)
	if !ok {
		return
	}
	st := s.integrations.Disconnect(currentUser(r).ID, provider)
	s.integrationChanged(w, r, st, provider.Title()+" disconnected")
}

func (s *Server) integrationChanged(w http.ResponseWriter, r *http.Request, st integrations.Status, note string) {
	if wantsJSON(r) {
		s.writeJSON(w, r, http.StatusOK, toIntegrationStatus(st))
		return
	}
	b := NewHTMXResponse().
		TriggerIntegrationChanged(string(st.Provider), st.Connected).
		TriggerSuccessNotification(note)
	s.respond(w, r, b, "tab_integration", integrationView(st, ""))
}

func (s *Server) provider(w http.ResponseWriter, r *http.Request) (integrations.Provider, bool) {
	p, err := integrations.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		s.fail(w, r, http.StatusNotFound, "Unknown integration")
		return "", false
	}
	return p, true
}
