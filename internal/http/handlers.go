package http

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-chi/render"

	"profitdash/internal/log"
)

// apiError is the JSON body of every failed API call.
type apiError struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady checks the storage backend when it can be pinged.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, http.StatusNotFound, "Page not found")
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, http.StatusMethodNotAllowed, "Method not allowed")
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	s.fail(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
}

// page fills the fields every full page needs.
func (s *Server) page(r *http.Request, title, tab string, data any) page {
	p := page{Title: title, Tab: tab, Tabs: tabs, Data: data}
	if u := currentUser(r); u.ID != "" {
		p.User = &u
	}
	return p
}

// execute renders a template into memory so a failure never leaves a
// half-written response.
func (s *Server) execute(r *http.Request, name string, data any) ([]byte, bool) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err,
			log.FieldOperation, log.OpRender,
			"template", name)
		return nil, false
	}
	return buf.Bytes(), true
}

// respond writes a rendered template through b.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, ok := s.execute(r, name, data)
	if !ok {
		internalError().Write(w)
		return
	}
	b.HTML(body).Write(w)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	s.respond(w, r, NewHTMXResponse().Status(status), name, data)
}

// fail answers an error in the caller's terms: JSON for the API, an inline
// fragment for htmx and a full page otherwise.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	switch {
	case wantsJSON(r):
		s.writeJSON(w, r, status, apiError{Error: msg})
	case isHTMX(r):
		ErrorResponse(status, msg).Write(w)
	default:
		s.render(w, r, status, "error_page", s.page(r, http.StatusText(status), "", msg))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}
