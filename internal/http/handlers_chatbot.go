package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"profitdash/internal/chatbot"
	"profitdash/internal/log"
)

type chatExchange struct {
	Sent  chatbot.Message `json:"sent"`
	Reply chatbot.Message `json:"reply"`
}

// handleChatMessage answers the htmx chat form. The response waits for the
// typing delay and returns both the user's message and the reply.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	vals, err := formValues(r, "message")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid form")
		return
	}

	sent, reply, err := s.bot.Send(r.Context(), currentUser(r).ID, vals["message"])
	switch {
	case errors.Is(err, chatbot.ErrEmptyMessage):
		s.fail(w, r, http.StatusUnprocessableEntity, "Please type a message")
		return
	case errors.Is(err, chatbot.ErrMessageTooLong):
		s.fail(w, r, http.StatusUnprocessableEntity, "Message is too long")
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		log.FromContext(r.Context()).WithComponent(log.ComponentChatbot).ErrorContext(r.Context(), "Chat reply failed", log.FieldError, err)
		s.fail(w, r, http.StatusInternalServerError, "The assistant is unavailable right now")
		return
	}

	if wantsJSON(r) {
		s.writeJSON(w, r, http.StatusOK, chatExchange{Sent: sent, Reply: reply})
		return
	}

	var body bytes.Buffer
	for _, m := range []chatbot.Message{sent, reply} {
		part, ok := s.execute(r, "chat_message", m)
		if !ok {
			internalError().Write(w)
			return
		}
		body.Write(part)
	}
	NewHTMXResponse().HTML(body.Bytes()).Write(w)
}
