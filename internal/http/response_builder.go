// Package http serves the dashboard: HTML pages, HTMX partials, the JSON
// API feeding the charts and the operational endpoints.
package http

import (
	"encoding/json"
	"html/template"
	"net/http"
)

// Client events raised through HX-Trigger.
const (
	EventProductsReplaced   = "products:replaced"
	EventIntegrationChanged = "integration:changed"
	EventShowNotification   = "show-notification"
)

const notificationDuration = 3000

// HTMXResponseBuilder collects the status, htmx headers and body of a
// response and writes them in one go.
type HTMXResponseBuilder struct {
	status   int
	triggers map[string]any
	headers  http.Header
	body     []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status:   http.StatusOK,
		triggers: make(map[string]any),
		headers:  make(http.Header),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger raises the client event name with data as its detail.
func (b *HTMXResponseBuilder) Trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerProductsReplaced tells the page a new upload is the current list.
func (b *HTMXResponseBuilder) TriggerProductsReplaced(uploadID string, count int) *HTMXResponseBuilder {
	return b.Trigger(EventProductsReplaced, map[string]any{"uploadId": uploadID, "count": count})
}

// TriggerIntegrationChanged reports a connect or disconnect.
func (b *HTMXResponseBuilder) TriggerIntegrationChanged(provider string, connected bool) *HTMXResponseBuilder {
	return b.Trigger(EventIntegrationChanged, map[string]any{"provider": provider, "connected": connected})
}

// TriggerSuccessNotification shows a toast handled by app.js.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.Trigger(EventShowNotification, map[string]any{
		"type":     "success",
		"message":  message,
		"duration": notificationDuration,
	})
}

// Redirect makes htmx navigate the whole page to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// PushURL replaces the browser location after a swap.
func (b *HTMXResponseBuilder) PushURL(url string) *HTMXResponseBuilder {
	return b.Header("HX-Push-Url", url)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers.Set(name, value)
	return b
}

// HTML sets an already rendered fragment as the body.
func (b *HTMXResponseBuilder) HTML(body []byte) *HTMXResponseBuilder {
	b.headers.Set("Content-Type", "text/html; charset=utf-8")
	b.body = body
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, values := range b.headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if len(b.triggers) > 0 {
		if raw, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse is an inline alert fragment; message is escaped.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		HTML([]byte(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`))
}

func internalError() *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Something went wrong")
}
