package api

import (
	"errors"
	"net/http"

	"github.com/sydlexius/tracksignal/internal/webhook"
)

func (r *Router) handleListWebhooks(w http.ResponseWriter, req *http.Request) {
	webhooks, err := r.webhookService.List(req.Context())
	if err != nil {
		r.logger.Error("listing webhooks", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if webhooks == nil {
		webhooks = []webhook.Webhook{}
	}
	writeJSON(w, http.StatusOK, webhooks)
}

func (r *Router) handleGetWebhook(w http.ResponseWriter, req *http.Request) {
	wh, err := r.webhookService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (r *Router) handleCreateWebhook(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name    string   `json:"name"`
		URL     string   `json:"url"`
		Type    string   `json:"type"`
		Events  []string `json:"events"`
		Enabled *bool    `json:"enabled"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wh := &webhook.Webhook{
		Name:    body.Name,
		URL:     body.URL,
		Type:    body.Type,
		Events:  body.Events,
		Enabled: body.Enabled == nil || *body.Enabled,
	}
	if err := r.webhookService.Create(req.Context(), wh); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (r *Router) handleUpdateWebhook(w http.ResponseWriter, req *http.Request) {
	existing, err := r.webhookService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeWebhookError(w, err)
		return
	}

	var body struct {
		Name    string   `json:"name"`
		URL     string   `json:"url"`
		Type    string   `json:"type"`
		Events  []string `json:"events"`
		Enabled *bool    `json:"enabled"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if body.Name != "" {
		existing.Name = body.Name
	}
	if body.URL != "" {
		existing.URL = body.URL
	}
	if body.Type != "" {
		existing.Type = body.Type
	}
	if body.Events != nil {
		existing.Events = body.Events
	}
	if body.Enabled != nil {
		existing.Enabled = *body.Enabled
	}
	if err := existing.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.webhookService.Update(req.Context(), existing); err != nil {
		r.writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (r *Router) handleDeleteWebhook(w http.ResponseWriter, req *http.Request) {
	if err := r.webhookService.Delete(req.Context(), req.PathValue("id")); err != nil {
		r.writeWebhookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleTestWebhook sends a sample notification synchronously so the caller
// sees whether the endpoint accepted it.
func (r *Router) handleTestWebhook(w http.ResponseWriter, req *http.Request) {
	wh, err := r.webhookService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeWebhookError(w, err)
		return
	}
	if err := r.webhookDispatcher.Test(req.Context(), wh); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (r *Router) writeWebhookError(w http.ResponseWriter, err error) {
	if errors.Is(err, webhook.ErrNotFound) {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	r.logger.Error("webhook store", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
