package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/sydlexius/tracksignal/internal/request"
)

func (r *Router) handleListRequests(w http.ResponseWriter, req *http.Request) {
	limit, err := queryInt(req, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := req.URL.Query()
	f := request.Filter{
		PerformerID: q.Get("performer_id"),
		Status:      q.Get("status"),
		Limit:       limit,
	}
	if f.Status != "" && !request.ValidStatus(f.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	requests, err := r.requestService.List(req.Context(), f)
	if err != nil {
		r.logger.Error("listing requests", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if requests == nil {
		requests = []request.Request{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (r *Router) handleCreateRequest(w http.ResponseWriter, req *http.Request) {
	var body struct {
		PerformerID string    `json:"performer_id"`
		Artist      string    `json:"artist"`
		Title       string    `json:"title"`
		Requester   string    `json:"requester"`
		Message     string    `json:"message"`
		Priority    int       `json:"priority"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rq := &request.Request{
		PerformerID: body.PerformerID,
		Artist:      body.Artist,
		Title:       body.Title,
		Requester:   body.Requester,
		Message:     body.Message,
		Priority:    body.Priority,
		SubmittedAt: body.SubmittedAt,
	}
	if err := r.requestService.Create(req.Context(), rq); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rq)
}

func (r *Router) handleGetRequest(w http.ResponseWriter, req *http.Request) {
	rq, err := r.requestService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rq)
}

func (r *Router) handleUpdateRequestStatus(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !request.ValidStatus(body.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	id := req.PathValue("id")
	if err := r.requestService.UpdateStatus(req.Context(), id, body.Status); err != nil {
		r.writeRequestError(w, err)
		return
	}
	rq, err := r.requestService.GetByID(req.Context(), id)
	if err != nil {
		r.writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rq)
}

func (r *Router) writeRequestError(w http.ResponseWriter, err error) {
	if errors.Is(err, request.ErrNotFound) {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	r.logger.Error("request store", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
