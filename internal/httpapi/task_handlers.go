package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"taskhub.org/internal/audit"
	"taskhub.org/internal/auth"
)

type taskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.cfg.Tasks.List(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req taskRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task, err := a.cfg.Tasks.Add(r.Context(), req.Name, req.Description, req.Completed)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.created", map[string]any{"task_id": task.ID.String()})
		writeJSON(w, http.StatusOK, task)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	id, err := uuid.Parse(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, err := a.cfg.Tasks.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	case http.MethodPut:
		var req taskRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		task, err := a.cfg.Tasks.Update(r.Context(), id, req.Name, req.Description, req.Completed)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.updated", map[string]any{"task_id": id.String()})
		writeJSON(w, http.StatusOK, task)
	case http.MethodDelete:
		if err := a.cfg.Tasks.Delete(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "task.deleted", map[string]any{"task_id": id.String()})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleEvents streams task change events to the client as SSE. The stream
// fan-outs every change to every subscriber, so the object-level rule is
// re-applied per event; a subscriber only sees events for tasks it could
// read directly.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if a.cfg.Events == nil {
		writeError(w, http.StatusNotFound, "event stream not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for event := range a.cfg.Events.Subscribe(r.Context()) {
		if !auth.CanAccess(principal, event.Task.OwnerID) {
			continue
		}
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
