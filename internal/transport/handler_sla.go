package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docflowhq/docflow/internal/sla"
	"github.com/docflowhq/docflow/model"
)

func handleSLAStats(monitor *sla.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := monitor.Stats(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, stats)
	}
}

func handleSLAOverdue(monitor *sla.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := monitor.Overdue(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": alerts})
	}
}

func handleSLAUpcoming(monitor *sla.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := monitor.Upcoming(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": alerts})
	}
}

func handleStepReassign(monitor *sla.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		stepID := chi.URLParam(r, "stepId")

		var body struct {
			InstanceID string   `json:"instance_id"`
			Assignees  []string `json:"assignees"`
			Reason     string   `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if body.InstanceID == "" {
			WriteValidationError(w, []model.FieldError{{
				Field:   "instance_id",
				Code:    "required",
				Message: "instance_id is required",
			}})
			return
		}

		inst, err := monitor.Reassign(r.Context(), rctx, body.InstanceID, stepID, body.Assignees, body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}
