package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/docflowhq/docflow/internal/instance"
	"github.com/docflowhq/docflow/internal/observability"
	"github.com/docflowhq/docflow/model"
)

func handleWorkflowStart(engine *instance.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var body struct {
			TemplateID string `json:"template_id"`
			SubjectRef string `json:"subject_ref"`
			FileType   string `json:"file_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		inst, err := engine.Start(r.Context(), rctx, body.TemplateID, body.SubjectRef, body.FileType)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordWorkflowStart(inst.TemplateID)
		}
		WriteJSON(w, http.StatusCreated, inst)
	}
}

func handleWorkflowList(engine *instance.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := model.InstanceFilters{
			TemplateID: r.URL.Query().Get("template_id"),
			Status:     r.URL.Query().Get("status"),
			Initiator:  r.URL.Query().Get("initiator"),
			Page:       queryInt(r, "page", 1),
			PageSize:   queryInt(r, "page_size", 20),
		}

		summaries, totalCount, err := engine.List(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        summaries,
			"total_count": totalCount,
			"page":        filters.Page,
			"page_size":   filters.PageSize,
		})
	}
}

func handleWorkflowGet(engine *instance.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := engine.Get(r.Context(), chi.URLParam(r, "instanceId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleWorkflowProcess(engine *instance.Engine, metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		instanceID := chi.URLParam(r, "instanceId")
		stepID := chi.URLParam(r, "stepId")

		var body struct {
			Action   string         `json:"action"`
			Remarks  string         `json:"remarks"`
			FormData map[string]any `json:"form_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		log := observability.RequestLogger(r.Context(), logger)
		if len(body.FormData) > 0 {
			log.Debug("step decision form data",
				zap.String("instance_id", instanceID),
				zap.String("step_id", stepID),
				zap.Any("form_data", observability.RedactBody(body.FormData, nil)),
			)
		}

		inst, err := engine.Process(r.Context(), rctx, instanceID, stepID, body.Action, body.Remarks, body.FormData)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordWorkflowDecision(inst.TemplateID, body.Action)
			if inst.IsTerminal() {
				metrics.RecordWorkflowCompletion(inst.TemplateID, inst.Status)
			}
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

func handleWorkflowCancel(engine *instance.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		instanceID := chi.URLParam(r, "instanceId")

		var body struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		inst, err := engine.Cancel(r.Context(), rctx, instanceID, body.Reason)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordWorkflowCompletion(inst.TemplateID, inst.Status)
		}
		WriteJSON(w, http.StatusOK, inst)
	}
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
