package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/docflowhq/docflow/internal/template"
	"github.com/docflowhq/docflow/model"
)

func handleTemplateCreate(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tmpl model.WorkflowTemplate
		if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		created, err := svc.Create(r.Context(), tmpl)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleTemplateList(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := model.TemplateFilters{
			Department: r.URL.Query().Get("department"),
			Page:       queryInt(r, "page", 1),
			PageSize:   queryInt(r, "page_size", 20),
		}
		if v := r.URL.Query().Get("active"); v != "" {
			active, err := strconv.ParseBool(v)
			if err != nil {
				WriteError(w, model.NewBadRequestError("active must be true or false"))
				return
			}
			filters.Active = &active
		}

		templates, totalCount, err := svc.List(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":        templates,
			"total_count": totalCount,
			"page":        filters.Page,
			"page_size":   filters.PageSize,
		})
	}
}

func handleTemplateGet(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := svc.Get(r.Context(), chi.URLParam(r, "templateId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, tmpl)
	}
}

func handleTemplateUpdate(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tmpl model.WorkflowTemplate
		if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		tmpl.ID = chi.URLParam(r, "templateId")

		updated, err := svc.Update(r.Context(), tmpl)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func handleTemplateDelete(svc *template.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "templateId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}
