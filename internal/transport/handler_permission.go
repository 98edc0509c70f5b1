package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docflowhq/docflow/internal/permission"
	"github.com/docflowhq/docflow/model"
)

func handlePermissionCreate(svc *permission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var grant model.PermissionGrant
		if err := json.NewDecoder(r.Body).Decode(&grant); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		created, err := svc.Create(r.Context(), grant)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handlePermissionList(svc *permission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grants, err := svc.ListByTemplate(r.Context(), chi.URLParam(r, "templateId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": grants})
	}
}

func handlePermissionUpdate(svc *permission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var grant model.PermissionGrant
		if err := json.NewDecoder(r.Body).Decode(&grant); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		grant.ID = chi.URLParam(r, "grantId")

		updated, err := svc.Update(r.Context(), grant)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func handlePermissionDelete(svc *permission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "grantId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

func handlePermissionCopy(svc *permission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SourceTemplateID string `json:"source_template_id"`
			TargetTemplateID string `json:"target_template_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		copied, err := svc.CopyGrants(r.Context(), body.SourceTemplateID, body.TargetTemplateID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]any{"data": copied})
	}
}
