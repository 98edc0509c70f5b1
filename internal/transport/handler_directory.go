package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docflowhq/docflow/internal/directory"
	"github.com/docflowhq/docflow/model"
)

func handleUserCreate(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user model.User
		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		created, err := svc.CreateUser(r.Context(), user)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleUserList(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.ListUsers(r.Context(), r.URL.Query().Get("department"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": users})
	}
}

func handleUserGet(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := svc.GetUser(r.Context(), chi.URLParam(r, "userId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, user)
	}
}

func handleUserUpdate(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user model.User
		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		user.ID = chi.URLParam(r, "userId")

		updated, err := svc.UpdateUser(r.Context(), user)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func handleUserDelete(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteUser(r.Context(), chi.URLParam(r, "userId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}

func handleDepartmentCreate(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dept model.Department
		if err := json.NewDecoder(r.Body).Decode(&dept); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		created, err := svc.CreateDepartment(r.Context(), dept)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleDepartmentList(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depts, err := svc.ListDepartments(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": depts})
	}
}

func handleDepartmentGet(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dept, err := svc.GetDepartment(r.Context(), chi.URLParam(r, "departmentId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, dept)
	}
}

func handleDepartmentUpdate(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dept model.Department
		if err := json.NewDecoder(r.Body).Decode(&dept); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		dept.ID = chi.URLParam(r, "departmentId")

		updated, err := svc.UpdateDepartment(r.Context(), dept)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func handleDepartmentDelete(svc *directory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteDepartment(r.Context(), chi.URLParam(r, "departmentId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusNoContent, nil)
	}
}
