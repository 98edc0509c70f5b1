package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/docflowhq/docflow/internal/notification"
	"github.com/docflowhq/docflow/model"
)

func handleNotificationList(store notification.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := model.NotificationFilters{
			Type:     r.URL.Query().Get("type"),
			Priority: r.URL.Query().Get("priority"),
			Page:     queryInt(r, "page", 1),
			PageSize: queryInt(r, "page_size", 20),
		}
		if v := r.URL.Query().Get("unread"); v != "" {
			unread, err := strconv.ParseBool(v)
			if err != nil {
				WriteError(w, model.NewBadRequestError("unread must be true or false"))
				return
			}
			filters.Unread = unread
		}

		items, totalCount, err := store.List(r.Context(), rctx.SubjectID, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		unreadCount, err := store.UnreadCount(r.Context(), rctx.SubjectID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":         items,
			"total_count":  totalCount,
			"unread_count": unreadCount,
			"page":         filters.Page,
			"page_size":    filters.PageSize,
		})
	}
}

func handleNotificationRead(store notification.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		if err := store.MarkRead(r.Context(), rctx.SubjectID, chi.URLParam(r, "notificationId")); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "read"})
	}
}

func handleNotificationReadAll(store notification.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		changed, err := store.MarkAllRead(r.Context(), rctx.SubjectID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"marked_read": changed})
	}
}
