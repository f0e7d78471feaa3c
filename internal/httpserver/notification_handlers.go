package httpserver

import (
	"net/http"
	"strconv"

	"chatcore/internal/service"
)

func handleListNotifications(svc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err := svc.List(r.Context(), CurrentUser(r).ID, offset, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleUnreadNotifications(svc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.CountUnread(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
	}
}

func handleMarkNotificationRead(svc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "notificationID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid notification id")
			return
		}
		if err := svc.MarkRead(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleDeleteNotification(svc *service.NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "notificationID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid notification id")
			return
		}
		if err := svc.Delete(r.Context(), id, CurrentUser(r).ID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
