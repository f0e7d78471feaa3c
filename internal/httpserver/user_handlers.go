package httpserver

import (
	"net/http"

	"chatcore/internal/service"
)

func handleGetPresence(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "userID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		view, err := userSvc.Presence(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
