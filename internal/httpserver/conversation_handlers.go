package httpserver

import (
	"encoding/json"
	"net/http"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

type conversationCreateRequest struct {
	Kind      domain.ConversationKind `json:"kind"`
	Name      *string                 `json:"name"`
	MemberIDs []int64                 `json:"member_ids"`
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		currentUser := CurrentUser(r)

		conv, err := convSvc.CreateConversation(r.Context(), service.ConversationCreateInput{
			Kind:      req.Kind,
			Name:      req.Name,
			MemberIDs: req.MemberIDs,
		}, currentUser.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

func handleUnread(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := convSvc.Unread(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

type memberUpdateRequest struct {
	Muted  *bool `json:"muted"`
	Pinned *bool `json:"pinned"`
}

func handleUpdateMember(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "conversationID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid conversation id")
			return
		}
		var req memberUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		member, err := convSvc.UpdateFlags(r.Context(), id, CurrentUser(r).ID, req.Muted, req.Pinned)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, member)
	}
}

func handleMarkConversationRead(router *service.DeliveryRouter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "conversationID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid conversation id")
			return
		}
		if err := router.MarkConversationRead(r.Context(), CurrentUser(r).ID, id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
