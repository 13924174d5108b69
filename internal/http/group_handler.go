package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/availability-scheduler/internal/application"
)

type memberService interface {
	SyncGroupMembers(ctx context.Context, groupID string, members []application.GroupMember) error
}

// GroupHandler accepts member snapshots pushed by the membership service.
type GroupHandler struct {
	service   memberService
	logger    *slog.Logger
	responder responder
}

// NewGroupHandler wires the member sync service.
func NewGroupHandler(service memberService, logger *slog.Logger) *GroupHandler {
	logger = defaultLogger(logger)
	return &GroupHandler{service: service, logger: logger, responder: newResponder(logger)}
}

// SyncMembers replaces the group's member snapshot.
func (h *GroupHandler) SyncMembers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	groupID := pathParam(r, "groupID")
	logger := handlerLogger(r.Context(), h.logger, "GroupHandler", "SyncMembers", "group_id", groupID)
	ctx := ContextWithLogger(r.Context(), logger)

	if groupID == "" {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errInvalidGroupID)
		return
	}

	var req syncMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(ctx, w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	members := make([]application.GroupMember, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, application.GroupMember{GroupID: groupID, UserID: m.UserID, Role: application.Role(m.Role)})
	}

	if err := h.service.SyncGroupMembers(ctx, groupID, members); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

type memberDTO struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type syncMembersRequest struct {
	Members []memberDTO `json:"members"`
}
