package service

import (
	"context"
	"fmt"

	"chatcore/internal/domain"
)

// ConversationService exposes rosters and per-member view state to the REST
// surface. Message traffic goes through DeliveryRouter.
type ConversationService struct {
	conversations domain.ConversationRepository
	members       domain.MemberRepository
}

func NewConversationService(
	conversations domain.ConversationRepository,
	members domain.MemberRepository,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		members:       members,
	}
}

type ConversationCreateInput struct {
	Kind      domain.ConversationKind
	Name      *string
	MemberIDs []int64
}

// CreateConversation registers a roster. The creator is always a member and
// goes first in join order.
func (s *ConversationService) CreateConversation(
	ctx context.Context,
	in ConversationCreateInput,
	creatorID int64,
) (*domain.Conversation, error) {
	uniqueIDs := make([]int64, 0, len(in.MemberIDs)+1)
	seen := map[int64]struct{}{creatorID: {}}
	uniqueIDs = append(uniqueIDs, creatorID)
	for _, id := range in.MemberIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniqueIDs = append(uniqueIDs, id)
	}

	conv := &domain.Conversation{Kind: in.Kind, Name: in.Name}
	if err := s.conversations.Create(ctx, conv, uniqueIDs); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// UnreadSummary is one row of a user's unread overview.
type UnreadSummary struct {
	ConversationID int64 `json:"conversation_id"`
	UnreadCount    int   `json:"unread_count"`
	LastReadSeq    int64 `json:"last_read_seq"`
	Muted          bool  `json:"muted"`
	Pinned         bool  `json:"pinned"`
}

// UnreadOverview lists every membership of the user with its counter. Muted
// conversations are reported but left out of Total.
type UnreadOverview struct {
	Total         int             `json:"total"`
	Conversations []UnreadSummary `json:"conversations"`
}

func (s *ConversationService) Unread(ctx context.Context, userID int64) (*UnreadOverview, error) {
	rows, err := s.members.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := &UnreadOverview{Conversations: make([]UnreadSummary, 0, len(rows))}
	for _, m := range rows {
		res.Conversations = append(res.Conversations, UnreadSummary{
			ConversationID: m.ConversationID,
			UnreadCount:    m.UnreadCount,
			LastReadSeq:    m.LastReadSeq,
			Muted:          m.Muted,
			Pinned:         m.Pinned,
		})
		if !m.Muted {
			res.Total += m.UnreadCount
		}
	}
	return res, nil
}

// UpdateFlags sets muted and/or pinned for the user's own membership.
func (s *ConversationService) UpdateFlags(
	ctx context.Context,
	conversationID int64,
	userID int64,
	muted, pinned *bool,
) (*domain.ConversationMember, error) {
	if muted == nil && pinned == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	if err := s.members.SetFlags(ctx, conversationID, userID, muted, pinned); err != nil {
		return nil, err
	}
	return s.members.GetMember(ctx, conversationID, userID)
}
