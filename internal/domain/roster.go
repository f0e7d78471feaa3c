package domain

import "fmt"

// ValidateRoster enforces the membership invariants of a conversation kind:
// a non-empty set of distinct users, exactly two for direct conversations.
func ValidateRoster(kind ConversationKind, memberIDs []int64) error {
	if len(memberIDs) == 0 {
		return fmt.Errorf("%w: conversation needs at least one member", ErrInvalidInput)
	}
	seen := make(map[int64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate member %d", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	switch kind {
	case ConversationDirect:
		if len(memberIDs) != 2 {
			return fmt.Errorf("%w: direct conversation needs exactly two members", ErrInvalidInput)
		}
	case ConversationGroup:
	default:
		return fmt.Errorf("%w: unknown conversation kind %q", ErrInvalidInput, kind)
	}
	return nil
}
