package domain

import (
	"encoding/json"
	"fmt"
)

// MessageStatus is the delivery state of a message. Values are ordered so a
// transition is valid only when the new value is greater than the stored one.
type MessageStatus int

const (
	StatusSent      MessageStatus = 1
	StatusDelivered MessageStatus = 2
	StatusRead      MessageStatus = 3
)

func (s MessageStatus) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool {
	return s >= StatusSent && s <= StatusRead
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Valid() && next > s
}

// ParseMessageStatus converts the wire name of a status.
func ParseMessageStatus(v string) (MessageStatus, error) {
	switch v {
	case "sent":
		return StatusSent, nil
	case "delivered":
		return StatusDelivered, nil
	case "read":
		return StatusRead, nil
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, v)
}

func (s MessageStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("marshal %s", s)
	}
	return json.Marshal(s.String())
}

func (s *MessageStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: status must be a string", ErrInvalidInput)
	}
	parsed, err := ParseMessageStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
