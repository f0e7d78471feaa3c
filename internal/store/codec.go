// Package store holds helpers shared by the SQL backends.
package store

import (
	"encoding/json"
	"fmt"

	"chatcore/internal/domain"
)

// EncodeContent serializes c and seals it with cipher. A nil cipher stores
// plain JSON.
func EncodeContent(cipher domain.Cipher, c domain.Content) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	if cipher == nil {
		return string(raw), nil
	}
	sealed, err := cipher.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("encrypt content: %w", err)
	}
	return sealed, nil
}

// DecodeContent reverses EncodeContent.
func DecodeContent(cipher domain.Cipher, stored string) (domain.Content, error) {
	var c domain.Content
	plain := stored
	if cipher != nil {
		dec, err := cipher.Decrypt(stored)
		if err != nil {
			return c, fmt.Errorf("decrypt content: %w", err)
		}
		plain = dec
	}
	if err := json.Unmarshal([]byte(plain), &c); err != nil {
		return c, fmt.Errorf("unmarshal content: %w", err)
	}
	return c, nil
}

// DefaultNotificationPage bounds notification listings when no limit is given.
const DefaultNotificationPage = 50

// ClampPage normalizes offset/limit pairs coming from request parameters.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = DefaultNotificationPage
	}
	return offset, limit
}
