package domain

import (
	"fmt"
	"strings"
)

// ContentKind tags the payload of a message.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentVideo ContentKind = "video"
	ContentFile  ContentKind = "file"
	ContentAudio ContentKind = "audio"
)

// MaxTextLength bounds the text body of a message, in runes.
const MaxTextLength = 5000

// Content is the tagged message payload. Text carries the body for text
// messages and an optional caption for media.
type Content struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	URL      string      `json:"url,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
	FileName string      `json:"file_name,omitempty"`
	Size     int64       `json:"size,omitempty"`
}

// Validate checks the kind-specific requirements of the payload.
func (c Content) Validate() error {
	if len([]rune(c.Text)) > MaxTextLength {
		return fmt.Errorf("%w: text exceeds %d characters", ErrInvalidInput, MaxTextLength)
	}
	switch c.Kind {
	case ContentText:
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("%w: text message cannot be empty", ErrInvalidInput)
		}
	case ContentImage, ContentVideo, ContentFile, ContentAudio:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("%w: %s message requires a url", ErrInvalidInput, c.Kind)
		}
		if c.Size < 0 {
			return fmt.Errorf("%w: negative size", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown content kind %q", ErrInvalidInput, c.Kind)
	}
	return nil
}
