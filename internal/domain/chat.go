package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxChatMessageLen = 1000

var (
	ErrMessageEmpty   = fmt.Errorf("message empty: %w", ErrValidation)
	ErrMessageTooLong = fmt.Errorf("message too long: %w", ErrValidation)
)

type ChatMessage struct {
	ID        string    `json:"id"`
	MeetingID MeetingID `json:"meetingId"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func NormalizeMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrMessageEmpty
	}
	if utf8.RuneCountInString(text) > MaxChatMessageLen {
		return "", ErrMessageTooLong
	}
	return text, nil
}
