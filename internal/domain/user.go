// Package domain contains entities without transport or storage logic.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 50
)

var (
	ErrUsernameTooLong = fmt.Errorf("username too long: %w", ErrValidation)
	ErrUsernameEmpty   = fmt.Errorf("username empty: %w", ErrValidation)
	ErrUserIDInvalid   = fmt.Errorf("invalid user id: %w", ErrValidation)
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@:-]+$`)

type UserID string

type User struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	Suspended bool   `json:"suspended"`
}

// Identity is the verified caller identity handed to the core by the transport layer.
type Identity struct {
	UserID   UserID
	UserName string
	Admin    bool
}

func ValidateUserID(id UserID) error {
	if len(id) == 0 || len(id) > MaxUserIDLen || !userIDPattern.MatchString(string(id)) {
		return ErrUserIDInvalid
	}
	return nil
}

// NormalizeUsername trims name and checks its length in runes.
func NormalizeUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrUsernameEmpty
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
