package domain

import (
	"fmt"
	"regexp"
)

const MaxRoomIDLen = 64

var ErrRoomIDInvalid = fmt.Errorf("invalid room id: %w", ErrValidation)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type (
	RoomID    string
	MeetingID string
)

func ValidateRoomID(id RoomID) error {
	if len(id) == 0 || len(id) > MaxRoomIDLen || !roomIDPattern.MatchString(string(id)) {
		return ErrRoomIDInvalid
	}
	return nil
}
