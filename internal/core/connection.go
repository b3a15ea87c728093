package core

import (
	"time"

	"github.com/neutron420/bloom/internal/domain"
)

type ConnID string

// Connection is the registry record of one open signaling connection.
type Connection struct {
	ID        ConnID
	UserID    domain.UserID
	UserName  string
	Admin     bool
	RoomID    domain.RoomID
	MeetingID domain.MeetingID
	OpenedAt  time.Time
	Signal    SignalConnection
}

func (c Connection) InRoom() bool { return c.RoomID != "" }

// MemberDTO is the read-only view of a room member sent to clients.
type MemberDTO struct {
	ConnID   ConnID        `json:"connectionId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
	IsHost   bool          `json:"isHost"`
}

type RoomInfo struct {
	RoomID      domain.RoomID `json:"roomId"`
	MemberCount int           `json:"memberCount"`
}
