package domain

import "time"

type Meeting struct {
	ID               MeetingID  `json:"id"`
	RoomID           RoomID     `json:"roomId"`
	Title            string     `json:"title"`
	RequiresApproval bool       `json:"requiresApproval"`
	CreatedAt        time.Time  `json:"createdAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
}

// Participant is one user's session record in a meeting.
// A nil LeftAt means the user is currently active.
type Participant struct {
	UserID    UserID     `json:"userId"`
	MeetingID MeetingID  `json:"meetingId"`
	IsHost    bool       `json:"isHost"`
	JoinedAt  time.Time  `json:"joinedAt"`
	LeftAt    *time.Time `json:"leftAt,omitempty"`
}

func (p Participant) Active() bool { return p.LeftAt == nil }

func (p Participant) ActiveHost() bool { return p.IsHost && p.LeftAt == nil }
