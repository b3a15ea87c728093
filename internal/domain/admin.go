package domain

import "time"

type AdminAction string

const (
	AdminEndMeeting     AdminAction = "end_meeting"
	AdminAnnounce       AdminAction = "announce"
	AdminDisconnectUser AdminAction = "disconnect_user"
	AdminNotifyUser     AdminAction = "notify_user"
)

type AdminActivity struct {
	ID        string      `json:"id"`
	AdminID   UserID      `json:"adminId"`
	Action    AdminAction `json:"action"`
	Target    string      `json:"target"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
