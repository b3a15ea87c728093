package domain

import "time"

type ScreenShareSession struct {
	ShareID   string    `json:"shareId"`
	RoomID    RoomID    `json:"roomId"`
	UserID    UserID    `json:"userId"`
	UserName  string    `json:"userName"`
	ConnID    string    `json:"connectionId"`
	StartedAt time.Time `json:"startedAt"`
}
