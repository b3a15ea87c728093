package domain

import "time"

type JoinRequestID string

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestDeclined JoinRequestStatus = "declined"
)

func (s JoinRequestStatus) Terminal() bool {
	return s == JoinRequestApproved || s == JoinRequestDeclined
}

type JoinRequest struct {
	ID         JoinRequestID     `json:"id"`
	UserID     UserID            `json:"userId"`
	UserName   string            `json:"userName"`
	MeetingID  MeetingID         `json:"meetingId"`
	Status     JoinRequestStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	ResolvedAt *time.Time        `json:"resolvedAt,omitempty"`
	ResolvedBy UserID            `json:"resolvedBy,omitempty"`
}
