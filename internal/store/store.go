// Package store defines the persistence interface consumed by the core.
package store

import (
	"context"
	"time"

	"github.com/neutron420/bloom/internal/domain"
)

// Store is the relational store of users, meetings, participants, join requests,
// chat messages and the admin activity log.
//
// Implementations must make ResolveJoinRequest an atomic pending -> terminal
// transition and keep at most one pending request per (user, meeting).
// Approving records the requester as a participant in the same step.
type Store interface {
	EnsureUser(ctx context.Context, id domain.UserID, name string) (domain.User, error)
	User(ctx context.Context, id domain.UserID) (domain.User, error)
	SetUserSuspended(ctx context.Context, id domain.UserID, suspended bool) error

	// GetOrCreateMeeting returns the meeting of roomID, creating it with
	// RequiresApproval=false when the room was never referenced before.
	GetOrCreateMeeting(ctx context.Context, roomID domain.RoomID) (m domain.Meeting, created bool, err error)
	Meeting(ctx context.Context, id domain.MeetingID) (domain.Meeting, error)
	MeetingByRoom(ctx context.Context, roomID domain.RoomID) (domain.Meeting, error)
	SetRequiresApproval(ctx context.Context, id domain.MeetingID, requires bool) (domain.Meeting, error)
	// EndMeeting sets LeftAt on every active participant and returns how many were affected.
	EndMeeting(ctx context.Context, id domain.MeetingID, at time.Time) (int, error)

	// JoinMeeting creates the participant row or clears its LeftAt.
	// The first participant ever recorded for a meeting becomes host.
	JoinMeeting(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, at time.Time) (domain.Participant, error)
	Participant(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) (domain.Participant, error)
	LeaveMeeting(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID, at time.Time) error
	ActiveParticipants(ctx context.Context, meetingID domain.MeetingID) ([]domain.Participant, error)

	// CreateJoinRequest returns the already pending request with created=false
	// instead of inserting a second one.
	CreateJoinRequest(ctx context.Context, userID domain.UserID, userName string, meetingID domain.MeetingID, at time.Time) (req domain.JoinRequest, created bool, err error)
	JoinRequest(ctx context.Context, id domain.JoinRequestID) (domain.JoinRequest, error)
	PendingJoinRequests(ctx context.Context, meetingID domain.MeetingID) ([]domain.JoinRequest, error)
	// ResolveJoinRequest fails with ErrRequestProcessed when id is no longer
	// pending. An approval either commits together with the participant row or not at all.
	ResolveJoinRequest(ctx context.Context, id domain.JoinRequestID, status domain.JoinRequestStatus, by domain.UserID, at time.Time) (domain.JoinRequest, error)

	AppendChatMessage(ctx context.Context, msg domain.ChatMessage) error
	// RecentChatMessages returns the newest limit messages in chronological order.
	RecentChatMessages(ctx context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error)

	LogAdminActivity(ctx context.Context, a domain.AdminActivity) error
	AdminActivities(ctx context.Context, limit int) ([]domain.AdminActivity, error)

	Close() error
}
