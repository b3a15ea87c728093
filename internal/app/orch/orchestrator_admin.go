package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/app"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

type EndMeetingResult struct {
	RoomID       domain.RoomID    `json:"roomId"`
	MeetingID    domain.MeetingID `json:"meetingId"`
	Disconnected int              `json:"disconnected"`
	Participants int              `json:"participantsClosed"`
}

// EndMeeting tells every connection of roomID the meeting is over, releases
// their resources, closes their sockets and closes the meeting record.
func (o *Orchestrator) EndMeeting(ctx context.Context, admin domain.Identity, roomID domain.RoomID, reason string) (EndMeetingResult, error) {
	if err := o.Gate.RequireAdmin(admin); err != nil {
		return EndMeetingResult{}, err
	}
	if err := domain.ValidateRoomID(roomID); err != nil {
		return EndMeetingResult{}, err
	}
	m, err := o.Store.MeetingByRoom(ctx, roomID)
	if err != nil {
		return EndMeetingResult{}, err
	}

	unlock := o.RoomLocks.Lock(roomID)
	members := o.Registry.MembersOfRoom(roomID)
	o.Notify.Conns(members, protocol.Event{Type: protocol.EvMeetingEnded, Data: protocol.MeetingEndedData{RoomID: roomID, Reason: reason}})
	for _, c := range members {
		o.cleanupMedia(c)
		o.Registry.ClearRoom(c.ID)
	}
	o.Screens.ReleaseRoom(roomID)
	o.Engine.CloseRouter(roomID)
	unlock()
	for _, c := range members {
		if c.Signal != nil {
			c.Signal.Close()
		}
	}

	n, err := o.Store.EndMeeting(ctx, m.ID, o.now())
	if err != nil {
		return EndMeetingResult{}, err
	}
	o.logAdmin(ctx, admin, domain.AdminEndMeeting, string(roomID), reason)

	log.Info().Str("module", "orch.admin").Str("room", string(roomID)).Int("connections", len(members)).Msg("meeting ended")
	return EndMeetingResult{RoomID: roomID, MeetingID: m.ID, Disconnected: len(members), Participants: n}, nil
}

// Announce pushes message to roomID, or to every connection when roomID is empty.
func (o *Orchestrator) Announce(ctx context.Context, admin domain.Identity, roomID domain.RoomID, message string) (int, error) {
	if err := o.Gate.RequireAdmin(admin); err != nil {
		return 0, err
	}
	text, err := domain.NormalizeMessage(message)
	if err != nil {
		return 0, err
	}
	ev := protocol.Event{Type: protocol.EvAnnouncement, Data: protocol.MessageData{Message: text, From: admin.UserName, SentAt: o.now().UTC()}}
	var res app.PublishResult
	target := "all"
	if roomID == "" {
		res = o.Notify.All(ev)
	} else {
		if err := domain.ValidateRoomID(roomID); err != nil {
			return 0, err
		}
		res = o.Notify.Room(roomID, ev)
		target = string(roomID)
	}
	o.logAdmin(ctx, admin, domain.AdminAnnounce, target, text)
	return res.Delivered, nil
}

// DisconnectUser suspends userID and closes all of its connections.
func (o *Orchestrator) DisconnectUser(ctx context.Context, admin domain.Identity, userID domain.UserID, reason string) (int, error) {
	if err := o.Gate.RequireAdmin(admin); err != nil {
		return 0, err
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return 0, err
	}
	if err := o.Store.SetUserSuspended(ctx, userID, true); err != nil {
		return 0, err
	}
	conns := o.Registry.ConnectionsOfUser(userID)
	o.Notify.Conns(conns, protocol.Event{Type: protocol.EvAccountSuspended, Data: protocol.MessageData{Message: reason, SentAt: o.now().UTC()}})
	for _, c := range conns {
		if c.Signal != nil {
			c.Signal.Close()
		}
	}
	o.logAdmin(ctx, admin, domain.AdminDisconnectUser, string(userID), reason)
	log.Info().Str("module", "orch.admin").Str("user", string(userID)).Int("connections", len(conns)).Msg("user disconnected")
	return len(conns), nil
}

// NotifyUser sends a notification to every connection of userID.
func (o *Orchestrator) NotifyUser(ctx context.Context, admin domain.Identity, userID domain.UserID, message string) (int, error) {
	if err := o.Gate.RequireAdmin(admin); err != nil {
		return 0, err
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return 0, err
	}
	text, err := domain.NormalizeMessage(message)
	if err != nil {
		return 0, err
	}
	res := o.Notify.User(userID, protocol.Event{Type: protocol.EvNotification, Data: protocol.MessageData{Message: text, From: admin.UserName, SentAt: o.now().UTC()}})
	o.logAdmin(ctx, admin, domain.AdminNotifyUser, string(userID), text)
	return res.Delivered, nil
}

func (o *Orchestrator) AdminActivity(ctx context.Context, admin domain.Identity, limit int) ([]domain.AdminActivity, error) {
	if err := o.Gate.RequireAdmin(admin); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > app.MaxHistoryLimit {
		limit = app.MaxHistoryLimit
	}
	return o.Store.AdminActivities(ctx, limit)
}

func (o *Orchestrator) logAdmin(ctx context.Context, admin domain.Identity, action domain.AdminAction, target, detail string) {
	now := o.now().UTC()
	err := o.Store.LogAdminActivity(ctx, domain.AdminActivity{
		ID:        app.NewULID(now),
		AdminID:   admin.UserID,
		Action:    action,
		Target:    target,
		Detail:    detail,
		CreatedAt: now,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("module", "orch.admin").Str("action", string(action)).Msg("record admin activity")
	}
}
