package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/app"
	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

type JoinRoomResult struct {
	RoomID           domain.RoomID              `json:"roomId"`
	MeetingID        domain.MeetingID           `json:"meetingId"`
	ConnectionID     core.ConnID                `json:"connectionId"`
	IsHost           bool                       `json:"isHost"`
	RequiresApproval bool                       `json:"requiresApproval"`
	Participants     []core.MemberDTO           `json:"participants"`
	Producers        []protocol.ProducerInfo    `json:"producers"`
	ScreenShare      *domain.ScreenShareSession `json:"screenShare,omitempty"`
}

func (o *Orchestrator) JoinRoom(ctx context.Context, id core.ConnID, m protocol.JoinRoom) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	if m.UserName != "" {
		name, err := domain.NormalizeUsername(m.UserName)
		if err != nil {
			return nil, err
		}
		if c, err = o.Registry.Rename(id, name); err != nil {
			return nil, err
		}
		if _, err := o.Store.EnsureUser(ctx, c.UserID, name); err != nil {
			return nil, err
		}
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("name", name).Msg("rename on join")
	}

	meeting, err := o.Joins.Admit(ctx, c, m.RoomID)
	if err != nil {
		return nil, err
	}
	if c.InRoom() && c.RoomID != m.RoomID {
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("from_room", string(c.RoomID)).Msg("leaving previous room")
		o.leaveRoom(ctx, c)
	}

	p, err := o.Store.JoinMeeting(ctx, c.UserID, meeting.ID, o.now())
	if err != nil {
		return nil, err
	}
	unlock := o.RoomLocks.Lock(m.RoomID)
	prev, err := o.Registry.SetRoom(id, m.RoomID, meeting.ID)
	unlock()
	if err != nil {
		return nil, err
	}
	c.RoomID, c.MeetingID = m.RoomID, meeting.ID
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(m.RoomID)).Bool("host", p.IsHost).Msg("added to room")

	members := o.members(ctx, m.RoomID, meeting.ID)
	if prev.RoomID != m.RoomID {
		o.Notify.Room(m.RoomID, protocol.Event{Type: protocol.EvUserJoined, Data: protocol.PresenceData{RoomID: m.RoomID, Member: memberOf(c, p.IsHost)}}, id)
		o.Notify.Room(m.RoomID, protocol.Event{Type: protocol.EvParticipants, Data: protocol.ParticipantsData{RoomID: m.RoomID, Participants: members}})
	}

	res := JoinRoomResult{
		RoomID:           m.RoomID,
		MeetingID:        meeting.ID,
		ConnectionID:     id,
		IsHost:           p.IsHost,
		RequiresApproval: meeting.RequiresApproval,
		Participants:     members,
		Producers:        o.roomProducers(m.RoomID, id),
	}
	if share, ok := o.Screens.Current(m.RoomID); ok {
		res.ScreenShare = &share
	}
	return res, nil
}

func (o *Orchestrator) LeaveRoom(ctx context.Context, id core.ConnID, _ protocol.LeaveRoom) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	o.leaveRoom(ctx, c)
	return map[string]any{"roomId": c.RoomID}, nil
}

// leaveRoom runs the membership part of the cleanup cascade for c.
func (o *Orchestrator) leaveRoom(ctx context.Context, c core.Connection) {
	o.cleanupMedia(c)
	o.Screens.ReleaseConn(c.ID)

	prev, emptied, ok := o.clearRoom(c)
	if !ok {
		return
	}
	roomID := prev.RoomID

	stillThere := false
	for _, other := range o.Registry.MembersOfRoom(roomID) {
		if other.UserID == prev.UserID {
			stillThere = true
			break
		}
	}
	if !stillThere {
		if err := o.Store.LeaveMeeting(ctx, prev.UserID, prev.MeetingID, o.now()); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("conn", string(c.ID)).Msg("record leave")
		}
	}

	log.Info().Str("module", "orch").Str("conn", string(c.ID)).Str("room", string(roomID)).Msg("removed from room")
	if emptied {
		log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("room empty, router closed")
		return
	}
	o.Notify.Room(roomID, protocol.Event{Type: protocol.EvUserLeft, Data: protocol.PresenceData{RoomID: roomID, Member: memberOf(prev, false)}})
	o.Notify.Room(roomID, protocol.Event{Type: protocol.EvParticipants, Data: protocol.ParticipantsData{RoomID: roomID, Participants: o.members(ctx, roomID, prev.MeetingID)}})
}

// clearRoom takes c out of its room and closes the room's router when c was
// the last member. Both happen under the room lock.
func (o *Orchestrator) clearRoom(c core.Connection) (prev core.Connection, emptied, ok bool) {
	unlock := o.RoomLocks.Lock(c.RoomID)
	defer unlock()
	if cur, found := o.Registry.Lookup(c.ID); !found || cur.RoomID != c.RoomID {
		return core.Connection{}, false, false
	}
	prev, ok = o.Registry.ClearRoom(c.ID)
	if !ok {
		return core.Connection{}, false, false
	}
	if o.Registry.RoomSize(prev.RoomID) == 0 {
		o.Engine.CloseRouter(prev.RoomID)
		emptied = true
	}
	return prev, emptied, true
}

func (o *Orchestrator) members(ctx context.Context, roomID domain.RoomID, meetingID domain.MeetingID) []core.MemberDTO {
	hosts, err := o.Gate.HostSet(ctx, meetingID)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("resolve hosts")
	}
	conns := o.Registry.MembersOfRoom(roomID)
	out := make([]core.MemberDTO, 0, len(conns))
	for _, c := range conns {
		out = append(out, memberOf(c, hosts[c.UserID]))
	}
	return out
}

func memberOf(c core.Connection, host bool) core.MemberDTO {
	return core.MemberDTO{ConnID: c.ID, UserID: c.UserID, UserName: c.UserName, IsHost: host}
}

func (o *Orchestrator) RequestJoin(ctx context.Context, id core.ConnID, m protocol.RequestJoin) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	return o.Joins.RequestJoin(ctx, c, m.RoomID)
}

func (o *Orchestrator) ApproveRequest(ctx context.Context, id core.ConnID, m protocol.ApproveRequest) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	return o.Joins.Approve(ctx, c, m.RequestID)
}

func (o *Orchestrator) DeclineRequest(ctx context.Context, id core.ConnID, m protocol.DeclineRequest) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	return o.Joins.Decline(ctx, c, m.RequestID)
}

type batchResponse struct {
	Results []app.BatchResult `json:"results"`
}

func (o *Orchestrator) ApproveRequests(ctx context.Context, id core.ConnID, m protocol.ApproveRequests) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	return batchResponse{Results: o.Joins.ApproveMany(ctx, c, m.RequestIDs)}, nil
}

func (o *Orchestrator) DeclineRequests(ctx context.Context, id core.ConnID, m protocol.DeclineRequests) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	return batchResponse{Results: o.Joins.DeclineMany(ctx, c, m.RequestIDs)}, nil
}

func (o *Orchestrator) GetPendingRequests(ctx context.Context, id core.ConnID, m protocol.GetPendingRequests) (any, error) {
	c, err := o.conn(id)
	if err != nil {
		return nil, err
	}
	roomID := m.RoomID
	if roomID == "" {
		if !c.InRoom() {
			return nil, domain.ErrNotInRoom
		}
		roomID = c.RoomID
	}
	reqs, err := o.Joins.Pending(ctx, c, roomID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"roomId": roomID, "requests": reqs}, nil
}

func (o *Orchestrator) SetApproval(ctx context.Context, id core.ConnID, m protocol.SetApproval) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	return o.Joins.SetApproval(ctx, c, c.RoomID, m.RequiresApproval)
}
