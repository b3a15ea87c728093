package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
	"github.com/neutron420/bloom/internal/store"
)

type JoinStatus string

const (
	JoinApproved       JoinStatus = "approved"
	JoinPending        JoinStatus = "pending"
	JoinAlreadyPending JoinStatus = "already_pending"
)

type JoinDecision struct {
	Status    JoinStatus          `json:"status"`
	RoomID    domain.RoomID       `json:"roomId"`
	MeetingID domain.MeetingID    `json:"meetingId"`
	Request   *domain.JoinRequest `json:"request,omitempty"`
}

type BatchResult struct {
	RequestID domain.JoinRequestID `json:"requestId"`
	OK        bool                 `json:"ok"`
	Code      string               `json:"code,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// JoinFlow arbitrates entry into meetings that require host approval.
type JoinFlow struct {
	store  store.Store
	reg    *Registry
	notify *Notifier
	gate   *Gate
	now    func() time.Time
}

func NewJoinFlow(s store.Store, reg *Registry, n *Notifier, g *Gate) *JoinFlow {
	return &JoinFlow{store: s, reg: reg, notify: n, gate: g, now: time.Now}
}

func (f *JoinFlow) WithClock(now func() time.Time) *JoinFlow {
	f.now = now
	return f
}

func (f *JoinFlow) checkSuspended(ctx context.Context, userID domain.UserID) error {
	u, err := f.store.User(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.Suspended {
		return domain.ErrUserSuspended
	}
	return nil
}

// admitted reports whether userID was let into m before.
func (f *JoinFlow) admitted(ctx context.Context, userID domain.UserID, m domain.Meeting) (bool, error) {
	if !m.RequiresApproval {
		return true, nil
	}
	_, err := f.store.Participant(ctx, userID, m.ID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Admit resolves the meeting of roomID for c, creating it on first reference,
// and fails with ErrApprovalRequired when c's user was never approved.
func (f *JoinFlow) Admit(ctx context.Context, c core.Connection, roomID domain.RoomID) (domain.Meeting, error) {
	if err := f.checkSuspended(ctx, c.UserID); err != nil {
		return domain.Meeting{}, err
	}
	m, created, err := f.store.GetOrCreateMeeting(ctx, roomID)
	if err != nil {
		return domain.Meeting{}, err
	}
	if created {
		log.Info().Str("module", "app.joinflow").Str("room", string(roomID)).Str("meeting", string(m.ID)).Msg("meeting created")
	}
	ok, err := f.admitted(ctx, c.UserID, m)
	if err != nil {
		return domain.Meeting{}, err
	}
	if !ok {
		return domain.Meeting{}, domain.ErrApprovalRequired
	}
	return m, nil
}

func (f *JoinFlow) RequestJoin(ctx context.Context, c core.Connection, roomID domain.RoomID) (JoinDecision, error) {
	if err := domain.ValidateRoomID(roomID); err != nil {
		return JoinDecision{}, err
	}
	if err := f.checkSuspended(ctx, c.UserID); err != nil {
		return JoinDecision{}, err
	}
	m, _, err := f.store.GetOrCreateMeeting(ctx, roomID)
	if err != nil {
		return JoinDecision{}, err
	}
	decision := JoinDecision{RoomID: roomID, MeetingID: m.ID}

	ok, err := f.admitted(ctx, c.UserID, m)
	if err != nil {
		return JoinDecision{}, err
	}
	if ok {
		decision.Status = JoinApproved
		return decision, nil
	}

	req, created, err := f.store.CreateJoinRequest(ctx, c.UserID, c.UserName, m.ID, f.now())
	if err != nil {
		return JoinDecision{}, err
	}
	decision.Request = &req
	if !created {
		decision.Status = JoinAlreadyPending
		return decision, nil
	}
	decision.Status = JoinPending
	log.Info().Str("module", "app.joinflow").Str("room", string(roomID)).Str("user", string(c.UserID)).Str("request", string(req.ID)).Msg("join request created")

	hosts, err := f.hostConnections(ctx, m)
	if err != nil {
		log.Error().Err(err).Str("module", "app.joinflow").Str("room", string(roomID)).Msg("resolve hosts")
		return decision, nil
	}
	f.notify.Conns(hosts, protocol.Event{Type: protocol.EvNewJoinRequest, Data: protocol.JoinRequestData{RoomID: roomID, Request: req}})
	return decision, nil
}

func (f *JoinFlow) Approve(ctx context.Context, actor core.Connection, id domain.JoinRequestID) (domain.JoinRequest, error) {
	return f.resolve(ctx, actor, id, domain.JoinRequestApproved)
}

func (f *JoinFlow) Decline(ctx context.Context, actor core.Connection, id domain.JoinRequestID) (domain.JoinRequest, error) {
	return f.resolve(ctx, actor, id, domain.JoinRequestDeclined)
}

func (f *JoinFlow) ApproveMany(ctx context.Context, actor core.Connection, ids []protocol.RequestRef) []BatchResult {
	return f.resolveMany(ctx, actor, ids, domain.JoinRequestApproved)
}

func (f *JoinFlow) DeclineMany(ctx context.Context, actor core.Connection, ids []protocol.RequestRef) []BatchResult {
	return f.resolveMany(ctx, actor, ids, domain.JoinRequestDeclined)
}

func (f *JoinFlow) resolveMany(ctx context.Context, actor core.Connection, refs []protocol.RequestRef, status domain.JoinRequestStatus) []BatchResult {
	out := make([]BatchResult, 0, len(refs))
	for _, ref := range refs {
		res := BatchResult{RequestID: ref.Key()}
		err := ref.Validate()
		if err == nil {
			_, err = f.resolve(ctx, actor, ref.ID, status)
		}
		if err != nil {
			res.Code = domain.Code(err)
			res.Error = err.Error()
		} else {
			res.OK = true
		}
		out = append(out, res)
	}
	return out
}

func (f *JoinFlow) resolve(ctx context.Context, actor core.Connection, id domain.JoinRequestID, status domain.JoinRequestStatus) (domain.JoinRequest, error) {
	req, err := f.store.JoinRequest(ctx, id)
	if err != nil {
		return domain.JoinRequest{}, err
	}
	m, err := f.store.Meeting(ctx, req.MeetingID)
	if err != nil {
		return domain.JoinRequest{}, err
	}
	if err := f.gate.RequireHost(ctx, actor.UserID, m.ID); err != nil {
		return domain.JoinRequest{}, err
	}

	resolved, err := f.store.ResolveJoinRequest(ctx, id, status, actor.UserID, f.now())
	if err != nil {
		return domain.JoinRequest{}, err
	}
	log.Info().
		Str("module", "app.joinflow").
		Str("request", string(id)).
		Str("status", string(status)).
		Str("by", string(actor.UserID)).
		Msg("join request resolved")

	evType := protocol.EvRequestDeclined
	if status == domain.JoinRequestApproved {
		evType = protocol.EvRequestApproved
	}
	data := protocol.JoinRequestData{RoomID: m.RoomID, Request: resolved}
	f.notify.User(resolved.UserID, protocol.Event{Type: evType, Data: data})
	if hosts, err := f.hostConnections(ctx, m); err == nil {
		f.notify.Conns(hosts, protocol.Event{Type: protocol.EvJoinRequestResolved, Data: data})
	}
	return resolved, nil
}

// Pending lists the pending requests of roomID. Host only.
func (f *JoinFlow) Pending(ctx context.Context, actor core.Connection, roomID domain.RoomID) ([]domain.JoinRequest, error) {
	m, err := f.store.MeetingByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := f.gate.RequireHost(ctx, actor.UserID, m.ID); err != nil {
		return nil, err
	}
	return f.store.PendingJoinRequests(ctx, m.ID)
}

// SetApproval toggles whether roomID requires approval. Host only.
func (f *JoinFlow) SetApproval(ctx context.Context, actor core.Connection, roomID domain.RoomID, requires bool) (domain.Meeting, error) {
	m, err := f.store.MeetingByRoom(ctx, roomID)
	if err != nil {
		return domain.Meeting{}, err
	}
	if err := f.gate.RequireHost(ctx, actor.UserID, m.ID); err != nil {
		return domain.Meeting{}, err
	}
	m, err = f.store.SetRequiresApproval(ctx, m.ID, requires)
	if err != nil {
		return domain.Meeting{}, err
	}
	f.notify.Room(roomID, protocol.Event{
		Type: protocol.EvApprovalChanged,
		Data: protocol.ApprovalData{RoomID: roomID, RequiresApproval: requires},
	})
	return m, nil
}

func (f *JoinFlow) hostConnections(ctx context.Context, m domain.Meeting) ([]core.Connection, error) {
	hosts, err := f.gate.HostSet(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Connection, 0, len(hosts))
	for _, c := range f.reg.MembersOfRoom(m.RoomID) {
		if hosts[c.UserID] {
			out = append(out, c)
		}
	}
	return out, nil
}
