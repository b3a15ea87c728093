// Package orch wires the registries, the join workflow, media bookkeeping and
// fan-out together and serves every signaling message.
package orch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/app"
	"github.com/neutron420/bloom/internal/app/media"
	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
	"github.com/neutron420/bloom/internal/store"
)

type Orchestrator struct {
	Registry *app.Registry
	Store    store.Store
	Engine   core.MediaEngine
	Notify   *app.Notifier
	Limiter  *app.RateLimiter
	Gate     *app.Gate
	Joins    *app.JoinFlow
	Screens  *app.ScreenShares
	Chat     *app.Chat
	Media    *media.Sessions
	// RoomLocks orders room entry against closing the router of an empty room.
	RoomLocks *app.RoomLocks

	now func() time.Time
}

var _ protocol.ClientHandler = (*Orchestrator)(nil)

type Deps struct {
	Store   store.Store
	Engine  core.MediaEngine
	Policy  app.Policy
	Limiter *app.RateLimiter
	Shards  int
	Now     func() time.Time
}

func New(d Deps) *Orchestrator {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = app.NewRateLimiter(0, 0)
	}
	reg := app.NewRegistry(d.Shards)
	notify := app.NewNotifier(reg, d.Policy)
	gate := app.NewGate(d.Store)
	return &Orchestrator{
		Registry:  reg,
		Store:     d.Store,
		Engine:    d.Engine,
		Notify:    notify,
		Limiter:   limiter,
		Gate:      gate,
		Joins:     app.NewJoinFlow(d.Store, reg, notify, gate).WithClock(now),
		Screens:   app.NewScreenShares(notify),
		Chat:      app.NewChat(d.Store, notify).WithClock(now),
		Media:     media.NewSessions(),
		RoomLocks: app.NewRoomLocks(),
		now:       now,
	}
}

// Connect registers a new signaling connection for id.
func (o *Orchestrator) Connect(ctx context.Context, id domain.Identity, sig core.SignalConnection) (core.Connection, error) {
	if err := domain.ValidateUserID(id.UserID); err != nil {
		return core.Connection{}, err
	}
	name, err := domain.NormalizeUsername(id.UserName)
	if err != nil {
		name = string(id.UserID)
		if len(name) > domain.MaxUsernameLen {
			name = name[:domain.MaxUsernameLen]
		}
	}
	u, err := o.Store.EnsureUser(ctx, id.UserID, name)
	if err != nil {
		return core.Connection{}, err
	}
	if u.Suspended {
		return core.Connection{}, domain.ErrUserSuspended
	}
	c := core.Connection{
		ID:       core.ConnID(uuid.NewString()),
		UserID:   id.UserID,
		UserName: name,
		Admin:    id.Admin,
		OpenedAt: o.now().UTC(),
		Signal:   sig,
	}
	if err := o.Registry.Register(c); err != nil {
		return core.Connection{}, err
	}
	return c, nil
}

// Allow applies the per-connection rate limit.
func (o *Orchestrator) Allow(id core.ConnID) bool {
	return o.Limiter.Allow(id)
}

// OnDisconnect releases everything id owns. It is safe to call more than once.
func (o *Orchestrator) OnDisconnect(ctx context.Context, id core.ConnID) {
	if c, ok := o.Registry.Lookup(id); ok && c.InRoom() {
		o.leaveRoom(ctx, c)
	}
	if res, ok := o.Media.Remove(id); ok {
		o.closeDrained(res.Drain())
	}
	o.Screens.ReleaseConn(id)
	o.Limiter.Reset(id)
	if _, ok := o.Registry.Unregister(id); ok {
		log.Info().Str("module", "orch").Str("conn", string(id)).Msg("disconnected")
	}
}

func (o *Orchestrator) conn(id core.ConnID) (core.Connection, error) {
	c, ok := o.Registry.Lookup(id)
	if !ok {
		return core.Connection{}, domain.ErrConnNotFound
	}
	return c, nil
}

func (o *Orchestrator) roomConn(id core.ConnID) (core.Connection, error) {
	c, err := o.conn(id)
	if err != nil {
		return core.Connection{}, err
	}
	if !c.InRoom() {
		return core.Connection{}, domain.ErrNotInRoom
	}
	return c, nil
}

func (o *Orchestrator) Ping(context.Context, core.ConnID, protocol.Ping) (any, error) {
	return protocol.Event{Type: protocol.EvPong, Data: protocol.PongData{Time: o.now().UTC()}}, nil
}

func (o *Orchestrator) Rooms() []core.RoomInfo {
	return o.Registry.Rooms()
}
