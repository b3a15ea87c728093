package app

import (
	"errors"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

type PublishResult struct {
	Delivered int
	Dropped   []core.ConnID
}

// Notifier encodes events once and pushes them to connections without blocking.
type Notifier struct {
	reg    *Registry
	policy Policy
}

func NewNotifier(reg *Registry, policy Policy) *Notifier {
	if policy == nil {
		policy = SimplePolicy{Action: KickMember}
	}
	return &Notifier{reg: reg, policy: policy}
}

func (n *Notifier) Conn(c core.Connection, ev protocol.Event) bool {
	res := n.publish([]core.Connection{c}, ev)
	return res.Delivered == 1
}

func (n *Notifier) ConnID(id core.ConnID, ev protocol.Event) bool {
	c, ok := n.reg.Lookup(id)
	if !ok {
		return false
	}
	return n.Conn(c, ev)
}

// Room pushes ev to every member of roomID except the ids in except.
func (n *Notifier) Room(roomID domain.RoomID, ev protocol.Event, except ...core.ConnID) PublishResult {
	members := n.reg.MembersOfRoom(roomID)
	if len(except) > 0 {
		kept := members[:0]
		for _, c := range members {
			if !slices.Contains(except, c.ID) {
				kept = append(kept, c)
			}
		}
		members = kept
	}
	return n.publish(members, ev)
}

func (n *Notifier) User(userID domain.UserID, ev protocol.Event) PublishResult {
	return n.publish(n.reg.ConnectionsOfUser(userID), ev)
}

func (n *Notifier) Conns(cs []core.Connection, ev protocol.Event) PublishResult {
	return n.publish(cs, ev)
}

func (n *Notifier) All(ev protocol.Event) PublishResult {
	return n.publish(n.reg.All(), ev)
}

func (n *Notifier) publish(targets []core.Connection, ev protocol.Event) PublishResult {
	var res PublishResult
	if len(targets) == 0 {
		return res
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.notifier").Str("type", ev.Type).Msg("encode event")
		return res
	}
	for _, c := range targets {
		if c.Signal == nil {
			continue
		}
		err := c.Signal.TrySend(frame)
		switch {
		case err == nil:
			res.Delivered++
		case errors.Is(err, core.ErrBackpressure):
			res.Dropped = append(res.Dropped, c.ID)
			n.onBackpressure(c, ev.Type)
		default:
			log.Debug().Err(err).Str("module", "app.notifier").Str("conn", string(c.ID)).Msg("send on closed connection")
		}
	}
	return res
}

func (n *Notifier) onBackpressure(c core.Connection, evType string) {
	switch n.policy.OnBackPressure(c) {
	case KickMember:
		log.Warn().Str("module", "app.notifier").Str("conn", string(c.ID)).Str("type", evType).Msg("slow consumer kicked")
		// closing the signal ends its reader, which runs the disconnect cleanup
		c.Signal.Close()
	case MarkSlow, DropFrame, NoAction:
		log.Warn().Str("module", "app.notifier").Str("conn", string(c.ID)).Str("type", evType).Msg("frame dropped")
	}
}
