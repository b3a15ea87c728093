package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/store"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose outbound buffer is full.
type Policy interface {
	OnBackPressure(c core.Connection) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(core.Connection) BackpressureAction { return p.Action }

// PolicyFromString maps the slow_consumer_policy setting.
func PolicyFromString(s string) (Policy, error) {
	switch s {
	case "", "kick":
		return SimplePolicy{Action: KickMember}, nil
	case "drop":
		return SimplePolicy{Action: DropFrame}, nil
	}
	return nil, fmt.Errorf("unknown slow consumer policy %q", s)
}

// Gate is the single place host and admin privileges are checked.
type Gate struct {
	store store.Store
}

func NewGate(s store.Store) *Gate { return &Gate{store: s} }

// RequireHost fails unless userID is an active host of meetingID.
func (g *Gate) RequireHost(ctx context.Context, userID domain.UserID, meetingID domain.MeetingID) error {
	p, err := g.store.Participant(ctx, userID, meetingID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotHost
	}
	if err != nil {
		return err
	}
	if !p.ActiveHost() {
		return domain.ErrNotHost
	}
	return nil
}

func (g *Gate) RequireAdmin(id domain.Identity) error {
	if !id.Admin {
		return domain.ErrNotAdmin
	}
	return nil
}

// HostSet returns the users that are active hosts of meetingID.
func (g *Gate) HostSet(ctx context.Context, meetingID domain.MeetingID) (map[domain.UserID]bool, error) {
	active, err := g.store.ActiveParticipants(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	hosts := make(map[domain.UserID]bool)
	for _, p := range active {
		if p.IsHost {
			hosts[p.UserID] = true
		}
	}
	return hosts, nil
}
