package app

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
	"github.com/neutron420/bloom/internal/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type Chat struct {
	store  store.Store
	notify *Notifier
	now    func() time.Time
}

func NewChat(s store.Store, n *Notifier) *Chat {
	return &Chat{store: s, notify: n, now: time.Now}
}

func (c *Chat) WithClock(now func() time.Time) *Chat {
	c.now = now
	return c
}

// Send persists text from sender and pushes it to the whole room, sender included.
func (c *Chat) Send(ctx context.Context, sender core.Connection, text string) (domain.ChatMessage, error) {
	if !sender.InRoom() {
		return domain.ChatMessage{}, domain.ErrNotInRoom
	}
	text, err := domain.NormalizeMessage(text)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	now := c.now().UTC()
	msg := domain.ChatMessage{
		ID:        NewULID(now),
		MeetingID: sender.MeetingID,
		UserID:    sender.UserID,
		UserName:  sender.UserName,
		Message:   text,
		CreatedAt: now,
	}
	if err := c.store.AppendChatMessage(ctx, msg); err != nil {
		return domain.ChatMessage{}, err
	}
	c.notify.Room(sender.RoomID, protocol.Event{Type: protocol.EvNewMessage, Data: msg})
	return msg, nil
}

func (c *Chat) History(ctx context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return c.store.RecentChatMessages(ctx, meetingID, limit)
}

func NewULID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
