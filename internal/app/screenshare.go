package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

// ScreenShares allows at most one active screen share per room.
type ScreenShares struct {
	mu     sync.Mutex
	byRoom map[domain.RoomID]domain.ScreenShareSession
	notify *Notifier
	now    func() time.Time
}

func NewScreenShares(n *Notifier) *ScreenShares {
	return &ScreenShares{
		byRoom: make(map[domain.RoomID]domain.ScreenShareSession),
		notify: n,
		now:    time.Now,
	}
}

func (s *ScreenShares) Start(c core.Connection) (domain.ScreenShareSession, error) {
	if !c.InRoom() {
		return domain.ScreenShareSession{}, domain.ErrNotInRoom
	}
	s.mu.Lock()
	if _, ok := s.byRoom[c.RoomID]; ok {
		s.mu.Unlock()
		return domain.ScreenShareSession{}, domain.ErrScreenShareActive
	}
	share := domain.ScreenShareSession{
		ShareID:   uuid.NewString(),
		RoomID:    c.RoomID,
		UserID:    c.UserID,
		UserName:  c.UserName,
		ConnID:    string(c.ID),
		StartedAt: s.now().UTC(),
	}
	s.byRoom[c.RoomID] = share
	s.mu.Unlock()

	log.Info().Str("module", "app.screenshare").Str("room", string(c.RoomID)).Str("user", string(c.UserID)).Msg("screen share started")
	s.notify.Room(c.RoomID, protocol.Event{
		Type: protocol.EvScreenShareStarted,
		Data: protocol.ScreenShareData{RoomID: c.RoomID, Share: &share, UserID: c.UserID},
	})
	return share, nil
}

// Stop ends the share of roomID. Only its owner or an admin may stop it.
func (s *ScreenShares) Stop(roomID domain.RoomID, userID domain.UserID, admin bool) (domain.ScreenShareSession, error) {
	s.mu.Lock()
	share, ok := s.byRoom[roomID]
	if !ok {
		s.mu.Unlock()
		return domain.ScreenShareSession{}, domain.ErrNoScreenShare
	}
	if share.UserID != userID && !admin {
		s.mu.Unlock()
		return domain.ScreenShareSession{}, domain.ErrUnauthorized
	}
	delete(s.byRoom, roomID)
	s.mu.Unlock()

	s.stopped(share)
	return share, nil
}

func (s *ScreenShares) Current(roomID domain.RoomID) (domain.ScreenShareSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.byRoom[roomID]
	return share, ok
}

// ReleaseConn ends any share owned by connection id.
func (s *ScreenShares) ReleaseConn(id core.ConnID) []domain.ScreenShareSession {
	s.mu.Lock()
	var released []domain.ScreenShareSession
	for roomID, share := range s.byRoom {
		if share.ConnID == string(id) {
			delete(s.byRoom, roomID)
			released = append(released, share)
		}
	}
	s.mu.Unlock()

	for _, share := range released {
		s.stopped(share)
	}
	return released
}

// ReleaseRoom drops the share of roomID without notifying anyone.
func (s *ScreenShares) ReleaseRoom(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRoom, roomID)
}

func (s *ScreenShares) stopped(share domain.ScreenShareSession) {
	log.Info().Str("module", "app.screenshare").Str("room", string(share.RoomID)).Str("user", string(share.UserID)).Msg("screen share stopped")
	s.notify.Room(share.RoomID, protocol.Event{
		Type: protocol.EvScreenShareStopped,
		Data: protocol.ScreenShareData{RoomID: share.RoomID, UserID: share.UserID},
	})
}
