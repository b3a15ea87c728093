package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

// fakeSignal records frames. full makes every TrySend report backpressure.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (s *fakeSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSignalClosed
	}
	if s.full {
		return core.ErrBackpressure
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSignal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSignal) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type sentEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *fakeSignal) events() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentEvent, 0, len(s.frames))
	for _, f := range s.frames {
		var ev sentEvent
		if err := json.Unmarshal(f, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeSignal) types() []string {
	evs := s.events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newConn(id core.ConnID, user domain.UserID, offset int) (core.Connection, *fakeSignal) {
	sig := &fakeSignal{}
	return core.Connection{
		ID:       id,
		UserID:   user,
		UserName: string(user),
		OpenedAt: epoch.Add(time.Duration(offset) * time.Second),
		Signal:   sig,
	}, sig
}
