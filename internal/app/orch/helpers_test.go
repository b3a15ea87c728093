package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
	"github.com/neutron420/bloom/internal/sfu"
	"github.com/neutron420/bloom/internal/store/memory"
)

type recordingSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (s *recordingSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSignalClosed
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSignal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSignal) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *recordingSignal) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		var ev struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(f, &ev) == nil {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (s *recordingSignal) count(evType string) int {
	n := 0
	for _, t := range s.types() {
		if t == evType {
			n++
		}
	}
	return n
}

func (s *recordingSignal) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

type harness struct {
	o      *Orchestrator
	st     *memory.Store
	engine *sfu.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	e, err := sfu.NewEngine(sfu.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	st := memory.New()
	return &harness{o: New(Deps{Store: st, Engine: e, Shards: 4}), st: st, engine: e}
}

func (h *harness) connect(t *testing.T, user domain.UserID) (core.ConnID, *recordingSignal) {
	t.Helper()
	sig := &recordingSignal{}
	c, err := h.o.Connect(context.Background(), domain.Identity{UserID: user, UserName: string(user)}, sig)
	require.NoError(t, err)
	return c.ID, sig
}

func (h *harness) join(t *testing.T, id core.ConnID, room domain.RoomID) JoinRoomResult {
	t.Helper()
	res, err := h.o.JoinRoom(context.Background(), id, protocol.JoinRoom{RoomID: room})
	require.NoError(t, err)
	return res.(JoinRoomResult)
}

func (h *harness) transport(t *testing.T, id core.ConnID, dir core.Direction) TransportResult {
	t.Helper()
	res, err := h.o.CreateTransport(context.Background(), id, protocol.CreateTransport{Direction: dir})
	require.NoError(t, err)
	return res.(TransportResult)
}

func (h *harness) produce(t *testing.T, id core.ConnID, transportID string) string {
	t.Helper()
	res, err := h.o.Produce(context.Background(), id, protocol.Produce{
		TransportID:   transportID,
		Kind:          core.KindAudio,
		RtpParameters: opusParams(),
	})
	require.NoError(t, err)
	return res.(map[string]any)["id"].(string)
}

func opusParams() core.RtpParameters {
	return core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
	}
}

func clientDTLS() core.DtlsParameters {
	return core.DtlsParameters{
		Role:         "client",
		Fingerprints: []core.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB:CC"}},
	}
}

var adminID = domain.Identity{UserID: "admin", UserName: "Admin", Admin: true}
