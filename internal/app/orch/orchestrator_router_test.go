package orch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
	"github.com/neutron420/bloom/internal/sfu"
	"github.com/neutron420/bloom/internal/store/memory"
)

// slowCloseEngine holds the first CloseRouter call until release is closed.
type slowCloseEngine struct {
	*sfu.Engine
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (e *slowCloseEngine) CloseRouter(roomID domain.RoomID) {
	first := false
	e.once.Do(func() { first = true })
	if first {
		close(e.entered)
		<-e.release
	}
	e.Engine.CloseRouter(roomID)
}

func TestJoinDuringRouterCloseGetsFreshRouter(t *testing.T) {
	inner, err := sfu.NewEngine(sfu.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(inner.Close)
	engine := &slowCloseEngine{Engine: inner, entered: make(chan struct{}), release: make(chan struct{})}
	st := memory.New()
	h := &harness{o: New(Deps{Store: st, Engine: engine, Shards: 4}), st: st, engine: inner}
	ctx := context.Background()

	alice, _ := h.connect(t, "alice")
	h.join(t, alice, "r1")
	h.transport(t, alice, core.DirectionSend)
	bob, _ := h.connect(t, "bob")

	left := make(chan struct{})
	go func() {
		h.o.OnDisconnect(ctx, alice)
		close(left)
	}()
	<-engine.entered

	var (
		sendAny       any
		joinErr, tErr error
	)
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		if _, joinErr = h.o.JoinRoom(ctx, bob, protocol.JoinRoom{RoomID: "r1"}); joinErr != nil {
			return
		}
		sendAny, tErr = h.o.CreateTransport(ctx, bob, protocol.CreateTransport{Direction: core.DirectionSend})
	}()

	select {
	case <-joined:
		t.Fatal("bob entered r1 while its router was being closed")
	case <-time.After(50 * time.Millisecond):
	}

	close(engine.release)
	<-left
	<-joined
	require.NoError(t, joinErr)
	require.NoError(t, tErr)
	send := sendAny.(TransportResult)

	assert.Equal(t, 1, inner.RouterCount())
	assert.Equal(t, 1, h.o.Registry.RoomSize("r1"))
	assert.NotEmpty(t, h.produce(t, bob, send.ID), "bob's transport lives on the new router")
}

func TestCreateTransportAfterRoomEmptied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, _ := h.connect(t, "alice")
	h.join(t, alice, "r1")
	h.transport(t, alice, core.DirectionSend)
	h.o.OnDisconnect(ctx, alice)
	require.Zero(t, h.engine.RouterCount())

	bob, _ := h.connect(t, "bob")
	h.join(t, bob, "r1")
	send := h.transport(t, bob, core.DirectionSend)
	h.produce(t, bob, send.ID)
	assert.Equal(t, 1, h.engine.RouterCount())
	assert.Zero(t, h.o.RoomLocks.Len())
}
