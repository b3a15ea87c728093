package orch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/app"
	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

func TestConnectValidatesIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.o.Connect(ctx, domain.Identity{UserID: "bad id!"}, &recordingSignal{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, h.st.SetUserSuspended(ctx, "mallory", true))
	_, err = h.o.Connect(ctx, domain.Identity{UserID: "mallory", UserName: "Mallory"}, &recordingSignal{})
	assert.ErrorIs(t, err, domain.ErrUserSuspended)

	c, err := h.o.Connect(ctx, domain.Identity{UserID: "alice", UserName: "   "}, &recordingSignal{})
	require.NoError(t, err)
	assert.Equal(t, "alice", c.UserName, "blank names fall back to the user id")
	assert.Equal(t, 1, h.o.Registry.Count())
}

func TestJoinRoomBroadcastsPresence(t *testing.T) {
	h := newHarness(t)
	a, sigA := h.connect(t, "alice")
	b, sigB := h.connect(t, "bob")

	first := h.join(t, a, "standup")
	assert.True(t, first.IsHost)
	assert.Len(t, first.Participants, 1)

	second := h.join(t, b, "standup")
	assert.False(t, second.IsHost)
	require.Len(t, second.Participants, 2)
	assert.Equal(t, a, second.Participants[0].ConnID)
	assert.True(t, second.Participants[0].IsHost)

	assert.Equal(t, 1, sigA.count(protocol.EvUserJoined))
	assert.Zero(t, sigB.count(protocol.EvUserJoined), "joiner is not told about itself")
	assert.Equal(t, 1, sigB.count(protocol.EvParticipants))

	// joining the same room twice does not re-announce
	h.join(t, b, "standup")
	assert.Equal(t, 1, sigA.count(protocol.EvUserJoined))
	assert.Equal(t, []core.RoomInfo{{RoomID: "standup", MemberCount: 2}}, h.o.Rooms())
}

func TestJoinRoomMovesBetweenRooms(t *testing.T) {
	h := newHarness(t)
	a, sigA := h.connect(t, "alice")
	b, _ := h.connect(t, "bob")
	h.join(t, a, "standup")
	h.join(t, b, "standup")

	h.join(t, b, "retro")
	assert.Equal(t, 1, sigA.count(protocol.EvUserLeft))
	assert.Equal(t, 1, h.o.Registry.RoomSize("standup"))
	assert.Equal(t, 1, h.o.Registry.RoomSize("retro"))
}

func TestJoinRoomRename(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect(t, "alice")
	res, err := h.o.JoinRoom(context.Background(), a, protocol.JoinRoom{RoomID: "standup", UserName: " Alice L. "})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", res.(JoinRoomResult).Participants[0].UserName)

	u, err := h.st.User(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", u.Name)
}

func TestRoomScopedHandlersRequireRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "alice")

	calls := map[string]func() (any, error){
		"leave":        func() (any, error) { return h.o.LeaveRoom(ctx, a, protocol.LeaveRoom{}) },
		"capabilities": func() (any, error) { return h.o.GetRtpCapabilities(ctx, a, protocol.GetRtpCapabilities{}) },
		"transport": func() (any, error) {
			return h.o.CreateTransport(ctx, a, protocol.CreateTransport{Direction: core.DirectionSend})
		},
		"producers":    func() (any, error) { return h.o.GetProducers(ctx, a, protocol.GetProducers{}) },
		"screen-share": func() (any, error) { return h.o.StartScreenShare(ctx, a, protocol.StartScreenShare{}) },
		"chat":         func() (any, error) { return h.o.SendMessage(ctx, a, protocol.SendMessage{Message: "hi"}) },
		"history":      func() (any, error) { return h.o.GetChatHistory(ctx, a, protocol.GetChatHistory{}) },
		"approval":     func() (any, error) { return h.o.SetApproval(ctx, a, protocol.SetApproval{RequiresApproval: true}) },
		"pending":      func() (any, error) { return h.o.GetPendingRequests(ctx, a, protocol.GetPendingRequests{}) },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			_, err := call()
			require.ErrorIs(t, err, domain.ErrNotInRoom)
			assert.Equal(t, domain.CodeUnauthorized, domain.Code(err))
		})
	}

	_, err := h.o.JoinRoom(ctx, "unknown-conn", protocol.JoinRoom{RoomID: "standup"})
	assert.ErrorIs(t, err, domain.ErrConnNotFound)
}

func TestApprovalThroughOrchestrator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	host, hostSig := h.connect(t, "host")
	guest, guestSig := h.connect(t, "guest")
	h.join(t, host, "standup")

	_, err := h.o.SetApproval(ctx, host, protocol.SetApproval{RequiresApproval: true})
	require.NoError(t, err)

	_, err = h.o.JoinRoom(ctx, guest, protocol.JoinRoom{RoomID: "standup"})
	require.ErrorIs(t, err, domain.ErrApprovalRequired)

	res, err := h.o.RequestJoin(ctx, guest, protocol.RequestJoin{RoomID: "standup"})
	require.NoError(t, err)
	decision := res.(app.JoinDecision)
	require.Equal(t, app.JoinPending, decision.Status)
	assert.Equal(t, 1, hostSig.count(protocol.EvNewJoinRequest))

	pending, err := h.o.GetPendingRequests(ctx, host, protocol.GetPendingRequests{})
	require.NoError(t, err)
	assert.Len(t, pending.(map[string]any)["requests"], 1)

	_, err = h.o.ApproveRequest(ctx, guest, protocol.ApproveRequest{RequestID: decision.Request.ID})
	require.ErrorIs(t, err, domain.ErrNotHost)

	_, err = h.o.ApproveRequest(ctx, host, protocol.ApproveRequest{RequestID: decision.Request.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, guestSig.count(protocol.EvRequestApproved))

	joined := h.join(t, guest, "standup")
	assert.True(t, joined.RequiresApproval)
	assert.Len(t, joined.Participants, 2)

	batch, err := h.o.DeclineRequests(ctx, host, protocol.DeclineRequests{RequestIDs: []protocol.RequestRef{protocol.Ref(decision.Request.ID)}})
	require.NoError(t, err)
	results := batch.(batchResponse).Results
	require.Len(t, results, 1)
	assert.Equal(t, domain.CodeAlreadyProcessed, results[0].Code)
}

func TestScreenShareReleasedOnLeave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "alice")
	b, sigB := h.connect(t, "bob")
	h.join(t, a, "standup")
	h.join(t, b, "standup")

	_, err := h.o.StartScreenShare(ctx, a, protocol.StartScreenShare{})
	require.NoError(t, err)
	_, err = h.o.StartScreenShare(ctx, b, protocol.StartScreenShare{})
	require.ErrorIs(t, err, domain.ErrScreenShareActive)

	got, err := h.o.GetScreenSharer(ctx, b, protocol.GetScreenSharer{})
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), got.(protocol.ScreenShareData).UserID)

	_, err = h.o.LeaveRoom(ctx, a, protocol.LeaveRoom{})
	require.NoError(t, err)
	assert.Equal(t, 1, sigB.count(protocol.EvScreenShareStopped))

	_, err = h.o.StartScreenShare(ctx, b, protocol.StartScreenShare{})
	assert.NoError(t, err)
}

func TestChatThroughOrchestrator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, sigA := h.connect(t, "alice")
	b, sigB := h.connect(t, "bob")
	h.join(t, a, "standup")
	h.join(t, b, "standup")

	_, err := h.o.SendMessage(ctx, a, protocol.SendMessage{Message: "morning"})
	require.NoError(t, err)
	assert.Equal(t, 1, sigA.count(protocol.EvNewMessage))
	assert.Equal(t, 1, sigB.count(protocol.EvNewMessage))

	res, err := h.o.GetChatHistory(ctx, b, protocol.GetChatHistory{Limit: 10})
	require.NoError(t, err)
	msgs := res.(map[string]any)["messages"].([]domain.ChatMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "morning", msgs[0].Message)
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect(t, "alice")
	res, err := h.o.Ping(context.Background(), a, protocol.Ping{})
	require.NoError(t, err)
	assert.Equal(t, protocol.EvPong, res.(protocol.Event).Type)
}
