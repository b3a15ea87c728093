package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/protocol"
)

func TestNotifierRoomExcept(t *testing.T) {
	reg := NewRegistry(4)
	n := NewNotifier(reg, nil)
	sigs := map[core.ConnID]*fakeSignal{}
	for i, id := range []core.ConnID{"a", "b", "c"} {
		c, sig := newConn(id, "u", i)
		sigs[id] = sig
		require.NoError(t, reg.Register(c))
		_, err := reg.SetRoom(id, "standup", "m1")
		require.NoError(t, err)
	}

	res := n.Room("standup", protocol.Event{Type: protocol.EvUserJoined}, "a")
	assert.Equal(t, 2, res.Delivered)
	assert.Empty(t, sigs["a"].frames)
	assert.Equal(t, []string{protocol.EvUserJoined}, sigs["b"].types())
	assert.Equal(t, []string{protocol.EvUserJoined}, sigs["c"].types())
}

func TestNotifierBackpressurePolicy(t *testing.T) {
	for _, tc := range []struct {
		policy string
		closed bool
	}{
		{policy: "kick", closed: true},
		{policy: "drop", closed: false},
	} {
		t.Run(tc.policy, func(t *testing.T) {
			reg := NewRegistry(4)
			p, err := PolicyFromString(tc.policy)
			require.NoError(t, err)
			n := NewNotifier(reg, p)

			slow, slowSig := newConn("slow", "u1", 0)
			slowSig.full = true
			fast, fastSig := newConn("fast", "u2", 1)
			require.NoError(t, reg.Register(slow))
			require.NoError(t, reg.Register(fast))

			res := n.All(protocol.Event{Type: protocol.EvAnnouncement})
			assert.Equal(t, 1, res.Delivered)
			assert.Equal(t, []core.ConnID{"slow"}, res.Dropped)
			assert.Equal(t, tc.closed, slowSig.isClosed())
			assert.False(t, fastSig.isClosed())
		})
	}
}

func TestPolicyFromStringRejectsUnknown(t *testing.T) {
	_, err := PolicyFromString("ignore")
	assert.Error(t, err)
}
