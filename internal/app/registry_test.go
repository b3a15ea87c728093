package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

func TestRegistryRegisterConflict(t *testing.T) {
	r := NewRegistry(4)
	c, _ := newConn("c1", "alice", 0)
	require.NoError(t, r.Register(c))

	err := r.Register(c)
	require.ErrorIs(t, err, domain.ErrConnExists)
	assert.Equal(t, domain.CodeConflict, domain.Code(err))
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRegisterDropsRoom(t *testing.T) {
	r := NewRegistry(4)
	c, _ := newConn("c1", "alice", 0)
	c.RoomID = "standup"
	require.NoError(t, r.Register(c))

	got, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.False(t, got.InRoom())
	assert.Empty(t, r.MembersOfRoom("standup"))
}

func TestRegistryRoomMembership(t *testing.T) {
	r := NewRegistry(4)
	for i, id := range []core.ConnID{"c3", "c1", "c2"} {
		c, _ := newConn(id, domain.UserID("u-"+string(id)), i)
		require.NoError(t, r.Register(c))
	}

	prev, err := r.SetRoom("c1", "standup", "m1")
	require.NoError(t, err)
	assert.False(t, prev.InRoom())
	_, err = r.SetRoom("c2", "standup", "m1")
	require.NoError(t, err)
	_, err = r.SetRoom("c3", "standup", "m1")
	require.NoError(t, err)

	members := r.MembersOfRoom("standup")
	require.Len(t, members, 3)
	// oldest first
	assert.Equal(t, core.ConnID("c3"), members[0].ID)
	assert.Equal(t, core.ConnID("c1"), members[1].ID)
	assert.Equal(t, core.ConnID("c2"), members[2].ID)

	prev, err = r.SetRoom("c1", "retro", "m2")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("standup"), prev.RoomID)
	assert.Equal(t, 2, r.RoomSize("standup"))
	assert.Equal(t, 1, r.RoomSize("retro"))

	prev, ok := r.ClearRoom("c2")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("standup"), prev.RoomID)
	_, ok = r.ClearRoom("c2")
	assert.False(t, ok)

	_, ok = r.Unregister("c3")
	require.True(t, ok)
	assert.Empty(t, r.MembersOfRoom("standup"))
	assert.Equal(t, []core.RoomInfo{{RoomID: "retro", MemberCount: 1}}, r.Rooms())

	_, err = r.SetRoom("missing", "retro", "m2")
	assert.ErrorIs(t, err, domain.ErrConnNotFound)
}

func TestRegistryConnectionsOfUser(t *testing.T) {
	r := NewRegistry(2)
	a1, _ := newConn("a1", "alice", 0)
	a2, _ := newConn("a2", "alice", 1)
	b1, _ := newConn("b1", "bob", 2)
	for _, c := range []core.Connection{a1, a2, b1} {
		require.NoError(t, r.Register(c))
	}

	got := r.ConnectionsOfUser("alice")
	require.Len(t, got, 2)
	assert.Equal(t, core.ConnID("a1"), got[0].ID)
	assert.Equal(t, core.ConnID("a2"), got[1].ID)
	assert.Len(t, r.All(), 3)

	renamed, err := r.Rename("b1", "Bobby")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", renamed.UserName)
}

// Every connection is found in exactly the room its record names.
func TestRegistryConcurrentMoves(t *testing.T) {
	r := NewRegistry(8)
	rooms := []domain.RoomID{"r0", "r1", "r2"}
	const n = 40
	for i := range n {
		c, _ := newConn(core.ConnID(fmt.Sprintf("c%d", i)), "u", i)
		require.NoError(t, r.Register(c))
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := core.ConnID(fmt.Sprintf("c%d", i))
			for j := range 50 {
				if j%7 == 6 {
					r.ClearRoom(id)
					continue
				}
				_, err := r.SetRoom(id, rooms[(i+j)%len(rooms)], "m")
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, room := range rooms {
		members := r.MembersOfRoom(room)
		assert.Equal(t, len(members), r.RoomSize(room))
		for _, c := range members {
			assert.Equal(t, room, c.RoomID)
		}
		total += len(members)
	}
	inRoom := 0
	for _, c := range r.All() {
		if c.InRoom() {
			inRoom++
		}
	}
	assert.Equal(t, inRoom, total)
}
