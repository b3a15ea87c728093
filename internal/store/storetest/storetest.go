// Package storetest holds the behaviour every store.Store implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/store"
)

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Meetings", func(t *testing.T) { testMeetings(t, newStore(t)) })
	t.Run("Participants", func(t *testing.T) { testParticipants(t, newStore(t)) })
	t.Run("EndMeeting", func(t *testing.T) { testEndMeeting(t, newStore(t)) })
	t.Run("JoinRequests", func(t *testing.T) { testJoinRequests(t, newStore(t)) })
	t.Run("ConcurrentResolve", func(t *testing.T) { testConcurrentResolve(t, newStore(t)) })
	t.Run("ConcurrentCreateRequest", func(t *testing.T) { testConcurrentCreateRequest(t, newStore(t)) })
	t.Run("Chat", func(t *testing.T) { testChat(t, newStore(t)) })
	t.Run("AdminActivity", func(t *testing.T) { testAdminActivity(t, newStore(t)) })
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.User(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)

	u, err := s.EnsureUser(ctx, "u1", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.False(t, u.Suspended)

	u, err = s.EnsureUser(ctx, "u1", "Alice B")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", u.Name)

	require.NoError(t, s.SetUserSuspended(ctx, "u1", true))
	u, err = s.User(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Suspended)

	// renaming keeps the suspension flag
	u, err = s.EnsureUser(ctx, "u1", "Alice C")
	require.NoError(t, err)
	assert.True(t, u.Suspended)
}

func testMeetings(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.MeetingByRoom(ctx, "room-a")
	require.ErrorIs(t, err, domain.ErrNotFound)

	m, created, err := s.GetOrCreateMeeting(ctx, "room-a")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoomID("room-a"), m.RoomID)
	assert.False(t, m.RequiresApproval)
	assert.NotEmpty(t, m.ID)

	again, created, err := s.GetOrCreateMeeting(ctx, "room-a")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)

	m, err = s.SetRequiresApproval(ctx, m.ID, true)
	require.NoError(t, err)
	assert.True(t, m.RequiresApproval)

	byRoom, err := s.MeetingByRoom(ctx, "room-a")
	require.NoError(t, err)
	assert.True(t, byRoom.RequiresApproval)

	byID, err := s.Meeting(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room-a"), byID.RoomID)

	_, err = s.Meeting(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.SetRequiresApproval(ctx, "missing", true)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testParticipants(t *testing.T, s store.Store) {
	ctx := context.Background()
	m, _, err := s.GetOrCreateMeeting(ctx, "room-p")
	require.NoError(t, err)

	host, err := s.JoinMeeting(ctx, "u1", m.ID, base)
	require.NoError(t, err)
	assert.True(t, host.IsHost)
	assert.True(t, host.Active())

	guest, err := s.JoinMeeting(ctx, "u2", m.ID, base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, guest.IsHost)

	active, err := s.ActiveParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, domain.UserID("u1"), active[0].UserID)

	require.NoError(t, s.LeaveMeeting(ctx, "u1", m.ID, base.Add(time.Minute)))
	p, err := s.Participant(ctx, "u1", m.ID)
	require.NoError(t, err)
	require.NotNil(t, p.LeftAt)
	assert.True(t, p.LeftAt.Equal(base.Add(time.Minute)))

	active, err = s.ActiveParticipants(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// rejoin keeps host and the single row
	p, err = s.JoinMeeting(ctx, "u1", m.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, p.IsHost)
	assert.Nil(t, p.LeftAt)

	err = s.LeaveMeeting(ctx, "nobody", m.ID, base)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.JoinMeeting(ctx, "u1", "missing", base)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testEndMeeting(t *testing.T, s store.Store) {
	ctx := context.Background()
	m, _, err := s.GetOrCreateMeeting(ctx, "room-e")
	require.NoError(t, err)
	for i := range 3 {
		_, err := s.JoinMeeting(ctx, domain.UserID(fmt.Sprintf("u%d", i)), m.ID, base)
		require.NoError(t, err)
	}
	require.NoError(t, s.LeaveMeeting(ctx, "u0", m.ID, base.Add(time.Second)))

	n, err := s.EndMeeting(ctx, m.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := s.ActiveParticipants(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	ended, err := s.MeetingByRoom(ctx, "room-e")
	require.NoError(t, err)
	require.NotNil(t, ended.EndedAt)

	_, err = s.EndMeeting(ctx, "missing", base)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testJoinRequests(t *testing.T, s store.Store) {
	ctx := context.Background()
	m, _, err := s.GetOrCreateMeeting(ctx, "room-j")
	require.NoError(t, err)

	r, created, err := s.CreateJoinRequest(ctx, "u2", "Bob", m.ID, base)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.JoinRequestPending, r.Status)
	assert.Equal(t, "Bob", r.UserName)

	dup, created, err := s.CreateJoinRequest(ctx, "u2", "Bob", m.ID, base.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, r.ID, dup.ID)

	_, _, err = s.CreateJoinRequest(ctx, "u3", "Carol", m.ID, base.Add(2*time.Second))
	require.NoError(t, err)

	pending, err := s.PendingJoinRequests(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, r.ID, pending[0].ID)

	_, err = s.ResolveJoinRequest(ctx, r.ID, domain.JoinRequestPending, "u1", base)
	require.ErrorIs(t, err, domain.ErrValidation)

	resolved, err := s.ResolveJoinRequest(ctx, r.ID, domain.JoinRequestApproved, "u1", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.JoinRequestApproved, resolved.Status)
	assert.Equal(t, domain.UserID("u1"), resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
	admitted, err := s.Participant(ctx, "u2", m.ID)
	require.NoError(t, err, "approval records the participant")
	assert.Nil(t, admitted.LeftAt)

	again, err := s.ResolveJoinRequest(ctx, r.ID, domain.JoinRequestDeclined, "u1", base.Add(2*time.Minute))
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.Equal(t, domain.JoinRequestApproved, again.Status)

	_, err = s.ResolveJoinRequest(ctx, "missing", domain.JoinRequestApproved, "u1", base)
	require.ErrorIs(t, err, domain.ErrNotFound)

	pending, err = s.PendingJoinRequests(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = s.ResolveJoinRequest(ctx, pending[0].ID, domain.JoinRequestDeclined, "u1", base.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.Participant(ctx, "u3", m.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "decline admits nobody")

	// a resolved request does not block a new one
	fresh, created, err := s.CreateJoinRequest(ctx, "u2", "Bob", m.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, r.ID, fresh.ID)

	_, _, err = s.CreateJoinRequest(ctx, "u2", "Bob", "missing", base)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentResolve(t *testing.T, s store.Store) {
	ctx := context.Background()
	m, _, err := s.GetOrCreateMeeting(ctx, "room-c")
	require.NoError(t, err)
	r, _, err := s.CreateJoinRequest(ctx, "u2", "Bob", m.ID, base)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := domain.JoinRequestApproved
			if i%2 == 1 {
				status = domain.JoinRequestDeclined
			}
			_, err := s.ResolveJoinRequest(ctx, r.ID, status, "u1", base)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, won)

	final, err := s.JoinRequest(ctx, r.ID)
	require.NoError(t, err)
	_, err = s.Participant(ctx, "u2", m.ID)
	if final.Status == domain.JoinRequestApproved {
		assert.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func testConcurrentCreateRequest(t *testing.T, s store.Store) {
	ctx := context.Background()
	m, _, err := s.GetOrCreateMeeting(ctx, "room-cc")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	type outcome struct {
		id      domain.JoinRequestID
		created bool
		err     error
	}
	results := make(chan outcome, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, created, err := s.CreateJoinRequest(ctx, "u2", "Bob", m.ID, base)
			results <- outcome{id: r.ID, created: created, err: err}
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	ids := make(map[domain.JoinRequestID]struct{})
	for res := range results {
		require.NoError(t, res.err)
		if res.created {
			created++
		}
		ids[res.id] = struct{}{}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1, "every caller sees the same request")

	pending, err := s.PendingJoinRequests(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func testChat(t *testing.T, s store.Store) {
	ctx := context.Background()
	m, _, err := s.GetOrCreateMeeting(ctx, "room-chat")
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, s.AppendChatMessage(ctx, domain.ChatMessage{
			ID:        fmt.Sprintf("m%d", i),
			MeetingID: m.ID,
			UserID:    "u1",
			UserName:  "Alice",
			Message:   fmt.Sprintf("hello %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := s.RecentChatMessages(ctx, m.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "m2", recent[0].ID)
	assert.Equal(t, "m4", recent[2].ID)

	all, err := s.RecentChatMessages(ctx, m.ID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := s.RecentChatMessages(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAdminActivity(t *testing.T, s store.Store) {
	ctx := context.Background()
	actions := []domain.AdminAction{domain.AdminEndMeeting, domain.AdminAnnounce, domain.AdminNotifyUser}
	for i, a := range actions {
		require.NoError(t, s.LogAdminActivity(ctx, domain.AdminActivity{
			ID:        fmt.Sprintf("a%d", i),
			AdminID:   "admin",
			Action:    a,
			Target:    "room-a",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.AdminActivities(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AdminNotifyUser, got[0].Action)
	assert.Equal(t, domain.AdminAnnounce, got[1].Action)
}
