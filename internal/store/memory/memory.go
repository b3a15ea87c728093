// Package memory is an in-process Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/store"
)

type participantKey struct {
	user    domain.UserID
	meeting domain.MeetingID
}

type Store struct {
	mu           sync.Mutex
	users        map[domain.UserID]domain.User
	meetings     map[domain.MeetingID]domain.Meeting
	meetingByRm  map[domain.RoomID]domain.MeetingID
	participants map[participantKey]domain.Participant
	requests     map[domain.JoinRequestID]domain.JoinRequest
	chat         map[domain.MeetingID][]domain.ChatMessage
	admin        []domain.AdminActivity
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[domain.UserID]domain.User),
		meetings:     make(map[domain.MeetingID]domain.Meeting),
		meetingByRm:  make(map[domain.RoomID]domain.MeetingID),
		participants: make(map[participantKey]domain.Participant),
		requests:     make(map[domain.JoinRequestID]domain.JoinRequest),
		chat:         make(map[domain.MeetingID][]domain.ChatMessage),
	}
}

func (s *Store) EnsureUser(_ context.Context, id domain.UserID, name string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = domain.User{ID: id}
	}
	u.Name = name
	s.users[id] = u
	return u, nil
}

func (s *Store) User(_ context.Context, id domain.UserID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (s *Store) SetUserSuspended(_ context.Context, id domain.UserID, suspended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = domain.User{ID: id, Name: string(id)}
	}
	u.Suspended = suspended
	s.users[id] = u
	return nil
}

func (s *Store) GetOrCreateMeeting(_ context.Context, roomID domain.RoomID) (domain.Meeting, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.meetingByRm[roomID]; ok {
		return s.meetings[id], false, nil
	}
	m := domain.Meeting{
		ID:        domain.MeetingID(uuid.NewString()),
		RoomID:    roomID,
		Title:     string(roomID),
		CreatedAt: time.Now().UTC(),
	}
	s.meetings[m.ID] = m
	s.meetingByRm[roomID] = m.ID
	return m, true, nil
}

func (s *Store) Meeting(_ context.Context, id domain.MeetingID) (domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	return m, nil
}

func (s *Store) MeetingByRoom(_ context.Context, roomID domain.RoomID) (domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.meetingByRm[roomID]
	if !ok {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	return s.meetings[id], nil
}

func (s *Store) SetRequiresApproval(_ context.Context, id domain.MeetingID, requires bool) (domain.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return domain.Meeting{}, domain.ErrMeetingNotFound
	}
	m.RequiresApproval = requires
	s.meetings[id] = m
	return m, nil
}

func (s *Store) EndMeeting(_ context.Context, id domain.MeetingID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return 0, domain.ErrMeetingNotFound
	}
	at = at.UTC()
	n := 0
	for k, p := range s.participants {
		if k.meeting == id && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
			s.participants[k] = p
			n++
		}
	}
	ended := at
	m.EndedAt = &ended
	s.meetings[id] = m
	return n, nil
}

func (s *Store) JoinMeeting(_ context.Context, userID domain.UserID, meetingID domain.MeetingID, at time.Time) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinLocked(userID, meetingID, at)
}

func (s *Store) joinLocked(userID domain.UserID, meetingID domain.MeetingID, at time.Time) (domain.Participant, error) {
	if _, ok := s.meetings[meetingID]; !ok {
		return domain.Participant{}, domain.ErrMeetingNotFound
	}
	k := participantKey{user: userID, meeting: meetingID}
	if p, ok := s.participants[k]; ok {
		p.LeftAt = nil
		s.participants[k] = p
		return p, nil
	}
	first := true
	for pk := range s.participants {
		if pk.meeting == meetingID {
			first = false
			break
		}
	}
	p := domain.Participant{UserID: userID, MeetingID: meetingID, IsHost: first, JoinedAt: at.UTC()}
	s.participants[k] = p
	return p, nil
}

func (s *Store) Participant(_ context.Context, userID domain.UserID, meetingID domain.MeetingID) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{user: userID, meeting: meetingID}]
	if !ok {
		return domain.Participant{}, fmt.Errorf("participant %s: %w", userID, domain.ErrNotFound)
	}
	return p, nil
}

func (s *Store) LeaveMeeting(_ context.Context, userID domain.UserID, meetingID domain.MeetingID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := participantKey{user: userID, meeting: meetingID}
	p, ok := s.participants[k]
	if !ok {
		return fmt.Errorf("participant %s: %w", userID, domain.ErrNotFound)
	}
	if p.LeftAt == nil {
		left := at.UTC()
		p.LeftAt = &left
		s.participants[k] = p
	}
	return nil
}

func (s *Store) ActiveParticipants(_ context.Context, meetingID domain.MeetingID) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, 0)
	for k, p := range s.participants {
		if k.meeting == meetingID && p.LeftAt == nil {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) CreateJoinRequest(_ context.Context, userID domain.UserID, userName string, meetingID domain.MeetingID, at time.Time) (domain.JoinRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[meetingID]; !ok {
		return domain.JoinRequest{}, false, domain.ErrMeetingNotFound
	}
	for _, r := range s.requests {
		if r.UserID == userID && r.MeetingID == meetingID && r.Status == domain.JoinRequestPending {
			return r, false, nil
		}
	}
	r := domain.JoinRequest{
		ID:        domain.JoinRequestID(uuid.NewString()),
		UserID:    userID,
		UserName:  userName,
		MeetingID: meetingID,
		Status:    domain.JoinRequestPending,
		CreatedAt: at.UTC(),
	}
	s.requests[r.ID] = r
	return r, true, nil
}

func (s *Store) JoinRequest(_ context.Context, id domain.JoinRequestID) (domain.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return domain.JoinRequest{}, domain.ErrRequestNotFound
	}
	return r, nil
}

func (s *Store) PendingJoinRequests(_ context.Context, meetingID domain.MeetingID) ([]domain.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.JoinRequest, 0)
	for _, r := range s.requests {
		if r.MeetingID == meetingID && r.Status == domain.JoinRequestPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ResolveJoinRequest(_ context.Context, id domain.JoinRequestID, status domain.JoinRequestStatus, by domain.UserID, at time.Time) (domain.JoinRequest, error) {
	if !status.Terminal() {
		return domain.JoinRequest{}, fmt.Errorf("resolve to %q: %w", status, domain.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return domain.JoinRequest{}, domain.ErrRequestNotFound
	}
	if r.Status != domain.JoinRequestPending {
		return r, domain.ErrRequestProcessed
	}
	if status == domain.JoinRequestApproved {
		if _, err := s.joinLocked(r.UserID, r.MeetingID, at); err != nil {
			return domain.JoinRequest{}, err
		}
	}
	resolved := at.UTC()
	r.Status = status
	r.ResolvedAt = &resolved
	r.ResolvedBy = by
	s.requests[id] = r
	return r, nil
}

func (s *Store) AppendChatMessage(_ context.Context, msg domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[msg.MeetingID] = append(s.chat[msg.MeetingID], msg)
	return nil
}

func (s *Store) RecentChatMessages(_ context.Context, meetingID domain.MeetingID, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.chat[meetingID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.ChatMessage, len(all))
	copy(out, all)
	return out, nil
}

func (s *Store) LogAdminActivity(_ context.Context, a domain.AdminActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = append(s.admin, a)
	return nil
}

func (s *Store) AdminActivities(_ context.Context, limit int) ([]domain.AdminActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AdminActivity, 0, len(s.admin))
	for i := len(s.admin) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.admin[i])
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
