package app

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

const DefaultShards = 16

type connShard struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*core.Connection
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[core.ConnID]struct{}
}

// Registry tracks open connections and, derived from them, room membership.
// Locks are always taken connection shard first, then room shard.
type Registry struct {
	conns []*connShard
	rooms []*roomShard
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{
		conns: make([]*connShard, shards),
		rooms: make([]*roomShard, shards),
	}
	for i := range shards {
		r.conns[i] = &connShard{conns: make(map[core.ConnID]*core.Connection)}
		r.rooms[i] = &roomShard{rooms: make(map[domain.RoomID]map[core.ConnID]struct{})}
	}
	return r
}

func shardOf(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (r *Registry) connShard(id core.ConnID) *connShard {
	return r.conns[shardOf(string(id), len(r.conns))]
}

func (r *Registry) roomShard(id domain.RoomID) *roomShard {
	return r.rooms[shardOf(string(id), len(r.rooms))]
}

func (s *roomShard) add(room domain.RoomID, id core.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[room]
	if !ok {
		members = make(map[core.ConnID]struct{})
		s.rooms[room] = members
	}
	members[id] = struct{}{}
}

func (s *roomShard) remove(room domain.RoomID, id core.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
}

// Register adds c. The connection must not carry a room yet.
func (r *Registry) Register(c core.Connection) error {
	c.RoomID, c.MeetingID = "", ""
	s := r.connShard(c.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c.ID]; ok {
		return domain.ErrConnExists
	}
	s.conns[c.ID] = &c
	log.Info().Str("module", "app.registry").Str("conn", string(c.ID)).Str("user", string(c.UserID)).Msg("registered connection")
	return nil
}

func (r *Registry) Lookup(id core.ConnID) (core.Connection, bool) {
	s := r.connShard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	if !ok {
		return core.Connection{}, false
	}
	return *c, true
}

func (r *Registry) Rename(id core.ConnID, name string) (core.Connection, error) {
	s := r.connShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return core.Connection{}, domain.ErrConnNotFound
	}
	c.UserName = name
	return *c, nil
}

// SetRoom moves id into roomID and returns the record as it was before.
func (r *Registry) SetRoom(id core.ConnID, roomID domain.RoomID, meetingID domain.MeetingID) (core.Connection, error) {
	s := r.connShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return core.Connection{}, domain.ErrConnNotFound
	}
	prev := *c
	if prev.RoomID == roomID {
		c.MeetingID = meetingID
		return prev, nil
	}
	if prev.RoomID != "" {
		r.roomShard(prev.RoomID).remove(prev.RoomID, id)
	}
	r.roomShard(roomID).add(roomID, id)
	c.RoomID, c.MeetingID = roomID, meetingID
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(roomID)).Msg("updated room")
	return prev, nil
}

// ClearRoom removes id from its room. ok is false when it was in none.
func (r *Registry) ClearRoom(id core.ConnID) (prev core.Connection, ok bool) {
	s := r.connShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.conns[id]
	if !found || c.RoomID == "" {
		return core.Connection{}, false
	}
	prev = *c
	r.roomShard(prev.RoomID).remove(prev.RoomID, id)
	c.RoomID, c.MeetingID = "", ""
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(prev.RoomID)).Msg("removed room association")
	return prev, true
}

func (r *Registry) Unregister(id core.ConnID) (core.Connection, bool) {
	s := r.connShard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	if !ok {
		return core.Connection{}, false
	}
	if c.RoomID != "" {
		r.roomShard(c.RoomID).remove(c.RoomID, id)
	}
	delete(s.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return *c, true
}

// MembersOfRoom returns the connections currently in roomID, oldest first.
func (r *Registry) MembersOfRoom(roomID domain.RoomID) []core.Connection {
	rs := r.roomShard(roomID)
	rs.mu.RLock()
	ids := make([]core.ConnID, 0, len(rs.rooms[roomID]))
	for id := range rs.rooms[roomID] {
		ids = append(ids, id)
	}
	rs.mu.RUnlock()

	out := make([]core.Connection, 0, len(ids))
	for _, id := range ids {
		// the connection may have moved since the index was read
		if c, ok := r.Lookup(id); ok && c.RoomID == roomID {
			out = append(out, c)
		}
	}
	sortConns(out)
	return out
}

func (r *Registry) RoomSize(roomID domain.RoomID) int {
	rs := r.roomShard(roomID)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rooms[roomID])
}

func (r *Registry) ConnectionsOfUser(userID domain.UserID) []core.Connection {
	out := make([]core.Connection, 0, 1)
	for _, s := range r.conns {
		s.mu.RLock()
		for _, c := range s.conns {
			if c.UserID == userID {
				out = append(out, *c)
			}
		}
		s.mu.RUnlock()
	}
	sortConns(out)
	return out
}

func (r *Registry) All() []core.Connection {
	out := make([]core.Connection, 0, r.Count())
	for _, s := range r.conns {
		s.mu.RLock()
		for _, c := range s.conns {
			out = append(out, *c)
		}
		s.mu.RUnlock()
	}
	sortConns(out)
	return out
}

func (r *Registry) Rooms() []core.RoomInfo {
	out := make([]core.RoomInfo, 0)
	for _, s := range r.rooms {
		s.mu.RLock()
		for id, members := range s.rooms {
			out = append(out, core.RoomInfo{RoomID: id, MemberCount: len(members)})
		}
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (r *Registry) Count() int {
	n := 0
	for _, s := range r.conns {
		s.mu.RLock()
		n += len(s.conns)
		s.mu.RUnlock()
	}
	return n
}

func sortConns(cs []core.Connection) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].OpenedAt.Equal(cs[j].OpenedAt) {
			return cs[i].ID < cs[j].ID
		}
		return cs[i].OpenedAt.Before(cs[j].OpenedAt)
	})
}
