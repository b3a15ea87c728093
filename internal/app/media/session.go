// Package media keeps the media resources each connection owns.
package media

import (
	"sort"
	"sync"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

type slot struct {
	reserved  bool
	transport core.MediaTransport
}

// Resources of one connection. Transports occupy one slot per direction.
type Resources struct {
	mu        sync.Mutex
	slots     map[core.Direction]*slot
	producers map[string]core.MediaProducer
	consumers map[string]core.MediaConsumer
}

func newResources() *Resources {
	return &Resources{
		slots: map[core.Direction]*slot{
			core.DirectionSend: {},
			core.DirectionRecv: {},
		},
		producers: make(map[string]core.MediaProducer),
		consumers: make(map[string]core.MediaConsumer),
	}
}

// Reserve claims the slot of dir before the transport exists.
func (r *Resources) Reserve(dir core.Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[dir]
	if !ok {
		return domain.ErrValidation
	}
	if s.reserved {
		return domain.ErrTransportExists
	}
	s.reserved = true
	return nil
}

// Release frees a reservation whose transport could not be created.
func (r *Resources) Release(dir core.Direction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[dir]; ok && s.transport == nil {
		s.reserved = false
	}
}

func (r *Resources) Commit(dir core.Direction, t core.MediaTransport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slots[dir]
	s.reserved = true
	s.transport = t
}

// Transport finds one of this connection's transports by id.
func (r *Resources) Transport(id string) (core.MediaTransport, core.Direction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for dir, s := range r.slots {
		if s.transport != nil && s.transport.ID() == id {
			return s.transport, dir, true
		}
	}
	return nil, "", false
}

func (r *Resources) TransportOf(dir core.Direction) (core.MediaTransport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[dir]
	if !ok || s.transport == nil {
		return nil, false
	}
	return s.transport, true
}

func (r *Resources) AddProducer(p core.MediaProducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.ID()] = p
}

func (r *Resources) RemoveProducer(id string) (core.MediaProducer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	if ok {
		delete(r.producers, id)
	}
	return p, ok
}

func (r *Resources) Producer(id string) (core.MediaProducer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Resources) Producers() []core.MediaProducer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.MediaProducer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (r *Resources) AddConsumer(c core.MediaConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers[c.ID()] = c
}

func (r *Resources) Consumer(id string) (core.MediaConsumer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[id]
	return c, ok
}

// RemoveConsumersOf drops every consumer bound to producerID and returns them.
func (r *Resources) RemoveConsumersOf(producerID string) []core.MediaConsumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.MediaConsumer
	for id, c := range r.consumers {
		if c.ProducerID() == producerID {
			delete(r.consumers, id)
			out = append(out, c)
		}
	}
	return out
}

type Counts struct {
	Transports int `json:"transports"`
	Producers  int `json:"producers"`
	Consumers  int `json:"consumers"`
}

func (r *Resources) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := Counts{Producers: len(r.producers), Consumers: len(r.consumers)}
	for _, s := range r.slots {
		if s.transport != nil {
			n.Transports++
		}
	}
	return n
}

// Drained holds everything taken out of a Resources by Drain.
type Drained struct {
	Consumers  []core.MediaConsumer
	Producers  []core.MediaProducer
	Transports []core.MediaTransport
}

// Drain empties r and hands back what it held so the caller can close it.
func (r *Resources) Drain() Drained {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d Drained
	for id, c := range r.consumers {
		d.Consumers = append(d.Consumers, c)
		delete(r.consumers, id)
	}
	for id, p := range r.producers {
		d.Producers = append(d.Producers, p)
		delete(r.producers, id)
	}
	for _, dir := range []core.Direction{core.DirectionSend, core.DirectionRecv} {
		s := r.slots[dir]
		if s.transport != nil {
			d.Transports = append(d.Transports, s.transport)
		}
		s.transport, s.reserved = nil, false
	}
	return d
}

// Sessions maps connections to their Resources.
type Sessions struct {
	mu     sync.RWMutex
	byConn map[core.ConnID]*Resources
}

func NewSessions() *Sessions {
	return &Sessions{byConn: make(map[core.ConnID]*Resources)}
}

// Get returns the resources of id, creating an empty set on first use.
func (s *Sessions) Get(id core.ConnID) *Resources {
	s.mu.RLock()
	r, ok := s.byConn[id]
	s.mu.RUnlock()
	if ok {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.byConn[id]; ok {
		return r
	}
	r = newResources()
	s.byConn[id] = r
	return r
}

func (s *Sessions) Lookup(id core.ConnID) (*Resources, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byConn[id]
	return r, ok
}

// Remove detaches the resources of id. The caller drains and closes them.
func (s *Sessions) Remove(id core.ConnID) (*Resources, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byConn[id]
	if ok {
		delete(s.byConn, id)
	}
	return r, ok
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byConn)
}
