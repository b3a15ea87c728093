package sfu

import (
	"context"
	"sync"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

// Router owns every transport and producer of one room.
type Router struct {
	id     string
	roomID domain.RoomID
	engine *Engine

	mu         sync.RWMutex
	transports map[string]*Transport
	producers  map[string]*Producer
	closed     bool
}

var _ core.MediaRouter = (*Router)(nil)

func newRouter(e *Engine, id string, roomID domain.RoomID) *Router {
	return &Router{
		id:         id,
		roomID:     roomID,
		engine:     e,
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
	}
}

func (r *Router) ID() string { return r.id }

func (r *Router) Capabilities() core.RtpCapabilities { return r.engine.caps }

func (r *Router) CreateTransport(ctx context.Context) (core.MediaTransport, error) {
	id := r.engine.ids.object()
	ice, gatherer, err := r.engine.iceFor(ctx)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		id:     id,
		router: r,
		params: core.TransportParams{
			ID:             id,
			IceParameters:  ice.params,
			IceCandidates:  ice.candidates,
			DtlsParameters: r.engine.dtls,
		},
		gatherer:  gatherer,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, ErrRouterClosed
	}
	r.transports[id] = t
	r.mu.Unlock()

	r.engine.logger.Debug().Str("router", r.id).Str("transport", id).Msg("transport created")
	return t, nil
}

// CanConsume reports whether a consumer with caps can receive producerID.
func (r *Router) CanConsume(producerID string, caps core.RtpCapabilities) bool {
	p, ok := r.producer(producerID)
	if !ok || p.isClosed() {
		return false
	}
	for _, c := range p.params.Codecs {
		if supports(caps, c) {
			return true
		}
	}
	return false
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) addProducer(p *Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRouterClosed
	}
	r.producers[p.id] = p
	return nil
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}

// Counts reports live transports and producers.
func (r *Router) Counts() (transports, producers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports), len(r.producers)
}

func (r *Router) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
}
