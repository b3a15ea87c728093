package sfu

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

type Transport struct {
	id       string
	router   *Router
	params   core.TransportParams
	gatherer *webrtc.ICEGatherer

	mu        sync.Mutex
	remote    *core.DtlsParameters
	producers map[string]*Producer
	consumers map[string]*Consumer
	closed    bool
}

var _ core.MediaTransport = (*Transport)(nil)

func (t *Transport) ID() string { return t.id }

func (t *Transport) Params() core.TransportParams { return t.params }

func (t *Transport) Connect(_ context.Context, dtls core.DtlsParameters) error {
	if len(dtls.Fingerprints) == 0 {
		return fmt.Errorf("sfu: dtls fingerprints missing: %w", domain.ErrValidation)
	}
	switch dtls.Role {
	case "", webrtc.DTLSRoleAuto.String(), webrtc.DTLSRoleClient.String(), webrtc.DTLSRoleServer.String():
	default:
		return fmt.Errorf("sfu: dtls role %q: %w", dtls.Role, domain.ErrValidation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("sfu: transport closed: %w", domain.ErrNotFound)
	}
	if t.remote != nil {
		return fmt.Errorf("sfu: transport already connected: %w", domain.ErrConflict)
	}
	remote := dtls
	t.remote = &remote
	return nil
}

func (t *Transport) Produce(_ context.Context, kind core.MediaKind, params core.RtpParameters) (core.MediaProducer, error) {
	if len(params.Codecs) == 0 {
		return nil, fmt.Errorf("sfu: rtp parameters without codecs: %w", domain.ErrValidation)
	}
	for _, c := range params.Codecs {
		if kindOfMime(c.MimeType) != kind || !strings.Contains(c.MimeType, "/") {
			return nil, fmt.Errorf("sfu: codec %s does not match kind %s: %w", c.MimeType, kind, domain.ErrValidation)
		}
		if !routerSupports(t.router.engine.codecs, c) {
			return nil, fmt.Errorf("sfu: unsupported codec %s: %w", c.MimeType, domain.ErrValidation)
		}
	}

	p := newProducer(t.router.engine.ids.object(), kind, params, t)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("sfu: transport closed: %w", domain.ErrNotFound)
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	if err := t.router.addProducer(p); err != nil {
		p.Close()
		return nil, err
	}
	t.router.engine.logger.Debug().Str("transport", t.id).Str("producer", p.id).Str("kind", string(kind)).Msg("producer created")
	return p, nil
}

func (t *Transport) Consume(_ context.Context, producerID string, caps core.RtpCapabilities) (core.MediaConsumer, error) {
	p, ok := t.router.producer(producerID)
	if !ok || p.isClosed() {
		return nil, domain.ErrProducerNotFound
	}
	var codec *core.RtpCodecParameters
	for i := range p.params.Codecs {
		if supports(caps, p.params.Codecs[i]) {
			codec = &p.params.Codecs[i]
			break
		}
	}
	if codec == nil {
		return nil, domain.ErrCannotConsume
	}

	id := t.router.engine.ids.object()
	track, err := webrtc.NewTrackLocalStaticRTP(localCapability(*codec), id, producerID)
	if err != nil {
		return nil, fmt.Errorf("sfu: consumer track: %w", err)
	}
	c := &Consumer{
		id:       id,
		producer: p,
		kind:     p.kind,
		rtp: core.RtpParameters{
			Mid:       id,
			Codecs:    []core.RtpCodecParameters{*codec},
			Encodings: []core.RtpEncoding{{SSRC: rand.Uint32()}},
		},
		track:     track,
		transport: t,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("sfu: transport closed: %w", domain.ErrNotFound)
	}
	t.consumers[id] = c
	t.mu.Unlock()

	if err := p.addConsumer(c); err != nil {
		t.removeConsumer(id)
		return nil, err
	}
	t.router.engine.logger.Debug().Str("transport", t.id).Str("consumer", id).Str("producer", producerID).Msg("consumer created")
	return c, nil
}

func (t *Transport) removeProducer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

func (t *Transport) removeConsumer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

// Close closes every producer and consumer created on the transport.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	if t.gatherer != nil {
		if err := t.gatherer.Close(); err != nil {
			t.router.engine.logger.Error().Err(err).Str("transport", t.id).Msg("close gatherer")
		}
	}
	t.router.removeTransport(t.id)
	t.router.engine.logger.Debug().Str("transport", t.id).Msg("transport closed")
}
