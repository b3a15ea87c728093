package sfu

import (
	"maps"
	"sync"

	"github.com/pion/rtp"
	"go.uber.org/atomic"

	"github.com/neutron420/bloom/internal/core"
)

// Producer fans RTP packets out to the out-tracks of its consumers.
type Producer struct {
	id        string
	kind      core.MediaKind
	params    core.RtpParameters
	transport *Transport

	mu        sync.RWMutex
	consumers map[string]*Consumer

	closed  atomic.Bool
	packets atomic.Uint64
	bytes   atomic.Uint64
}

var _ core.MediaProducer = (*Producer)(nil)

type ProducerStats struct {
	Packets uint64
	Bytes   uint64
}

func newProducer(id string, kind core.MediaKind, params core.RtpParameters, t *Transport) *Producer {
	return &Producer{
		id:        id,
		kind:      kind,
		params:    params,
		transport: t,
		consumers: make(map[string]*Consumer),
	}
}

func (p *Producer) ID() string { return p.id }

func (p *Producer) Kind() core.MediaKind { return p.kind }

func (p *Producer) isClosed() bool { return p.closed.Load() }

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{Packets: p.packets.Load(), Bytes: p.bytes.Load()}
}

func (p *Producer) addConsumer(c *Consumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed() {
		return ErrProducerClosed
	}
	p.consumers[c.id] = c
	return nil
}

func (p *Producer) removeConsumer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

// WriteRTP is the ingress of the producer's media, fed by the media plane
// that terminates the transport.
func (p *Producer) WriteRTP(pkt *rtp.Packet) error {
	if p.isClosed() {
		return ErrProducerClosed
	}
	p.packets.Inc()
	p.bytes.Add(uint64(pkt.MarshalSize()))
	p.forward(pkt)
	return nil
}

func (p *Producer) forward(pkt *rtp.Packet) {
	p.mu.RLock()
	snapshot := make(map[string]*Consumer, len(p.consumers))
	maps.Copy(snapshot, p.consumers)
	p.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, c := range snapshot {
		keep, err := c.write(pkt)
		if err != nil {
			p.transport.router.engine.logger.Error().
				Err(err).
				Str("producer", p.id).
				Str("consumer", id).
				Msg("write RTP error, dropping consumer")
		}
		if !keep {
			dirty = append(dirty, id)
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		p.mu.Lock()
		for _, id := range dirty {
			delete(p.consumers, id)
		}
		p.mu.Unlock()
	}
}

// Close closes the producer and every consumer bound to it.
func (p *Producer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = make(map[string]*Consumer)
	p.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	p.transport.removeProducer(p.id)
	p.transport.router.removeProducer(p.id)
}
