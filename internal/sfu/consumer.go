package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/atomic"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

type consumerState int32

const (
	consumerPaused consumerState = iota
	consumerForwarding
	consumerClosed
)

// Consumer receives its producer's packets on a local out-track.
// It starts paused; packets arriving while paused are skipped.
type Consumer struct {
	id        string
	producer  *Producer
	kind      core.MediaKind
	rtp       core.RtpParameters
	track     *webrtc.TrackLocalStaticRTP
	transport *Transport

	state   atomic.Int32
	sent    atomic.Uint64
	skipped atomic.Uint64

	closeOnce sync.Once
}

var _ core.MediaConsumer = (*Consumer)(nil)

type ConsumerStats struct {
	Sent    uint64
	Skipped uint64
}

func (c *Consumer) ID() string { return c.id }

func (c *Consumer) ProducerID() string { return c.producer.id }

func (c *Consumer) Kind() core.MediaKind { return c.kind }

func (c *Consumer) RtpParameters() core.RtpParameters { return c.rtp }

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{Sent: c.sent.Load(), Skipped: c.skipped.Load()}
}

func (c *Consumer) load() consumerState { return consumerState(c.state.Load()) }

func (c *Consumer) Paused() bool { return c.load() == consumerPaused }

func (c *Consumer) Closed() bool { return c.load() == consumerClosed }

func (c *Consumer) Pause(context.Context) error {
	return c.transition(consumerForwarding, consumerPaused)
}

func (c *Consumer) Resume(context.Context) error {
	return c.transition(consumerPaused, consumerForwarding)
}

// transition moves from -> to. Being in to already is not an error.
func (c *Consumer) transition(from, to consumerState) error {
	if c.state.CompareAndSwap(int32(from), int32(to)) || c.load() == to {
		return nil
	}
	return fmt.Errorf("sfu: consumer closed: %w", domain.ErrNotFound)
}

// write forwards pkt when the consumer is forwarding. It reports false once
// the consumer is closed so the producer can drop it.
func (c *Consumer) write(pkt *rtp.Packet) (bool, error) {
	switch c.load() {
	case consumerClosed:
		return false, nil
	case consumerPaused:
		c.skipped.Inc()
		return true, nil
	}
	if err := c.track.WriteRTP(pkt); err != nil {
		c.state.Store(int32(consumerClosed))
		return false, err
	}
	c.sent.Inc()
	return true, nil
}

func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(consumerClosed))
		c.producer.removeConsumer(c.id)
		c.transport.removeConsumer(c.id)
	})
}
