package orch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/neutron420/bloom/internal/app/media"
	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
)

type TransportResult struct {
	core.TransportParams
	Direction core.Direction `json:"direction"`
}

type ConsumerResult struct {
	ID            string             `json:"id"`
	ProducerID    string             `json:"producerId"`
	Kind          core.MediaKind     `json:"kind"`
	RtpParameters core.RtpParameters `json:"rtpParameters"`
	Paused        bool               `json:"paused"`
	ProducerConn  core.ConnID        `json:"producerConnectionId"`
}

func (o *Orchestrator) GetRtpCapabilities(ctx context.Context, id core.ConnID, _ protocol.GetRtpCapabilities) (any, error) {
	router, err := o.roomRouter(ctx, id)
	if err != nil {
		return nil, err
	}
	return router.Capabilities(), nil
}

func (o *Orchestrator) CreateTransport(ctx context.Context, id core.ConnID, m protocol.CreateTransport) (any, error) {
	if _, err := o.roomConn(id); err != nil {
		return nil, err
	}
	res := o.Media.Get(id)
	if err := res.Reserve(m.Direction); err != nil {
		return nil, err
	}
	t, err := o.createTransport(ctx, id)
	if err != nil {
		res.Release(m.Direction)
		return nil, err
	}
	res.Commit(m.Direction, t)
	log.Info().Str("module", "orch.media").Str("conn", string(id)).Str("transport", t.ID()).Str("direction", string(m.Direction)).Msg("transport created")
	return TransportResult{TransportParams: t.Params(), Direction: m.Direction}, nil
}

// roomRouter resolves the router of id's room under the room lock.
func (o *Orchestrator) roomRouter(ctx context.Context, id core.ConnID) (core.MediaRouter, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	unlock := o.RoomLocks.Lock(c.RoomID)
	defer unlock()
	cur, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	if cur.RoomID != c.RoomID {
		return nil, domain.ErrNotInRoom
	}
	return o.Engine.Router(ctx, cur.RoomID)
}

// createTransport retries once when the router it resolved was closed in between.
func (o *Orchestrator) createTransport(ctx context.Context, id core.ConnID) (core.MediaTransport, error) {
	var lastErr error
	for range 2 {
		router, err := o.roomRouter(ctx, id)
		if err != nil {
			return nil, err
		}
		t, err := router.CreateTransport(ctx)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, core.ErrRouterClosed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, id core.ConnID, m protocol.ConnectTransport) (any, error) {
	if _, err := o.roomConn(id); err != nil {
		return nil, err
	}
	t, _, err := o.ownTransport(id, m.TransportID)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(ctx, m.DtlsParameters); err != nil {
		return nil, err
	}
	return map[string]any{"transportId": t.ID(), "connected": true}, nil
}

func (o *Orchestrator) Produce(ctx context.Context, id core.ConnID, m protocol.Produce) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	t, dir, err := o.ownTransport(id, m.TransportID)
	if err != nil {
		return nil, err
	}
	if dir != core.DirectionSend {
		return nil, domain.ErrWrongTransportKind
	}
	p, err := t.Produce(ctx, m.Kind, m.RtpParameters)
	if err != nil {
		return nil, err
	}
	o.Media.Get(id).AddProducer(p)
	log.Info().Str("module", "orch.media").Str("conn", string(id)).Str("producer", p.ID()).Str("kind", string(p.Kind())).Msg("producer created")

	o.Notify.Room(c.RoomID, protocol.Event{Type: protocol.EvNewProducer, Data: producerInfo(c, p)}, id)
	return map[string]any{"id": p.ID()}, nil
}

func (o *Orchestrator) StopProducing(_ context.Context, id core.ConnID, m protocol.StopProducing) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	res, ok := o.Media.Lookup(id)
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	p, ok := res.RemoveProducer(m.ProducerID)
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	o.closeProducer(c, p)
	return map[string]any{"producerId": m.ProducerID}, nil
}

func (o *Orchestrator) GetProducers(_ context.Context, id core.ConnID, _ protocol.GetProducers) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"producers": o.roomProducers(c.RoomID, id)}, nil
}

func (o *Orchestrator) ConsumeProducer(ctx context.Context, id core.ConnID, m protocol.ConsumeProducer) (any, error) {
	c, err := o.roomConn(id)
	if err != nil {
		return nil, err
	}
	res := o.Media.Get(id)
	t, ok := res.TransportOf(core.DirectionRecv)
	if !ok {
		return nil, domain.ErrNoRecvTransport
	}
	owner, ok := o.producerOwner(c.RoomID, m.ProducerID)
	if !ok {
		return nil, domain.ErrProducerNotFound
	}
	router, err := o.roomRouter(ctx, id)
	if err != nil {
		return nil, err
	}
	if !router.CanConsume(m.ProducerID, m.RtpCapabilities) {
		return nil, domain.ErrCannotConsume
	}
	cons, err := t.Consume(ctx, m.ProducerID, m.RtpCapabilities)
	if err != nil {
		return nil, err
	}
	res.AddConsumer(cons)
	log.Info().Str("module", "orch.media").Str("conn", string(id)).Str("consumer", cons.ID()).Str("producer", m.ProducerID).Msg("consumer created")
	return ConsumerResult{
		ID:            cons.ID(),
		ProducerID:    cons.ProducerID(),
		Kind:          cons.Kind(),
		RtpParameters: cons.RtpParameters(),
		Paused:        cons.Paused(),
		ProducerConn:  owner.ID,
	}, nil
}

func (o *Orchestrator) ResumeConsumer(ctx context.Context, id core.ConnID, m protocol.ResumeConsumer) (any, error) {
	cons, err := o.ownConsumer(id, m.ConsumerID)
	if err != nil {
		return nil, err
	}
	if err := cons.Resume(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"consumerId": cons.ID(), "paused": false}, nil
}

func (o *Orchestrator) PauseConsumer(ctx context.Context, id core.ConnID, m protocol.PauseConsumer) (any, error) {
	cons, err := o.ownConsumer(id, m.ConsumerID)
	if err != nil {
		return nil, err
	}
	if err := cons.Pause(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"consumerId": cons.ID(), "paused": true}, nil
}

func (o *Orchestrator) ownTransport(id core.ConnID, transportID string) (core.MediaTransport, core.Direction, error) {
	res, ok := o.Media.Lookup(id)
	if !ok {
		return nil, "", domain.ErrTransportNotFound
	}
	t, dir, ok := res.Transport(transportID)
	if !ok {
		return nil, "", domain.ErrTransportNotFound
	}
	return t, dir, nil
}

func (o *Orchestrator) ownConsumer(id core.ConnID, consumerID string) (core.MediaConsumer, error) {
	if _, err := o.roomConn(id); err != nil {
		return nil, err
	}
	res, ok := o.Media.Lookup(id)
	if !ok {
		return nil, domain.ErrConsumerNotFound
	}
	cons, ok := res.Consumer(consumerID)
	if !ok {
		return nil, domain.ErrConsumerNotFound
	}
	return cons, nil
}

func (o *Orchestrator) producerOwner(roomID domain.RoomID, producerID string) (core.Connection, bool) {
	for _, c := range o.Registry.MembersOfRoom(roomID) {
		res, ok := o.Media.Lookup(c.ID)
		if !ok {
			continue
		}
		if _, ok := res.Producer(producerID); ok {
			return c, true
		}
	}
	return core.Connection{}, false
}

// roomProducers lists the producers of roomID not owned by exclude.
func (o *Orchestrator) roomProducers(roomID domain.RoomID, exclude core.ConnID) []protocol.ProducerInfo {
	out := make([]protocol.ProducerInfo, 0)
	for _, c := range o.Registry.MembersOfRoom(roomID) {
		if c.ID == exclude {
			continue
		}
		res, ok := o.Media.Lookup(c.ID)
		if !ok {
			continue
		}
		for _, p := range res.Producers() {
			out = append(out, producerInfo(c, p))
		}
	}
	return out
}

func producerInfo(c core.Connection, p core.MediaProducer) protocol.ProducerInfo {
	return protocol.ProducerInfo{
		ProducerID:   p.ID(),
		ConnectionID: c.ID,
		UserID:       c.UserID,
		UserName:     c.UserName,
		Kind:         p.Kind(),
	}
}

// closeProducer closes p of owner, drops consumers of it held by other
// connections and tells the room.
func (o *Orchestrator) closeProducer(owner core.Connection, p core.MediaProducer) {
	p.Close()
	for _, c := range o.Registry.MembersOfRoom(owner.RoomID) {
		if c.ID == owner.ID {
			continue
		}
		if res, ok := o.Media.Lookup(c.ID); ok {
			for _, cons := range res.RemoveConsumersOf(p.ID()) {
				cons.Close()
			}
		}
	}
	log.Info().Str("module", "orch.media").Str("conn", string(owner.ID)).Str("producer", p.ID()).Msg("producer closed")
	o.Notify.Room(owner.RoomID, protocol.Event{
		Type: protocol.EvProducerClosed,
		Data: protocol.ProducerClosedData{ProducerID: p.ID(), ConnectionID: owner.ID},
	}, owner.ID)
}

// cleanupMedia closes every consumer, producer and transport of c.
func (o *Orchestrator) cleanupMedia(c core.Connection) {
	res, ok := o.Media.Remove(c.ID)
	if !ok {
		return
	}
	d := res.Drain()
	for _, cons := range d.Consumers {
		cons.Close()
	}
	for _, p := range d.Producers {
		o.closeProducer(c, p)
	}
	for _, t := range d.Transports {
		t.Close()
	}
	log.Info().
		Str("module", "orch.media").
		Str("conn", string(c.ID)).
		Int("consumers", len(d.Consumers)).
		Int("producers", len(d.Producers)).
		Int("transports", len(d.Transports)).
		Msg("media cleaned up")
}

func (o *Orchestrator) closeDrained(d media.Drained) {
	for _, cons := range d.Consumers {
		cons.Close()
	}
	for _, p := range d.Producers {
		p.Close()
	}
	for _, t := range d.Transports {
		t.Close()
	}
}

// MediaCounts reports the resources id still holds.
func (o *Orchestrator) MediaCounts(id core.ConnID) media.Counts {
	res, ok := o.Media.Lookup(id)
	if !ok {
		return media.Counts{}
	}
	return res.Counts()
}
