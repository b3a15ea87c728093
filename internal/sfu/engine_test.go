package sfu

import (
	"context"
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func opusParams() core.RtpParameters {
	return core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
	}
}

func vp8Params() core.RtpParameters {
	return core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
	}
}

func TestRouterIsCreatedOncePerRoom(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.Router(ctx, "r1")
			if assert.NoError(t, err) {
				ids[i] = r.ID()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, e.RouterCount())

	other, err := e.Router(ctx, "r2")
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], other.ID())

	e.CloseRouter("r1")
	assert.Equal(t, 1, e.RouterCount())
}

func TestRouterCapabilities(t *testing.T) {
	e := newTestEngine(t)
	r, err := e.Router(context.Background(), "r1")
	require.NoError(t, err)

	mimes := make([]string, 0)
	for _, c := range r.Capabilities().Codecs {
		mimes = append(mimes, c.MimeType)
	}
	assert.Contains(t, mimes, "audio/opus")
	assert.Contains(t, mimes, "video/VP8")
}

func TestTransportParamsAndConnect(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, err := e.Router(ctx, "r1")
	require.NoError(t, err)

	tr, err := r.CreateTransport(ctx)
	require.NoError(t, err)
	p := tr.Params()
	assert.Equal(t, tr.ID(), p.ID)
	assert.Len(t, p.IceParameters.UsernameFragment, 16)
	assert.NotEmpty(t, p.DtlsParameters.Fingerprints)
	require.Len(t, p.IceCandidates, 1)
	assert.Equal(t, "127.0.0.1", p.IceCandidates[0].IP)

	err = tr.Connect(ctx, core.DtlsParameters{Role: "client"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	dtls := core.DtlsParameters{Role: "client", Fingerprints: []core.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}}}
	require.NoError(t, tr.Connect(ctx, dtls))
	assert.ErrorIs(t, tr.Connect(ctx, dtls), domain.ErrConflict)
}

func TestProduceValidatesCodecs(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, _ := e.Router(ctx, "r1")
	tr, err := r.CreateTransport(ctx)
	require.NoError(t, err)

	_, err = tr.Produce(ctx, core.KindVideo, core.RtpParameters{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = tr.Produce(ctx, core.KindVideo, opusParams())
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = tr.Produce(ctx, core.KindVideo, core.RtpParameters{
		Codecs: []core.RtpCodecParameters{{MimeType: "video/AV1X", ClockRate: 90000}},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	p, err := tr.Produce(ctx, core.KindVideo, vp8Params())
	require.NoError(t, err)
	assert.Equal(t, core.KindVideo, p.Kind())
}

func TestConsumeStartsPausedAndForwardsAfterResume(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, _ := e.Router(ctx, "r1")
	send, _ := r.CreateTransport(ctx)
	recv, _ := r.CreateTransport(ctx)

	prod, err := send.Produce(ctx, core.KindAudio, opusParams())
	require.NoError(t, err)

	assert.False(t, r.CanConsume(prod.ID(), core.RtpCapabilities{}))
	assert.False(t, r.CanConsume("missing", r.Capabilities()))
	require.True(t, r.CanConsume(prod.ID(), r.Capabilities()))

	cons, err := recv.Consume(ctx, prod.ID(), r.Capabilities())
	require.NoError(t, err)
	assert.True(t, cons.Paused())
	assert.Equal(t, prod.ID(), cons.ProducerID())
	assert.Equal(t, "audio/opus", cons.RtpParameters().Codecs[0].MimeType)

	producer := prod.(*Producer)
	require.NoError(t, producer.WriteRTP(&rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 1}, Payload: []byte{1, 2, 3}}))

	require.NoError(t, cons.Resume(ctx))
	assert.False(t, cons.Paused())
	require.NoError(t, producer.WriteRTP(&rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: 2}, Payload: []byte{4}}))
	assert.Equal(t, uint64(2), producer.Stats().Packets)
	assert.Equal(t, ConsumerStats{Sent: 1, Skipped: 1}, cons.(*Consumer).Stats())

	require.NoError(t, cons.Pause(ctx))
	assert.True(t, cons.Paused())
}

func TestConsumeUnknownProducer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, _ := e.Router(ctx, "r1")
	recv, _ := r.CreateTransport(ctx)

	_, err := recv.Consume(ctx, "nope", r.Capabilities())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProducerCloseClosesConsumers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, _ := e.Router(ctx, "r1")
	send, _ := r.CreateTransport(ctx)
	recv, _ := r.CreateTransport(ctx)

	prod, _ := send.Produce(ctx, core.KindVideo, vp8Params())
	cons, err := recv.Consume(ctx, prod.ID(), r.Capabilities())
	require.NoError(t, err)

	prod.Close()
	assert.True(t, cons.(*Consumer).Closed())
	assert.ErrorIs(t, cons.Resume(ctx), domain.ErrNotFound)
	assert.ErrorIs(t, prod.(*Producer).WriteRTP(&rtp.Packet{}), ErrProducerClosed)

	_, producers := r.(*Router).Counts()
	assert.Equal(t, 0, producers)
}

func TestCloseRouterReleasesEverything(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, _ := e.Router(ctx, "r1")
	send, _ := r.CreateTransport(ctx)
	recv, _ := r.CreateTransport(ctx)
	prod, _ := send.Produce(ctx, core.KindVideo, vp8Params())
	cons, _ := recv.Consume(ctx, prod.ID(), r.Capabilities())

	e.CloseRouter("r1")

	assert.True(t, cons.(*Consumer).Closed())
	transports, producers := r.(*Router).Counts()
	assert.Zero(t, transports)
	assert.Zero(t, producers)

	_, err := r.CreateTransport(ctx)
	assert.ErrorIs(t, err, ErrRouterClosed)
}
