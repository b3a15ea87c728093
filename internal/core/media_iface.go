package core

import (
	"context"
	"errors"

	"github.com/neutron420/bloom/internal/domain"
)

// ErrRouterClosed is returned by a router that was closed under its caller.
var ErrRouterClosed = errors.New("media: router closed")

// MediaEngine is the media-routing engine consumed by the orchestrator.
type MediaEngine interface {
	// Router returns the router of roomID, creating it on first use.
	Router(ctx context.Context, roomID domain.RoomID) (MediaRouter, error)
	// CloseRouter releases the router of roomID and everything created on it.
	CloseRouter(roomID domain.RoomID)
}

type MediaRouter interface {
	ID() string
	Capabilities() RtpCapabilities
	CreateTransport(ctx context.Context) (MediaTransport, error)
	CanConsume(producerID string, caps RtpCapabilities) bool
}

type MediaTransport interface {
	ID() string
	Params() TransportParams
	Connect(ctx context.Context, dtls DtlsParameters) error
	Produce(ctx context.Context, kind MediaKind, params RtpParameters) (MediaProducer, error)
	Consume(ctx context.Context, producerID string, caps RtpCapabilities) (MediaConsumer, error)
	Close()
}

type MediaProducer interface {
	ID() string
	Kind() MediaKind
	Close()
}

// MediaConsumer is created paused and forwards nothing until Resume.
type MediaConsumer interface {
	ID() string
	ProducerID() string
	Kind() MediaKind
	RtpParameters() RtpParameters
	Paused() bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close()
}
