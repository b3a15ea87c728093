// Package sfu is the in-process media-routing engine: one router per room,
// transports, producers and consumers with RTP fan-out from each producer
// to the out-tracks of its consumers. ICE/DTLS/SRTP termination is not done here.
package sfu

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

var (
	ErrEngineClosed   = errors.New("sfu: engine closed")
	ErrRouterClosed   = core.ErrRouterClosed
	ErrProducerClosed = errors.New("sfu: producer closed")
)

type Options struct {
	// AnnouncedIP is advertised in static host candidates.
	AnnouncedIP string
	PortMin     uint16
	PortMax     uint16
	// GatherCandidates gathers real ICE candidates through pion instead of
	// announcing a static candidate.
	GatherCandidates bool
	GatherTimeout    time.Duration
	Logger           *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		AnnouncedIP:   "127.0.0.1",
		PortMin:       40000,
		PortMax:       49999,
		GatherTimeout: 3 * time.Second,
	}
}

// Engine implements core.MediaEngine.
type Engine struct {
	opts   Options
	api    *webrtc.API
	codecs []codec
	caps   core.RtpCapabilities
	ids    *idGenerator
	dtls   core.DtlsParameters
	logger zerolog.Logger
	ports  *portAllocator

	group singleflight.Group

	mu      sync.RWMutex
	routers map[domain.RoomID]*Router
	closed  bool
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine(opts Options) (*Engine, error) {
	logger := log.With().Str("module", "sfu").Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("module", "sfu").Logger()
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = DefaultOptions().GatherTimeout
	}
	if opts.PortMin == 0 || opts.PortMax < opts.PortMin {
		opts.PortMin, opts.PortMax = DefaultOptions().PortMin, DefaultOptions().PortMax
	}

	codecs := defaultCodecs()
	m := &webrtc.MediaEngine{}
	for _, c := range codecs {
		if err := m.RegisterCodec(c.params, c.kind); err != nil {
			return nil, fmt.Errorf("sfu: register codec %s: %w", c.params.MimeType, err)
		}
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("sfu: register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: newLoggerFactory(logger)}
	if err := se.SetEphemeralUDPPortRange(opts.PortMin, opts.PortMax); err != nil {
		return nil, fmt.Errorf("sfu: port range: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	dtls, err := serverDTLSParameters()
	if err != nil {
		return nil, err
	}
	ids, err := newIDGenerator()
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:    opts,
		api:     api,
		codecs:  codecs,
		caps:    capabilitiesOf(codecs),
		ids:     ids,
		dtls:    dtls,
		logger:  logger,
		ports:   newPortAllocator(opts.PortMin, opts.PortMax),
		routers: make(map[domain.RoomID]*Router),
	}, nil
}

func serverDTLSParameters() (core.DtlsParameters, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return core.DtlsParameters{}, fmt.Errorf("sfu: dtls key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return core.DtlsParameters{}, fmt.Errorf("sfu: dtls certificate: %w", err)
	}
	fps, err := cert.GetFingerprints()
	if err != nil {
		return core.DtlsParameters{}, fmt.Errorf("sfu: dtls fingerprints: %w", err)
	}
	out := core.DtlsParameters{Role: webrtc.DTLSRoleAuto.String()}
	for _, fp := range fps {
		out.Fingerprints = append(out.Fingerprints, core.DtlsFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out, nil
}

// Router returns the router of roomID. Concurrent first callers share one creation.
func (e *Engine) Router(ctx context.Context, roomID domain.RoomID) (core.MediaRouter, error) {
	if r, ok := e.lookup(roomID); ok {
		return r, nil
	}
	v, err, _ := e.group.Do(string(roomID), func() (any, error) {
		if r, ok := e.lookup(roomID); ok {
			return r, nil
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return nil, ErrEngineClosed
		}
		r := newRouter(e, e.ids.object(), roomID)
		e.routers[roomID] = r
		e.logger.Info().Str("room", string(roomID)).Str("router", r.id).Msg("router created")
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Router), nil
}

func (e *Engine) lookup(roomID domain.RoomID) (*Router, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.routers[roomID]
	return r, ok
}

func (e *Engine) CloseRouter(roomID domain.RoomID) {
	e.mu.Lock()
	r, ok := e.routers[roomID]
	delete(e.routers, roomID)
	e.mu.Unlock()
	if !ok {
		return
	}
	r.close()
	e.logger.Info().Str("room", string(roomID)).Str("router", r.id).Msg("router closed")
}

// RouterCount is the number of live routers.
func (e *Engine) RouterCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.routers)
}

func (e *Engine) Close() {
	e.mu.Lock()
	routers := e.routers
	e.routers = make(map[domain.RoomID]*Router)
	e.closed = true
	e.mu.Unlock()
	for _, r := range routers {
		r.close()
	}
}
