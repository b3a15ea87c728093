package sfu

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/neutron420/bloom/internal/core"
)

const hostCandidatePriority = 2113937151

type iceInfo struct {
	params     core.IceParameters
	candidates []core.IceCandidate
}

// portAllocator hands out announced ports round-robin.
type portAllocator struct {
	mu       sync.Mutex
	min, max uint16
	next     uint16
}

func newPortAllocator(min, max uint16) *portAllocator {
	return &portAllocator{min: min, max: max, next: min}
}

func (p *portAllocator) take() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	port := p.next
	if p.next >= p.max {
		p.next = p.min
	} else {
		p.next++
	}
	return port
}

func (e *Engine) iceFor(ctx context.Context) (iceInfo, *webrtc.ICEGatherer, error) {
	if !e.opts.GatherCandidates {
		return iceInfo{
			params: core.IceParameters{
				UsernameFragment: e.ids.ufrag(),
				Password:         e.ids.pwd(),
				IceLite:          true,
			},
			candidates: []core.IceCandidate{{
				Foundation: "udpcandidate",
				Priority:   hostCandidatePriority,
				IP:         e.opts.AnnouncedIP,
				Protocol:   "udp",
				Port:       e.ports.take(),
				Type:       webrtc.ICECandidateTypeHost.String(),
			}},
		}, nil, nil
	}
	return e.gather(ctx)
}

func (e *Engine) gather(ctx context.Context) (iceInfo, *webrtc.ICEGatherer, error) {
	g, err := e.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return iceInfo{}, nil, fmt.Errorf("sfu: ice gatherer: %w", err)
	}
	done := make(chan struct{})
	var once sync.Once
	g.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := g.Gather(); err != nil {
		_ = g.Close()
		return iceInfo{}, nil, fmt.Errorf("sfu: gather: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.GatherTimeout)
	defer cancel()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn().Msg("ice gathering timed out, using partial candidates")
	}

	params, err := g.GetLocalParameters()
	if err != nil {
		_ = g.Close()
		return iceInfo{}, nil, fmt.Errorf("sfu: ice parameters: %w", err)
	}
	cands, err := g.GetLocalCandidates()
	if err != nil {
		_ = g.Close()
		return iceInfo{}, nil, fmt.Errorf("sfu: ice candidates: %w", err)
	}

	info := iceInfo{params: core.IceParameters{
		UsernameFragment: params.UsernameFragment,
		Password:         params.Password,
		IceLite:          params.ICELite,
	}}
	for _, c := range cands {
		info.candidates = append(info.candidates, core.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return info, g, nil
}
