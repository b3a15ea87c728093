package sfu

import (
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/neutron420/bloom/internal/core"
)

type codec struct {
	kind   webrtc.RTPCodecType
	params webrtc.RTPCodecParameters
}

var videoFeedback = []webrtc.RTCPFeedback{
	{Type: webrtc.TypeRTCPFBGoogREMB},
	{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
	{Type: webrtc.TypeRTCPFBNACK},
	{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
	{Type: webrtc.TypeRTCPFBTransportCC},
}

func defaultCodecs() []codec {
	return []codec{
		{
			kind: webrtc.RTPCodecTypeAudio,
			params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:    webrtc.MimeTypeOpus,
					ClockRate:   48000,
					Channels:    2,
					SDPFmtpLine: "minptime=10;useinbandfec=1",
				},
				PayloadType: 111,
			},
		},
		{
			kind: webrtc.RTPCodecTypeVideo,
			params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:     webrtc.MimeTypeVP8,
					ClockRate:    90000,
					RTCPFeedback: videoFeedback,
				},
				PayloadType: 96,
			},
		},
		{
			kind: webrtc.RTPCodecTypeVideo,
			params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:     webrtc.MimeTypeVP9,
					ClockRate:    90000,
					SDPFmtpLine:  "profile-id=0",
					RTCPFeedback: videoFeedback,
				},
				PayloadType: 98,
			},
		},
		{
			kind: webrtc.RTPCodecTypeVideo,
			params: webrtc.RTPCodecParameters{
				RTPCodecCapability: webrtc.RTPCodecCapability{
					MimeType:     webrtc.MimeTypeH264,
					ClockRate:    90000,
					SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
					RTCPFeedback: videoFeedback,
				},
				PayloadType: 102,
			},
		},
	}
}

func kindOf(t webrtc.RTPCodecType) core.MediaKind {
	if t == webrtc.RTPCodecTypeAudio {
		return core.KindAudio
	}
	return core.KindVideo
}

func kindOfMime(mime string) core.MediaKind {
	if strings.HasPrefix(strings.ToLower(mime), "audio/") {
		return core.KindAudio
	}
	return core.KindVideo
}

func toFeedback(fb []webrtc.RTCPFeedback) []core.RtcpFeedback {
	if len(fb) == 0 {
		return nil
	}
	out := make([]core.RtcpFeedback, 0, len(fb))
	for _, f := range fb {
		out = append(out, core.RtcpFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return out
}

func capabilitiesOf(codecs []codec) core.RtpCapabilities {
	caps := core.RtpCapabilities{Codecs: make([]core.RtpCodecCapability, 0, len(codecs))}
	for _, c := range codecs {
		caps.Codecs = append(caps.Codecs, core.RtpCodecCapability{
			Kind:                 kindOf(c.kind),
			MimeType:             c.params.MimeType,
			ClockRate:            c.params.ClockRate,
			Channels:             c.params.Channels,
			PreferredPayloadType: uint8(c.params.PayloadType),
			SDPFmtpLine:          c.params.SDPFmtpLine,
			RtcpFeedback:         toFeedback(c.params.RTCPFeedback),
		})
	}
	return caps
}

// supports reports whether the capability set contains a codec matching p.
func supports(caps core.RtpCapabilities, p core.RtpCodecParameters) bool {
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, p.MimeType) && c.ClockRate == p.ClockRate {
			return true
		}
	}
	return false
}

func routerSupports(codecs []codec, p core.RtpCodecParameters) bool {
	for _, c := range codecs {
		if strings.EqualFold(c.params.MimeType, p.MimeType) && c.params.ClockRate == p.ClockRate {
			return true
		}
	}
	return false
}

func localCapability(p core.RtpCodecParameters) webrtc.RTPCodecCapability {
	fb := make([]webrtc.RTCPFeedback, 0, len(p.RtcpFeedback))
	for _, f := range p.RtcpFeedback {
		fb = append(fb, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return webrtc.RTPCodecCapability{
		MimeType:     p.MimeType,
		ClockRate:    p.ClockRate,
		Channels:     p.Channels,
		SDPFmtpLine:  p.SDPFmtpLine,
		RTCPFeedback: fb,
	}
}
