package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/neutron420/bloom/internal/domain"
)

type envelope struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type decodeFunc func(json.RawMessage) (ClientMessage, error)

func decodeAs[T ClientMessage](data json.RawMessage) (ClientMessage, error) {
	var m T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

var decoders = map[string]decodeFunc{
	TypeJoinRoom:           decodeAs[JoinRoom],
	TypeLeaveRoom:          decodeAs[LeaveRoom],
	TypeRequestJoin:        decodeAs[RequestJoin],
	TypeApproveRequest:     decodeAs[ApproveRequest],
	TypeDeclineRequest:     decodeAs[DeclineRequest],
	TypeApproveRequests:    decodeAs[ApproveRequests],
	TypeDeclineRequests:    decodeAs[DeclineRequests],
	TypeGetPendingRequests: decodeAs[GetPendingRequests],
	TypeSetApproval:        decodeAs[SetApproval],
	TypeGetRtpCapabilities: decodeAs[GetRtpCapabilities],
	TypeCreateTransport:    decodeAs[CreateTransport],
	TypeConnectTransport:   decodeAs[ConnectTransport],
	TypeProduce:            decodeAs[Produce],
	TypeStopProducing:      decodeAs[StopProducing],
	TypeGetProducers:       decodeAs[GetProducers],
	TypeConsumeProducer:    decodeAs[ConsumeProducer],
	TypeResumeConsumer:     decodeAs[ResumeConsumer],
	TypePauseConsumer:      decodeAs[PauseConsumer],
	TypeStartScreenShare:   decodeAs[StartScreenShare],
	TypeStopScreenShare:    decodeAs[StopScreenShare],
	TypeGetScreenSharer:    decodeAs[GetScreenSharer],
	TypeSendMessage:        decodeAs[SendMessage],
	TypeGetChatHistory:     decodeAs[GetChatHistory],
	TypePing:               decodeAs[Ping],
}

// Decode parses one client frame. The request id is returned even when the
// payload is invalid so the error can be correlated.
func Decode(frame []byte) (reqID string, msg ClientMessage, err error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("malformed frame: %w", domain.ErrValidation)
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return env.ReqID, nil, fmt.Errorf("unknown message type %q: %w", env.Type, domain.ErrValidation)
	}
	msg, err = decode(env.Data)
	if err != nil {
		return env.ReqID, nil, fmt.Errorf("malformed %s payload: %w", env.Type, domain.ErrValidation)
	}
	if v, ok := msg.(validator); ok {
		if err := v.validate(); err != nil {
			return env.ReqID, nil, err
		}
	}
	return env.ReqID, msg, nil
}
