// Package protocol defines the signaling wire format.
//
// Client frames are {"type", "reqId", "data"}. Decode turns them into one of the
// message types below; each implements Dispatch so that ClientHandler must cover
// every type.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

const (
	TypeJoinRoom           = "join-room"
	TypeLeaveRoom          = "leave-room"
	TypeRequestJoin        = "request-join"
	TypeApproveRequest     = "approve-request"
	TypeDeclineRequest     = "decline-request"
	TypeApproveRequests    = "approve-requests"
	TypeDeclineRequests    = "decline-requests"
	TypeGetPendingRequests = "get-pending-requests"
	TypeSetApproval        = "set-approval"
	TypeGetRtpCapabilities = "get-router-rtp-capabilities"
	TypeCreateTransport    = "create-transport"
	TypeConnectTransport   = "connect-transport"
	TypeProduce            = "produce"
	TypeStopProducing      = "stop-producing"
	TypeGetProducers       = "get-producers"
	TypeConsumeProducer    = "consume-producer"
	TypeResumeConsumer     = "resume-consumer"
	TypePauseConsumer      = "pause-consumer"
	TypeStartScreenShare   = "start-screen-share"
	TypeStopScreenShare    = "stop-screen-share"
	TypeGetScreenSharer    = "get-screen-sharer"
	TypeSendMessage        = "send-message"
	TypeGetChatHistory     = "get-chat-history"
	TypePing               = "ping"
)

// ClientHandler receives decoded client messages for connection conn.
// The returned value becomes the data of the response frame.
type ClientHandler interface {
	JoinRoom(ctx context.Context, conn core.ConnID, m JoinRoom) (any, error)
	LeaveRoom(ctx context.Context, conn core.ConnID, m LeaveRoom) (any, error)
	RequestJoin(ctx context.Context, conn core.ConnID, m RequestJoin) (any, error)
	ApproveRequest(ctx context.Context, conn core.ConnID, m ApproveRequest) (any, error)
	DeclineRequest(ctx context.Context, conn core.ConnID, m DeclineRequest) (any, error)
	ApproveRequests(ctx context.Context, conn core.ConnID, m ApproveRequests) (any, error)
	DeclineRequests(ctx context.Context, conn core.ConnID, m DeclineRequests) (any, error)
	GetPendingRequests(ctx context.Context, conn core.ConnID, m GetPendingRequests) (any, error)
	SetApproval(ctx context.Context, conn core.ConnID, m SetApproval) (any, error)
	GetRtpCapabilities(ctx context.Context, conn core.ConnID, m GetRtpCapabilities) (any, error)
	CreateTransport(ctx context.Context, conn core.ConnID, m CreateTransport) (any, error)
	ConnectTransport(ctx context.Context, conn core.ConnID, m ConnectTransport) (any, error)
	Produce(ctx context.Context, conn core.ConnID, m Produce) (any, error)
	StopProducing(ctx context.Context, conn core.ConnID, m StopProducing) (any, error)
	GetProducers(ctx context.Context, conn core.ConnID, m GetProducers) (any, error)
	ConsumeProducer(ctx context.Context, conn core.ConnID, m ConsumeProducer) (any, error)
	ResumeConsumer(ctx context.Context, conn core.ConnID, m ResumeConsumer) (any, error)
	PauseConsumer(ctx context.Context, conn core.ConnID, m PauseConsumer) (any, error)
	StartScreenShare(ctx context.Context, conn core.ConnID, m StartScreenShare) (any, error)
	StopScreenShare(ctx context.Context, conn core.ConnID, m StopScreenShare) (any, error)
	GetScreenSharer(ctx context.Context, conn core.ConnID, m GetScreenSharer) (any, error)
	SendMessage(ctx context.Context, conn core.ConnID, m SendMessage) (any, error)
	GetChatHistory(ctx context.Context, conn core.ConnID, m GetChatHistory) (any, error)
	Ping(ctx context.Context, conn core.ConnID, m Ping) (any, error)
}

// ClientMessage is the closed set of messages a client may send.
type ClientMessage interface {
	Type() string
	Dispatch(ctx context.Context, h ClientHandler, conn core.ConnID) (any, error)
}

type validator interface {
	validate() error
}

type JoinRoom struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserName string        `json:"userName,omitempty"`
}

func (m JoinRoom) validate() error { return domain.ValidateRoomID(m.RoomID) }

type LeaveRoom struct{}

type RequestJoin struct {
	RoomID domain.RoomID `json:"roomId"`
}

func (m RequestJoin) validate() error { return domain.ValidateRoomID(m.RoomID) }

type ApproveRequest struct {
	RequestID domain.JoinRequestID `json:"requestId"`
}

func (m ApproveRequest) validate() error { return validateRequestID(m.RequestID) }

type DeclineRequest struct {
	RequestID domain.JoinRequestID `json:"requestId"`
}

func (m DeclineRequest) validate() error { return validateRequestID(m.RequestID) }

// RequestRef is one entry of a batch. Entries that are not JSON strings still
// decode, keeping their raw text, and fail Validate on their own.
type RequestRef struct {
	ID  domain.JoinRequestID
	Raw string
}

func Ref(id domain.JoinRequestID) RequestRef { return RequestRef{ID: id} }

func (r *RequestRef) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) == 0 || b[0] != '"' || json.Unmarshal(b, &s) != nil {
		*r = RequestRef{Raw: string(b)}
		return nil
	}
	*r = RequestRef{ID: domain.JoinRequestID(s)}
	return nil
}

func (r RequestRef) MarshalJSON() ([]byte, error) {
	if r.Raw != "" {
		return []byte(r.Raw), nil
	}
	return json.Marshal(string(r.ID))
}

// Key is what a batch result reports for the entry.
func (r RequestRef) Key() domain.JoinRequestID {
	if r.Raw != "" {
		return domain.JoinRequestID(r.Raw)
	}
	return r.ID
}

func (r RequestRef) Validate() error {
	if r.Raw != "" {
		return fmt.Errorf("request id %s is not a string: %w", r.Raw, domain.ErrValidation)
	}
	return validateRequestID(r.ID)
}

// ApproveRequests entries are validated one by one by the handler so a bad id
// fails only its own entry.
type ApproveRequests struct {
	RequestIDs []RequestRef `json:"requestIds"`
}

func (m ApproveRequests) validate() error { return validateBatch(m.RequestIDs) }

type DeclineRequests struct {
	RequestIDs []RequestRef `json:"requestIds"`
}

func (m DeclineRequests) validate() error { return validateBatch(m.RequestIDs) }

// GetPendingRequests lists the room given, or the sender's current room when empty.
type GetPendingRequests struct {
	RoomID domain.RoomID `json:"roomId,omitempty"`
}

func (m GetPendingRequests) validate() error {
	if m.RoomID == "" {
		return nil
	}
	return domain.ValidateRoomID(m.RoomID)
}

type SetApproval struct {
	RequiresApproval bool `json:"requiresApproval"`
}

type GetRtpCapabilities struct{}

type CreateTransport struct {
	Direction core.Direction `json:"direction"`
}

func (m CreateTransport) validate() error {
	if !m.Direction.Valid() {
		return fmt.Errorf("direction %q: %w", m.Direction, domain.ErrValidation)
	}
	return nil
}

type ConnectTransport struct {
	TransportID    string              `json:"transportId"`
	DtlsParameters core.DtlsParameters `json:"dtlsParameters"`
}

func (m ConnectTransport) validate() error { return required("transportId", m.TransportID) }

type Produce struct {
	TransportID   string             `json:"transportId"`
	Kind          core.MediaKind     `json:"kind"`
	RtpParameters core.RtpParameters `json:"rtpParameters"`
	AppData       json.RawMessage    `json:"appData,omitempty"`
}

func (m Produce) validate() error {
	if err := required("transportId", m.TransportID); err != nil {
		return err
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("kind %q: %w", m.Kind, domain.ErrValidation)
	}
	return nil
}

type StopProducing struct {
	ProducerID string `json:"producerId"`
}

func (m StopProducing) validate() error { return required("producerId", m.ProducerID) }

type GetProducers struct{}

type ConsumeProducer struct {
	ProducerID      string               `json:"producerId"`
	RtpCapabilities core.RtpCapabilities `json:"rtpCapabilities"`
}

func (m ConsumeProducer) validate() error { return required("producerId", m.ProducerID) }

type ResumeConsumer struct {
	ConsumerID string `json:"consumerId"`
}

func (m ResumeConsumer) validate() error { return required("consumerId", m.ConsumerID) }

type PauseConsumer struct {
	ConsumerID string `json:"consumerId"`
}

func (m PauseConsumer) validate() error { return required("consumerId", m.ConsumerID) }

type StartScreenShare struct{}

type StopScreenShare struct{}

type GetScreenSharer struct{}

type SendMessage struct {
	Message string `json:"message"`
}

type GetChatHistory struct {
	Limit int `json:"limit,omitempty"`
}

func (m GetChatHistory) validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("limit %d: %w", m.Limit, domain.ErrValidation)
	}
	return nil
}

type Ping struct{}

func (JoinRoom) Type() string           { return TypeJoinRoom }
func (LeaveRoom) Type() string          { return TypeLeaveRoom }
func (RequestJoin) Type() string        { return TypeRequestJoin }
func (ApproveRequest) Type() string     { return TypeApproveRequest }
func (DeclineRequest) Type() string     { return TypeDeclineRequest }
func (ApproveRequests) Type() string    { return TypeApproveRequests }
func (DeclineRequests) Type() string    { return TypeDeclineRequests }
func (GetPendingRequests) Type() string { return TypeGetPendingRequests }
func (SetApproval) Type() string        { return TypeSetApproval }
func (GetRtpCapabilities) Type() string { return TypeGetRtpCapabilities }
func (CreateTransport) Type() string    { return TypeCreateTransport }
func (ConnectTransport) Type() string   { return TypeConnectTransport }
func (Produce) Type() string            { return TypeProduce }
func (StopProducing) Type() string      { return TypeStopProducing }
func (GetProducers) Type() string       { return TypeGetProducers }
func (ConsumeProducer) Type() string    { return TypeConsumeProducer }
func (ResumeConsumer) Type() string     { return TypeResumeConsumer }
func (PauseConsumer) Type() string      { return TypePauseConsumer }
func (StartScreenShare) Type() string   { return TypeStartScreenShare }
func (StopScreenShare) Type() string    { return TypeStopScreenShare }
func (GetScreenSharer) Type() string    { return TypeGetScreenSharer }
func (SendMessage) Type() string        { return TypeSendMessage }
func (GetChatHistory) Type() string     { return TypeGetChatHistory }
func (Ping) Type() string               { return TypePing }

func (m JoinRoom) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.JoinRoom(ctx, c, m)
}

func (m LeaveRoom) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.LeaveRoom(ctx, c, m)
}

func (m RequestJoin) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.RequestJoin(ctx, c, m)
}

func (m ApproveRequest) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.ApproveRequest(ctx, c, m)
}

func (m DeclineRequest) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.DeclineRequest(ctx, c, m)
}

func (m ApproveRequests) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.ApproveRequests(ctx, c, m)
}

func (m DeclineRequests) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.DeclineRequests(ctx, c, m)
}

func (m GetPendingRequests) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.GetPendingRequests(ctx, c, m)
}

func (m SetApproval) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.SetApproval(ctx, c, m)
}

func (m GetRtpCapabilities) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.GetRtpCapabilities(ctx, c, m)
}

func (m CreateTransport) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.CreateTransport(ctx, c, m)
}

func (m ConnectTransport) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.ConnectTransport(ctx, c, m)
}

func (m Produce) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.Produce(ctx, c, m)
}

func (m StopProducing) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.StopProducing(ctx, c, m)
}

func (m GetProducers) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.GetProducers(ctx, c, m)
}

func (m ConsumeProducer) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.ConsumeProducer(ctx, c, m)
}

func (m ResumeConsumer) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.ResumeConsumer(ctx, c, m)
}

func (m PauseConsumer) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.PauseConsumer(ctx, c, m)
}

func (m StartScreenShare) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.StartScreenShare(ctx, c, m)
}

func (m StopScreenShare) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.StopScreenShare(ctx, c, m)
}

func (m GetScreenSharer) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.GetScreenSharer(ctx, c, m)
}

func (m SendMessage) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.SendMessage(ctx, c, m)
}

func (m GetChatHistory) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.GetChatHistory(ctx, c, m)
}

func (m Ping) Dispatch(ctx context.Context, h ClientHandler, c core.ConnID) (any, error) {
	return h.Ping(ctx, c, m)
}

func required(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required: %w", field, domain.ErrValidation)
	}
	return nil
}

const (
	maxRequestIDLen = 64
	maxBatch        = 100
)

func validateRequestID(id domain.JoinRequestID) error {
	if id == "" || len(id) > maxRequestIDLen {
		return fmt.Errorf("request id %q: %w", id, domain.ErrValidation)
	}
	return nil
}

func validateBatch(ids []RequestRef) error {
	if len(ids) == 0 || len(ids) > maxBatch {
		return fmt.Errorf("request ids: expected 1..%d entries: %w", maxBatch, domain.ErrValidation)
	}
	return nil
}
