package protocol

import (
	"encoding/json"
	"time"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

const (
	EvResponse            = "response"
	EvError               = "error"
	EvParticipants        = "participants"
	EvUserJoined          = "user-joined"
	EvUserLeft            = "user-left"
	EvNewProducer         = "new-producer"
	EvProducerClosed      = "producer-closed"
	EvNewJoinRequest      = "new-join-request"
	EvJoinRequestResolved = "join-request-resolved"
	EvRequestApproved     = "request-approved"
	EvRequestDeclined     = "request-declined"
	EvApprovalChanged     = "approval-changed"
	EvScreenShareStarted  = "screen-share-started"
	EvScreenShareStopped  = "screen-share-stopped"
	EvNewMessage          = "new-message"
	EvMeetingEnded        = "meeting-ended"
	EvAccountSuspended    = "account-suspended"
	EvAnnouncement        = "announcement"
	EvNotification        = "notification"
	EvPong                = "pong"
)

// Event is one server frame. ReqID is set on replies only.
type Event struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func Encode(ev Event) (core.Frame, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

func Response(reqID string, data any) Event {
	return Event{Type: EvResponse, ReqID: reqID, Data: data}
}

type ErrorData struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Error builds the error frame for err. Internal failures are not described to the client.
func Error(reqID string, err error) Event {
	code := domain.Code(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		msg = "internal error"
	}
	return Event{Type: EvError, ReqID: reqID, Data: ErrorData{Code: code, Message: msg, Retryable: domain.Retryable(err)}}
}

type ParticipantsData struct {
	RoomID       domain.RoomID    `json:"roomId"`
	Participants []core.MemberDTO `json:"participants"`
}

type PresenceData struct {
	RoomID domain.RoomID  `json:"roomId"`
	Member core.MemberDTO `json:"member"`
}

type ProducerInfo struct {
	ProducerID   string         `json:"producerId"`
	ConnectionID core.ConnID    `json:"connectionId"`
	UserID       domain.UserID  `json:"userId"`
	UserName     string         `json:"userName"`
	Kind         core.MediaKind `json:"kind"`
}

type ProducerClosedData struct {
	ProducerID   string      `json:"producerId"`
	ConnectionID core.ConnID `json:"connectionId"`
}

type JoinRequestData struct {
	RoomID  domain.RoomID      `json:"roomId"`
	Request domain.JoinRequest `json:"request"`
}

type ApprovalData struct {
	RoomID           domain.RoomID `json:"roomId"`
	RequiresApproval bool          `json:"requiresApproval"`
}

type ScreenShareData struct {
	RoomID domain.RoomID              `json:"roomId"`
	Share  *domain.ScreenShareSession `json:"share,omitempty"`
	UserID domain.UserID              `json:"userId,omitempty"`
}

type MeetingEndedData struct {
	RoomID domain.RoomID `json:"roomId"`
	Reason string        `json:"reason,omitempty"`
}

type MessageData struct {
	Message string    `json:"message"`
	From    string    `json:"from,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

type PongData struct {
	Time time.Time `json:"time"`
}
