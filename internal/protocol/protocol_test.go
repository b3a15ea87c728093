package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/core"
	"github.com/neutron420/bloom/internal/domain"
)

func TestDecodeJoinRoom(t *testing.T) {
	reqID, msg, err := Decode([]byte(`{"type":"join-room","reqId":"r1","data":{"roomId":"standup","userName":"Ann"}}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", reqID)
	assert.Equal(t, JoinRoom{RoomID: "standup", UserName: "Ann"}, msg)
}

func TestDecodeWithoutData(t *testing.T) {
	_, msg, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, Ping{}, msg)

	_, msg, err = Decode([]byte(`{"type":"leave-room","data":null}`))
	require.NoError(t, err)
	assert.Equal(t, LeaveRoom{}, msg)
}

func TestDecodeProduce(t *testing.T) {
	frame := `{"type":"produce","reqId":"7","data":{"transportId":"t1","kind":"video",
		"rtpParameters":{"codecs":[{"mimeType":"video/VP8","payloadType":96,"clockRate":90000}],"encodings":[{"ssrc":1111}]}}}`
	_, msg, err := Decode([]byte(frame))
	require.NoError(t, err)
	p, ok := msg.(Produce)
	require.True(t, ok)
	assert.Equal(t, core.KindVideo, p.Kind)
	require.Len(t, p.RtpParameters.Codecs, 1)
	assert.Equal(t, "video/VP8", p.RtpParameters.Codecs[0].MimeType)
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"unknown type":      `{"type":"fly","reqId":"x"}`,
		"bad payload":       `{"type":"join-room","data":{"roomId":12}}`,
		"bad room":          `{"type":"join-room","data":{"roomId":"has space"}}`,
		"bad direction":     `{"type":"create-transport","data":{"direction":"sideways"}}`,
		"bad kind":          `{"type":"produce","data":{"transportId":"t","kind":"text"}}`,
		"missing consumer":  `{"type":"resume-consumer","data":{}}`,
		"empty batch":       `{"type":"approve-requests","data":{"requestIds":[]}}`,
		"negative limit":    `{"type":"get-chat-history","data":{"limit":-1}}`,
		"missing requestId": `{"type":"approve-request","data":{}}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode([]byte(frame))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDecodeKeepsReqIDOnError(t *testing.T) {
	reqID, _, err := Decode([]byte(`{"type":"nope","reqId":"abc"}`))
	require.Error(t, err)
	assert.Equal(t, "abc", reqID)
}

type recordingHandler struct {
	ClientHandler
	got []string
}

func (h *recordingHandler) SendMessage(_ context.Context, conn core.ConnID, m SendMessage) (any, error) {
	h.got = append(h.got, string(conn)+":"+m.Message)
	return "ok", nil
}

func TestDispatchRoutesToHandler(t *testing.T) {
	h := &recordingHandler{}
	_, msg, err := Decode([]byte(`{"type":"send-message","data":{"message":"hi"}}`))
	require.NoError(t, err)

	res, err := msg.Dispatch(context.Background(), h, "c1")
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, []string{"c1:hi"}, h.got)
}

func TestEncodeError(t *testing.T) {
	frame, err := Encode(Error("r9", domain.ErrScreenShareActive))
	require.NoError(t, err)

	var out struct {
		Type  string    `json:"type"`
		ReqID string    `json:"reqId"`
		Data  ErrorData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &out))
	assert.Equal(t, EvError, out.Type)
	assert.Equal(t, "r9", out.ReqID)
	assert.Equal(t, domain.CodeConflict, out.Data.Code)
}

func TestEncodeHidesInternalErrors(t *testing.T) {
	ev := Error("", errors.New("disk on fire"))
	data := ev.Data.(ErrorData)
	assert.Equal(t, domain.CodeInternal, data.Code)
	assert.Equal(t, "internal error", data.Message)

	ev = Error("", domain.ErrRateLimited)
	assert.True(t, ev.Data.(ErrorData).Retryable)
}

func TestDecodeBatchKeepsMalformedEntries(t *testing.T) {
	_, msg, err := Decode([]byte(`{"type":"approve-requests","data":{"requestIds":["good-id",42,null,{"x":1}]}}`))
	require.NoError(t, err)
	batch, ok := msg.(ApproveRequests)
	require.True(t, ok)
	require.Len(t, batch.RequestIDs, 4)

	assert.NoError(t, batch.RequestIDs[0].Validate())
	assert.Equal(t, domain.JoinRequestID("good-id"), batch.RequestIDs[0].Key())
	for _, ref := range batch.RequestIDs[1:] {
		assert.ErrorIs(t, ref.Validate(), domain.ErrValidation, "entry %s", ref.Key())
	}
	assert.Equal(t, domain.JoinRequestID("42"), batch.RequestIDs[1].Key())

	_, msg, err = Decode([]byte(`{"type":"decline-requests","data":{"requestIds":[7]}}`))
	require.NoError(t, err)
	assert.Len(t, msg.(DeclineRequests).RequestIDs, 1)

	out, err := json.Marshal(batch.RequestIDs)
	require.NoError(t, err)
	assert.JSONEq(t, `["good-id",42,null,{"x":1}]`, string(out))
}
