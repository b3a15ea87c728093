package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neutron420/bloom/internal/app"
	"github.com/neutron420/bloom/internal/app/orch"
	"github.com/neutron420/bloom/internal/config"
	"github.com/neutron420/bloom/internal/domain"
	"github.com/neutron420/bloom/internal/protocol"
	"github.com/neutron420/bloom/internal/sfu"
	"github.com/neutron420/bloom/internal/store/memory"
)

const testAdminToken = "let-me-in"

type frame struct {
	Type  string          `json:"type"`
	ReqID string          `json:"reqId"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, limiter *app.RateLimiter) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine, err := sfu.NewEngine(sfu.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	o := orch.New(orch.Deps{Store: memory.New(), Engine: engine, Limiter: limiter})
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		AdminToken: testAdminToken,
		SendBuffer: 64,
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	header := http.Header{}
	header.Set(headerUserID, user)
	header.Set(headerUserName, strings.ToUpper(user))
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, typ, reqID string, data any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"type": typ, "reqId": reqID, "data": data}))
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, ws.ReadJSON(&f))
		if f.Type == typ {
			return f
		}
	}
}

func TestSignalRequestResponse(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	send(t, alice, protocol.TypeJoinRoom, "1", map[string]any{"roomId": "standup"})
	res := readUntil(t, alice, protocol.EvResponse)
	assert.Equal(t, "1", res.ReqID)
	var joined orch.JoinRoomResult
	require.NoError(t, json.Unmarshal(res.Data, &joined))
	assert.True(t, joined.IsHost)
	assert.Equal(t, "ALICE", joined.Participants[0].UserName)

	send(t, bob, protocol.TypeJoinRoom, "b1", map[string]any{"roomId": "standup"})
	readUntil(t, bob, protocol.EvResponse)
	presence := readUntil(t, alice, protocol.EvUserJoined)
	var pd protocol.PresenceData
	require.NoError(t, json.Unmarshal(presence.Data, &pd))
	assert.Equal(t, domain.UserID("bob"), pd.Member.UserID)

	send(t, alice, "teleport", "2", nil)
	errFrame := readUntil(t, alice, protocol.EvError)
	assert.Equal(t, "2", errFrame.ReqID)
	var ed protocol.ErrorData
	require.NoError(t, json.Unmarshal(errFrame.Data, &ed))
	assert.Equal(t, domain.CodeValidation, ed.Code)

	send(t, alice, protocol.TypePing, "3", nil)
	pong := readUntil(t, alice, protocol.EvPong)
	assert.Equal(t, "3", pong.ReqID)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rooms struct {
		Rooms []struct {
			RoomID      string `json:"roomId"`
			MemberCount int    `json:"memberCount"`
		} `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, 2, rooms.Rooms[0].MemberCount)
}

func TestSignalRateLimit(t *testing.T) {
	srv := newTestServer(t, app.NewRateLimiter(2, time.Minute))
	ws := dial(t, srv, "alice")

	send(t, ws, protocol.TypePing, "1", nil)
	send(t, ws, protocol.TypePing, "2", nil)
	send(t, ws, protocol.TypePing, "3", nil)

	readUntil(t, ws, protocol.EvPong)
	readUntil(t, ws, protocol.EvPong)
	f := readUntil(t, ws, protocol.EvError)
	assert.Equal(t, "3", f.ReqID)
	var ed protocol.ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &ed))
	assert.Equal(t, domain.CodeRateLimited, ed.Code)
	assert.True(t, ed.Retryable)
}

func TestSignalDisconnectCleansUp(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	for _, ws := range []*websocket.Conn{alice, bob} {
		send(t, ws, protocol.TypeJoinRoom, "j", map[string]any{"roomId": "standup"})
		readUntil(t, ws, protocol.EvResponse)
	}

	require.NoError(t, bob.Close())
	left := readUntil(t, alice, protocol.EvUserLeft)
	var pd protocol.PresenceData
	require.NoError(t, json.Unmarshal(left.Data, &pd))
	assert.Equal(t, domain.UserID("bob"), pd.Member.UserID)
}

func TestAdminEndMeeting(t *testing.T) {
	srv := newTestServer(t, nil)
	conns := make([]*websocket.Conn, 0, 3)
	for _, user := range []string{"u1", "u2", "u3"} {
		ws := dial(t, srv, user)
		send(t, ws, protocol.TypeJoinRoom, "j", map[string]any{"roomId": "standup"})
		readUntil(t, ws, protocol.EvResponse)
		conns = append(conns, ws)
	}

	post := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/rooms/standup/end", strings.NewReader(`{"reason":"over"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(headerUserID, "ops")
		if token != "" {
			req.Header.Set(headerAdminToken, token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post("wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	resp = post(testAdminToken)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res orch.EndMeetingResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 3, res.Disconnected)

	for _, ws := range conns {
		ended := readUntil(t, ws, protocol.EvMeetingEnded)
		var md protocol.MeetingEndedData
		require.NoError(t, json.Unmarshal(ended.Data, &md))
		assert.Equal(t, "over", md.Reason)

		_, _, err := ws.ReadMessage()
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	}
}

func TestAdminErrorsMapToStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/rooms/nowhere/end", nil)
	require.NoError(t, err)
	req.Header.Set(headerAdminToken, testAdminToken)
	req.Header.Set(headerUserID, "ops")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, domain.CodeNotFound, body["code"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientTokenLivesInSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("BloomSessions", cookie.NewStore([]byte("test-secret"))))
	r.Use(ClientTokenMiddleware(), IdentityMiddleware(""))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, string(identity(c).UserID))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	whoami := func(client *http.Client) string {
		t.Helper()
		resp, err := client.Get(srv.URL + "/whoami")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	browser := &http.Client{Jar: jar}
	first := whoami(browser)
	require.NotEmpty(t, first)
	assert.Equal(t, first, whoami(browser), "same session, same token")

	other, err := cookiejar.New(nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, whoami(&http.Client{Jar: other}))
}
