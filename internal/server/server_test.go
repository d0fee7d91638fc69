package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
)

type rig struct {
	srv     *Server
	http    *httptest.Server
	mailbox *core.Mailbox
	store   *core.StatusStore
	bus     *core.EventBus
}

func newRig(t *testing.T, origins ...string) *rig {
	t.Helper()
	r := &rig{
		mailbox: core.NewMailbox(10),
		store:   core.NewStatusStore(),
		bus:     core.NewEventBus(),
	}
	r.store.Set(core.Status{Commands: core.Commands{Brightness: 10}, HuePhase: 7})

	cfg := config.ServerConfig{Port: "0", AllowedOrigins: origins}
	schedules := func() []config.ScheduleEntry {
		return []config.ScheduleEntry{{Spec: "@hourly", Command: "led 1"}}
	}
	r.srv = NewServer(cfg, MailboxHandler{Mailbox: r.mailbox, Store: r.store}, r.store, r.bus, schedules, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go r.srv.Hub.Run(ctx)
	sub := r.bus.Subscribe(core.AllEvents...)
	go r.srv.Hub.Forward(ctx, sub)

	r.http = httptest.NewServer(r.srv.Routes())
	t.Cleanup(func() {
		r.http.Close()
		cancel()
	})
	return r
}

func (r *rig) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type incoming struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func read(t *testing.T, conn *websocket.Conn) incoming {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg incoming
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketSession(t *testing.T) {
	r := newRig(t)
	conn := r.dial(t)

	msg := read(t, conn)
	require.Equal(t, "Status", msg.Type)
	var st core.Status
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	assert.Equal(t, 7, st.HuePhase)

	msg = read(t, conn)
	assert.Equal(t, "schedule_list", msg.Type)

	// A reply proves the connection is registered with the hub.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_status"}))
	assert.Equal(t, "Status", read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "write",
		"payload": map[string]interface{}{"pin": "V1", "value": 1},
	}))
	assert.Eventually(t, r.mailbox.LED, time.Second, 5*time.Millisecond)

	r.bus.Publish(core.Event{Type: core.LEDToggledEvent, Payload: core.ToggleChange{On: true}})
	msg = read(t, conn)
	assert.Equal(t, "LEDToggled", msg.Type)
	assert.JSONEq(t, `{"on":true}`, string(msg.Payload))
}

func TestWebSocketRejectsBadCommands(t *testing.T) {
	r := newRig(t)
	conn := r.dial(t)
	read(t, conn)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "write",
		"payload": map[string]interface{}{"pin": "V7", "value": 1},
	}))
	assert.Equal(t, "error", read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	assert.Equal(t, "error", read(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "error", read(t, conn).Type)

	assert.Equal(t, core.Commands{Brightness: 10}, r.mailbox.Snapshot())
}

func TestWebSocketOriginCheck(t *testing.T) {
	r := newRig(t, "http://ball.local")
	url := "ws" + strings.TrimPrefix(r.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://ball.local"}})
	require.NoError(t, err)
	conn.Close()
}

func TestStatusEndpoint(t *testing.T) {
	r := newRig(t)
	resp, err := http.Get(r.http.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st core.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 10, st.Brightness)
	assert.Equal(t, 7, st.HuePhase)
}

func TestRunSurvivesBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()
	port := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	s := NewServer(config.ServerConfig{Port: port}, nil, core.NewStatusStore(), core.NewEventBus(), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	assert.NoError(t, s.Run(ctx))
	assert.Less(t, time.Since(start), time.Second, "a bind failure returns without waiting for ctx")
}
