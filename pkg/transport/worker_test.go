package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowpoint/aplink/pkg/protocol"
)

var upgrader = websocket.Upgrader{}

// newTestServer runs handler for each websocket connection and returns
// the ws:// URL to dial.
func newTestServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestWorker(url string) *Worker {
	return NewWorker(NewWorkerOptions{
		URL:           url,
		Game:          "Dark Souls III",
		Slot:          "alice",
		Password:      "hunter2",
		ItemsHandling: protocol.ItemsHandlingOtherWorlds | protocol.ItemsHandlingStartingInventory,
		Tags:          []string{protocol.TagDeathLink},
		Version:       protocol.NetworkVersion{Major: 0, Minor: 4, Build: 3, Class: "Version"},
	})
}

func serverWrite(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func serverRead(t *testing.T, conn *websocket.Conn) []map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	var msgs []map[string]interface{}
	assert.NoError(t, json.Unmarshal(data, &msgs))
	return msgs
}

// serveHandshake plays the server side of the staged handshake up to
// the Connect request, which it returns without answering.
func serveHandshake(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	serverWrite(t, conn, `[{"cmd": "RoomInfo", "seed_name": "seed-1"}]`)

	frame := serverRead(t, conn)
	if assert.Len(t, frame, 1) {
		assert.Equal(t, protocol.CmdGetDataPackage, frame[0]["cmd"])
	}
	serverWrite(t, conn, `[{"cmd": "DataPackage", "data": {"games": {}}}]`)

	frame = serverRead(t, conn)
	if !assert.Len(t, frame, 1) {
		return nil
	}
	return frame[0]
}

func nextEvent(t *testing.T, inbound <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-inbound:
		require.True(t, ok, "inbound channel closed early")
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
		return Event{}
	}
}

// awaitClosed drains inbound until the worker closes it, failing on any
// error event seen along the way.
func awaitClosed(t *testing.T, inbound <-chan Event) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-inbound:
			if !ok {
				return
			}
			assert.NoError(t, event.Err)
		case <-deadline:
			t.Fatal("inbound channel never closed")
		}
	}
}

func TestWorkerHandshake(t *testing.T) {
	connects := make(chan map[string]interface{}, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		connect := serveHandshake(t, conn)
		if connect == nil {
			return
		}
		connects <- connect
		serverWrite(t, conn, `[{"cmd": "Connected", "slot": 1, "players": [], "slot_data": {}}]`)
		conn.ReadMessage()
	})

	worker := newTestWorker(url)
	go worker.Run()

	event := nextEvent(t, worker.Inbound())
	roomInfo, ok := event.Message.(*protocol.RoomInfo)
	require.True(t, ok, "expected RoomInfo, got %T", event.Message)
	assert.Equal(t, "seed-1", roomInfo.SeedName)

	event = nextEvent(t, worker.Inbound())
	_, ok = event.Message.(*protocol.DataPackage)
	require.True(t, ok, "expected DataPackage, got %T", event.Message)

	event = nextEvent(t, worker.Inbound())
	_, ok = event.Message.(*protocol.Connected)
	require.True(t, ok, "expected Connected, got %T", event.Message)

	connect := <-connects
	assert.Equal(t, protocol.CmdConnect, connect["cmd"])
	assert.Equal(t, "Dark Souls III", connect["game"])
	assert.Equal(t, "alice", connect["name"])
	assert.Equal(t, "hunter2", connect["password"])
	assert.Equal(t, float64(0b101), connect["items_handling"])
	assert.Equal(t, []interface{}{protocol.TagDeathLink}, connect["tags"])
	assert.Equal(t, true, connect["slot_data"])

	close(worker.Outbound())
	awaitClosed(t, worker.Inbound())
}

func TestWorkerForwardsTrailingHandshakeMessages(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		if serveHandshake(t, conn) == nil {
			return
		}
		// Connected arrives in the same frame as a steady-state message.
		serverWrite(t, conn, `[{"cmd": "Connected", "slot": 1, "players": [], "slot_data": {}}, {"cmd": "PrintJSON", "data": [{"text": "welcome"}]}]`)
		conn.ReadMessage()
	})

	worker := newTestWorker(url)
	go worker.Run()

	nextEvent(t, worker.Inbound()) // RoomInfo
	nextEvent(t, worker.Inbound()) // DataPackage
	nextEvent(t, worker.Inbound()) // Connected

	event := nextEvent(t, worker.Inbound())
	printed, ok := event.Message.(*protocol.PrintJSON)
	require.True(t, ok, "expected PrintJSON, got %T", event.Message)
	assert.Equal(t, "welcome", printed.Data[0].Text)

	close(worker.Outbound())
	awaitClosed(t, worker.Inbound())
}

func TestWorkerSteadyStatePump(t *testing.T) {
	says := make(chan map[string]interface{}, 1)
	url := newTestServer(t, func(conn *websocket.Conn) {
		if serveHandshake(t, conn) == nil {
			return
		}
		serverWrite(t, conn, `[{"cmd": "Connected", "slot": 1, "players": [], "slot_data": {}}]`)
		serverWrite(t, conn, `[{"cmd": "PrintJSON", "data": [{"text": "hello from the server"}]}]`)
		frame := serverRead(t, conn)
		if assert.Len(t, frame, 1) {
			says <- frame[0]
		}
		conn.ReadMessage()
	})

	worker := newTestWorker(url)
	go worker.Run()

	nextEvent(t, worker.Inbound()) // RoomInfo
	nextEvent(t, worker.Inbound()) // DataPackage
	nextEvent(t, worker.Inbound()) // Connected

	event := nextEvent(t, worker.Inbound())
	_, ok := event.Message.(*protocol.PrintJSON)
	require.True(t, ok, "expected PrintJSON, got %T", event.Message)

	worker.Outbound() <- protocol.NewSay("hello from the client")
	say := <-says
	assert.Equal(t, protocol.CmdSay, say["cmd"])
	assert.Equal(t, "hello from the client", say["text"])

	close(worker.Outbound())
	awaitClosed(t, worker.Inbound())
}

func TestWorkerShutdownStopsReader(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		if serveHandshake(t, conn) == nil {
			return
		}
		serverWrite(t, conn, `[{"cmd": "Connected", "slot": 1, "players": [], "slot_data": {}}]`)
		conn.ReadMessage()
	})

	worker := newTestWorker(url)
	go worker.Run()

	nextEvent(t, worker.Inbound()) // RoomInfo
	nextEvent(t, worker.Inbound()) // DataPackage
	nextEvent(t, worker.Inbound()) // Connected

	close(worker.Outbound())
	awaitClosed(t, worker.Inbound())

	// The reader goroutine must not stay parked on its channel send
	// after the worker exits, or every reconnect leaks one.
	assert.Eventually(t, func() bool {
		buf := make([]byte, 1<<20)
		stacks := string(buf[:runtime.Stack(buf, true)])
		return !strings.Contains(stacks, "(*Worker).pump")
	}, 5*time.Second, 10*time.Millisecond, "reader goroutine still running after worker exit")
}

func TestWorkerRefused(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		if serveHandshake(t, conn) == nil {
			return
		}
		serverWrite(t, conn, `[{"cmd": "ConnectionRefused", "errors": ["InvalidSlot"]}]`)
		conn.ReadMessage()
	})

	worker := newTestWorker(url)
	go worker.Run()

	nextEvent(t, worker.Inbound()) // RoomInfo
	nextEvent(t, worker.Inbound()) // DataPackage

	event := nextEvent(t, worker.Inbound())
	refused, ok := event.Message.(*protocol.ConnectionRefused)
	require.True(t, ok, "expected ConnectionRefused, got %T", event.Message)
	assert.Equal(t, []string{"InvalidSlot"}, refused.Errors)

	close(worker.Outbound())
	awaitClosed(t, worker.Inbound())
}

func TestWorkerIllegalFirstMessage(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		serverWrite(t, conn, `[{"cmd": "DataPackage", "data": {"games": {}}}]`)
		conn.ReadMessage()
	})

	worker := newTestWorker(url)
	go worker.Run()

	event := nextEvent(t, worker.Inbound())
	require.Error(t, event.Err)
	assert.Contains(t, event.Err.Error(), "expected RoomInfo")

	_, ok := <-worker.Inbound()
	assert.False(t, ok, "inbound should close after the error event")
}

func TestWorkerDialFailure(t *testing.T) {
	worker := newTestWorker("ws://127.0.0.1:1")
	go worker.Run()

	event := nextEvent(t, worker.Inbound())
	require.Error(t, event.Err)
	assert.Contains(t, event.Err.Error(), "failed to connect")

	_, ok := <-worker.Inbound()
	assert.False(t, ok)
}
