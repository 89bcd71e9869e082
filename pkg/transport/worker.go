// Package transport runs the websocket connection to the session
// server on a background goroutine, isolated from the game-logic
// thread. All communication with the foreground happens over two
// channels of typed messages.
package transport

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hollowpoint/aplink/pkg/log"
	"github.com/hollowpoint/aplink/pkg/protocol"
)

const (
	// ChannelBufferSize is the capacity of the inbound and outbound
	// channels between the worker and the foreground.
	ChannelBufferSize = 1024
)

// Event is one message from the worker to the foreground. Exactly one
// of Message and Err is set. The worker sends at most one Err event,
// always as its final event before the inbound channel closes.
type Event struct {
	Message protocol.ServerMessage
	Err     error
}

// Worker owns the websocket connection for one connection epoch. It
// performs the staged handshake and then pumps messages between the
// connection and the foreground channels until either side closes.
type Worker struct {
	url           string
	game          string
	slot          string
	password      string
	itemsHandling int
	tags          []string
	version       protocol.NetworkVersion

	// epoch identifies this worker in logs across reconnects.
	epoch uuid.UUID

	inbound  chan Event
	outbound chan protocol.ClientMessage
}

// NewWorkerOptions carries the connection credentials for NewWorker.
type NewWorkerOptions struct {
	URL           string
	Game          string
	Slot          string
	Password      string
	ItemsHandling int
	Tags          []string
	Version       protocol.NetworkVersion
}

// NewWorker creates a worker and its channel pair. The worker does
// nothing until Run is called.
func NewWorker(opts NewWorkerOptions) *Worker {
	return &Worker{
		url:           opts.URL,
		game:          opts.Game,
		slot:          opts.Slot,
		password:      opts.Password,
		itemsHandling: opts.ItemsHandling,
		tags:          opts.Tags,
		version:       opts.Version,
		epoch:         uuid.New(),
		inbound:       make(chan Event, ChannelBufferSize),
		outbound:      make(chan protocol.ClientMessage, ChannelBufferSize),
	}
}

// Inbound returns the channel of events flowing from the worker to the
// foreground. It is closed when the worker exits.
func (w *Worker) Inbound() <-chan Event {
	return w.inbound
}

// Outbound returns the channel of client messages flowing from the
// foreground to the worker. Closing it shuts the worker down.
func (w *Worker) Outbound() chan<- protocol.ClientMessage {
	return w.outbound
}

// Run connects, handshakes and pumps messages until the connection or
// the outbound channel closes. It is meant to be run on its own
// goroutine and never panics on remote-originated failures: any error
// is delivered as a final Event before the inbound channel closes.
func (w *Worker) Run() {
	defer close(w.inbound)
	if err := w.run(); err != nil {
		log.Warn("Session worker %s exiting: %v", w.epoch, err)
		w.inbound <- Event{Err: err}
	}
}

func (w *Worker) run() error {
	log.Info("Session worker %s connecting to %s", w.epoch, w.url)
	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %v", err)
	}
	defer conn.Close()

	pending, err := w.handshake(conn)
	if err != nil {
		return err
	}

	// Deliver anything the server sent in the same frames as the
	// handshake responses before entering the steady-state pump.
	for _, msg := range pending {
		w.inbound <- Event{Message: msg}
	}

	return w.pump(conn)
}

// handshake performs the staged connection sequence: await RoomInfo,
// request and await the data package, then authenticate and await
// Connected or ConnectionRefused. Each step's response type is checked;
// a mismatch is a fatal protocol error. Returns any messages received
// beyond the handshake responses so they are not lost.
func (w *Worker) handshake(conn *websocket.Conn) ([]protocol.ServerMessage, error) {
	var pending []protocol.ServerMessage

	next := func() (protocol.ServerMessage, error) {
		for {
			if len(pending) > 0 {
				msg := pending[0]
				pending = pending[1:]
				if _, ok := msg.(*protocol.Unknown); ok {
					continue
				}
				return msg, nil
			}
			msgs, err := readFrame(conn)
			if err != nil {
				return nil, err
			}
			pending = msgs
		}
	}

	msg, err := next()
	if err != nil {
		return nil, err
	}
	roomInfo, ok := msg.(*protocol.RoomInfo)
	if !ok {
		return nil, illegalResponse(protocol.CmdRoomInfo, msg)
	}
	w.inbound <- Event{Message: roomInfo}

	if err := writeFrame(conn, protocol.NewGetDataPackage(nil)); err != nil {
		return nil, err
	}
	msg, err = next()
	if err != nil {
		return nil, err
	}
	dataPackage, ok := msg.(*protocol.DataPackage)
	if !ok {
		return nil, illegalResponse(protocol.CmdDataPackage, msg)
	}
	w.inbound <- Event{Message: dataPackage}

	connect := &protocol.Connect{
		Cmd:           protocol.CmdConnect,
		Game:          w.game,
		Name:          w.slot,
		Password:      w.password,
		UUID:          w.epoch.String(),
		Version:       w.version,
		ItemsHandling: w.itemsHandling,
		Tags:          w.tags,
		SlotData:      true,
	}
	if err := writeFrame(conn, connect); err != nil {
		return nil, err
	}
	msg, err = next()
	if err != nil {
		return nil, err
	}
	switch msg := msg.(type) {
	case *protocol.Connected, *protocol.ConnectionRefused:
		w.inbound <- Event{Message: msg}
	default:
		return nil, illegalResponse(protocol.CmdConnected, msg)
	}

	return pending, nil
}

// pump forwards inbound frames and drains the outbound channel,
// interleaved fairly, until either side closes.
func (w *Worker) pump(conn *websocket.Conn) error {
	type readResult struct {
		msgs []protocol.ServerMessage
		err  error
	}

	// done releases the reader once pump returns; without it the final
	// send below would park the reader goroutine forever after the
	// foreground closes the outbound channel.
	done := make(chan struct{})
	defer close(done)

	readCh := make(chan readResult)
	go func() {
		defer close(readCh)
		for {
			msgs, err := readFrame(conn)
			select {
			case readCh <- readResult{msgs: msgs, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-w.outbound:
			if !ok {
				// The foreground dropped the connection handle.
				log.Debug("Session worker %s outbound channel closed, exiting", w.epoch)
				return nil
			}
			if err := writeFrame(conn, msg); err != nil {
				return err
			}
		case res, ok := <-readCh:
			if !ok {
				return nil
			}
			if res.err != nil {
				return res.err
			}
			for _, msg := range res.msgs {
				w.inbound <- Event{Message: msg}
			}
		}
	}
}

func readFrame(conn *websocket.Conn) ([]protocol.ServerMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("connection closed by server")
		}
		return nil, fmt.Errorf("failed to read from server: %v", err)
	}
	msgs, err := protocol.DecodeServerMessages(data)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func writeFrame(conn *websocket.Conn, msg protocol.ClientMessage) error {
	data, err := protocol.EncodeClientMessages([]protocol.ClientMessage{msg})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s message to server: %v", msg.ClientCmd(), err)
	}
	return nil
}

func illegalResponse(expected string, received protocol.ServerMessage) error {
	got := received.ServerCmd()
	if strings.TrimSpace(got) == "" {
		got = "(empty command)"
	}
	return fmt.Errorf("expected %s from server, received %s", expected, got)
}
