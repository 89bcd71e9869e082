// Package client maintains a pull-based view of a multiworld session.
// All network communication happens on a background worker; the state
// held here only changes when Update is called, which the host's
// game-logic thread does once per tick and which never blocks.
package client

import (
	"fmt"
	"strings"

	"github.com/hollowpoint/aplink/pkg/log"
	"github.com/hollowpoint/aplink/pkg/protocol"
	"github.com/hollowpoint/aplink/pkg/transport"
)

// StateType identifies the connection's current state.
type StateType int

const (
	// StateConnecting means the handshake is still in progress.
	StateConnecting StateType = iota

	// StateConnected means a Session is available.
	StateConnected

	// StateDisconnected is terminal for this connection epoch;
	// recovering requires constructing a new Connection.
	StateDisconnected
)

func (t StateType) String() string {
	switch t {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Connection is the handle for one connection epoch. State transitions
// are one-directional: Connecting to Connected to Disconnected, or
// Connecting straight to Disconnected. Once Disconnected it never
// leaves that state.
type Connection struct {
	stateType StateType
	session   *Session
	reason    string

	inbound  <-chan transport.Event
	outbound chan<- protocol.ClientMessage
	closed   bool

	// roomInfo and dataPackage accumulate handshake data until the
	// Connected message arrives, at which point ownership passes to
	// the Session.
	roomInfo    *protocol.RoomInfo
	dataPackage *protocol.DataPackageObject
}

// ConnectOptions carries the credentials for Connect.
type ConnectOptions struct {
	URL      string
	Game     string
	Slot     string
	Password string
	Version  protocol.NetworkVersion
}

// Connect spawns a transport worker and returns the handle tracking
// it. The returned connection is in the Connecting state; drive it
// with Update.
func Connect(opts ConnectOptions) *Connection {
	worker := transport.NewWorker(transport.NewWorkerOptions{
		URL:      opts.URL,
		Game:     opts.Game,
		Slot:     opts.Slot,
		Password: opts.Password,
		// Receive items placed in other worlds and starting
		// inventory; items in our own world are granted locally.
		ItemsHandling: protocol.ItemsHandlingOtherWorlds | protocol.ItemsHandlingStartingInventory,
		Tags:          []string{protocol.TagDeathLink},
		Version:       opts.Version,
	})
	go worker.Run()
	return NewConnection(worker.Inbound(), worker.Outbound())
}

// NewConnection builds a connection handle around an existing channel
// pair. Connect is the usual entry point; this is the composition
// seam for driving the state machine without a live transport.
func NewConnection(inbound <-chan transport.Event, outbound chan<- protocol.ClientMessage) *Connection {
	return &Connection{
		stateType: StateConnecting,
		inbound:   inbound,
		outbound:  outbound,
	}
}

// State returns the current state type.
func (c *Connection) State() StateType {
	return c.stateType
}

// Session returns the live session, or nil unless connected.
func (c *Connection) Session() *Session {
	if c.stateType != StateConnected {
		return nil
	}
	return c.session
}

// Reason returns the disconnect reason, or empty unless disconnected.
func (c *Connection) Reason() string {
	if c.stateType != StateDisconnected {
		return ""
	}
	return c.reason
}

// Close shuts the worker down by closing the outbound channel. The
// worker observes the closure and exits; there is no other
// cancellation signal. Safe to call more than once.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.session != nil {
		c.session.closed = true
	}
	close(c.outbound)
}

// Update drains the inbound channel without blocking and applies every
// queued event to the state machine. It never reports failure to the
// caller: every failure becomes the Disconnected state, observed on
// the next State call. Has no effect once disconnected.
func (c *Connection) Update() {
	if c.stateType == StateDisconnected {
		return
	}

	for {
		select {
		case event, ok := <-c.inbound:
			if !ok {
				c.disconnect("session worker exited unexpectedly")
				return
			}
			if terminal := c.apply(event); terminal {
				return
			}
		default:
			return
		}
	}
}

// apply processes one event, returning true if it ended the epoch.
func (c *Connection) apply(event transport.Event) bool {
	if event.Err != nil {
		log.Warn("Connection error: %v", event.Err)
		c.disconnect(event.Err.Error())
		return true
	}

	switch msg := event.Message.(type) {
	case *protocol.ConnectionRefused:
		c.disconnect(strings.Join(msg.Errors, ", "))
		return true
	case *protocol.RoomInfo:
		c.roomInfo = msg
	case *protocol.DataPackage:
		c.dataPackage = &msg.Data
	case *protocol.Connected:
		// The worker requests the data package before it
		// authenticates, so both must precede Connected; anything
		// else is a protocol-sequencing violation fatal to the epoch.
		if c.roomInfo == nil || c.dataPackage == nil {
			c.disconnect("server sent Connected before the room info and data package")
			return true
		}
		session, err := newSession(msg, c.roomInfo, c.dataPackage, c.outbound)
		if err != nil {
			c.disconnect(err.Error())
			return true
		}
		c.session = session
		c.stateType = StateConnected
		c.roomInfo = nil
		c.dataPackage = nil
		log.Info("Connected to room %s as %s", session.RoomSeed(), session.PlayerName())
	default:
		if c.stateType != StateConnected {
			c.disconnect(fmt.Sprintf("unexpected %s message while %s", event.Message.ServerCmd(), c.stateType))
			return true
		}
		c.session.absorb(event.Message)
	}

	return false
}

func (c *Connection) disconnect(reason string) {
	if c.session != nil {
		c.session.closed = true
		c.session = nil
	}
	c.stateType = StateDisconnected
	c.reason = reason
	log.Info("Disconnected: %s", reason)
}
