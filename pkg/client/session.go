package client

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/hollowpoint/aplink/pkg/log"
	"github.com/hollowpoint/aplink/pkg/protocol"
)

// Session is a pull-based view of an established connection: the only
// mutable surface reachable once the connection reports Connected. It
// buffers inbound items, prints and death signals for per-tick
// consumption and enqueues outbound actions onto the worker's channel.
// Its state only changes when Connection.Update is called, always on
// the game-logic thread.
type Session struct {
	connected *protocol.Connected
	roomInfo  *protocol.RoomInfo
	catalog   *Catalog
	slotData  *SlotData

	outbound chan<- protocol.ClientMessage
	closed   bool

	pendingItems  []Item
	pendingPrints []Print

	// pendingDeath holds at most the newest unconsumed death signal.
	// Repeated arrivals overwrite it: last write wins.
	pendingDeath *DeathSignal

	// receivedCount is the number of items the server has reported
	// delivered, tracked by delivery index so a replay from index 0
	// does not inflate it.
	receivedCount int64
}

func newSession(connected *protocol.Connected, roomInfo *protocol.RoomInfo, data *protocol.DataPackageObject, outbound chan<- protocol.ClientMessage) (*Session, error) {
	slotData, err := ParseSlotData(connected.SlotData)
	if err != nil {
		return nil, err
	}
	return &Session{
		connected: connected,
		roomInfo:  roomInfo,
		catalog:   NewCatalog(data),
		slotData:  slotData,
		outbound:  outbound,
	}, nil
}

// RoomSeed returns the unique identifier of the remote session.
func (s *Session) RoomSeed() string {
	return s.roomInfo.SeedName
}

// SlotData returns the per-slot configuration from the handshake.
func (s *Session) SlotData() *SlotData {
	return s.slotData
}

// Catalog returns the session's name catalog.
func (s *Session) Catalog() *Catalog {
	return s.catalog
}

// Slot returns this player's slot number.
func (s *Session) Slot() int {
	return s.connected.Slot
}

// PlayerName returns this player's name in the session.
func (s *Session) PlayerName() string {
	return s.playerName(s.connected.Slot)
}

func (s *Session) playerName(slot int) string {
	for _, player := range s.connected.Players {
		if player.Slot == slot {
			if player.Alias != "" {
				return player.Alias
			}
			return player.Name
		}
	}
	return fmt.Sprintf("Player %d", slot)
}

// ReceivedCount returns how many items the server has reported
// delivered to this slot over the life of the session.
func (s *Session) ReceivedCount() int64 {
	return s.receivedCount
}

// ConsumeItems takes and clears the buffered items, in server delivery
// order. Each item is returned exactly once; callers must dedupe by
// delivery index because the server may replay items after a
// reconnect.
func (s *Session) ConsumeItems() []Item {
	items := s.pendingItems
	s.pendingItems = nil
	return items
}

// ConsumePrints takes and clears the buffered prints, in arrival
// order. A second call with no intervening arrivals returns nothing.
func (s *Session) ConsumePrints() []Print {
	prints := s.pendingPrints
	s.pendingPrints = nil
	return prints
}

// ConsumeDeathSignal takes and clears the pending death signal,
// returning at most the newest one since the last call. Superseded
// signals are silently discarded.
func (s *Session) ConsumeDeathSignal() *DeathSignal {
	signal := s.pendingDeath
	s.pendingDeath = nil
	return signal
}

// Say broadcasts a chat message to the session.
func (s *Session) Say(text string) {
	s.send(protocol.NewSay(text))
}

// ReportLocationChecks reports a batch of checked locations. Reports
// whether the message was enqueued so callers can retry a dropped
// batch on a later tick.
func (s *Session) ReportLocationChecks(ids []int64) bool {
	return s.send(protocol.NewLocationChecks(ids))
}

// ReportGoalReached reports that this player has completed their goal.
// Reports whether the message was enqueued.
func (s *Session) ReportGoalReached() bool {
	return s.send(protocol.NewStatusUpdate(protocol.ClientStatusGoal))
}

// BroadcastDeathSignal notifies the other death-linked players that
// this player died.
func (s *Session) BroadcastDeathSignal(at time.Time, cause string) {
	bounce, err := protocol.NewDeathLinkBounce(protocol.DeathLinkData{
		Time:   float64(at.UnixMilli()) / 1000,
		Source: s.PlayerName(),
		Cause:  cause,
	})
	if err != nil {
		log.Error("Failed to serialize death signal: %v", err)
		return
	}
	s.send(bounce)
}

// send enqueues a message for the worker, reporting whether it was
// accepted. Enqueueing never blocks the game-logic thread: if the
// queue is full the worker is stalled or dead, which the next Update
// will surface as a disconnect, so the message is dropped with a
// warning and the caller decides whether to retry.
func (s *Session) send(msg protocol.ClientMessage) bool {
	if s.closed {
		log.Warn("Dropping %s message: connection is closed", msg.ClientCmd())
		return false
	}
	select {
	case s.outbound <- msg:
		return true
	default:
		log.Warn("Dropping %s message: outbound queue is full", msg.ClientCmd())
		return false
	}
}

// absorb buffers one steady-state server message. Called only by
// Connection.Update. Message types the client does not care about are
// ignored for forward compatibility.
func (s *Session) absorb(message protocol.ServerMessage) {
	switch msg := message.(type) {
	case *protocol.ReceivedItems:
		s.absorbItems(msg)
	case *protocol.PrintJSON:
		s.pendingPrints = append(s.pendingPrints, s.resolvePrint(msg))
	case *protocol.Bounced:
		s.absorbBounce(msg)
	default:
	}
}

func (s *Session) absorbItems(msg *protocol.ReceivedItems) {
	for i, network := range msg.Items {
		index := msg.Index + int64(i)
		item := Item{
			Network: network,
			Index:   index,
			Name:    s.catalog.ItemName(network.Item),
		}
		item.LocationName, item.HasLocation = s.catalog.LocationName(network.Location)
		item.LocalID, item.HasLocalID = s.slotData.ItemIDs[network.Item]
		item.Quantity = 1
		if count, ok := s.slotData.ItemCounts[network.Item]; ok {
			item.Quantity = count
		}
		s.pendingItems = append(s.pendingItems, item)

		if index >= s.receivedCount {
			s.receivedCount = index + 1
		}
	}
}

func (s *Session) absorbBounce(msg *protocol.Bounced) {
	deathLink := false
	for _, tag := range msg.Tags {
		if tag == protocol.TagDeathLink {
			deathLink = true
			break
		}
	}
	if !deathLink {
		return
	}

	var data protocol.DeathLinkData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		log.Warn("Failed to deserialize death signal payload: %v", err)
		return
	}

	sec, frac := math.Modf(data.Time)
	s.pendingDeath = &DeathSignal{
		Time:   time.Unix(int64(sec), int64(frac*float64(time.Second))),
		Source: data.Source,
		Cause:  data.Cause,
	}
}

// resolvePrint replaces id-bearing parts with their display names so
// consumers can render the message without catalog access.
func (s *Session) resolvePrint(msg *protocol.PrintJSON) Print {
	out := Print{Parts: make([]PrintPart, 0, len(msg.Data))}
	for _, part := range msg.Data {
		resolved := PrintPart{Text: part.Text, Color: part.Color}
		switch part.Type {
		case protocol.PartTypeItemID:
			if id, err := strconv.ParseInt(part.Text, 10, 64); err == nil {
				resolved.Text = s.catalog.ItemName(id)
			}
		case protocol.PartTypeLocationID:
			if id, err := strconv.ParseInt(part.Text, 10, 64); err == nil {
				if name, ok := s.catalog.LocationName(id); ok {
					resolved.Text = name
				} else {
					resolved.Text = fmt.Sprintf("Unknown location %d", id)
				}
			}
		case protocol.PartTypePlayerID:
			if slot, err := strconv.Atoi(part.Text); err == nil {
				resolved.Text = s.playerName(slot)
			} else {
				resolved.Text = s.playerName(part.Player)
			}
		}
		out.Parts = append(out.Parts, resolved)
	}
	return out
}
