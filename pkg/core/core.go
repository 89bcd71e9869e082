// Package core runs the per-tick reconciliation between the session
// client's view of the multiworld and the local save record. It is
// driven once per frame from the host's game-logic thread and never
// blocks.
package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/hollowpoint/aplink/pkg/client"
	"github.com/hollowpoint/aplink/pkg/config"
	"github.com/hollowpoint/aplink/pkg/items"
	"github.com/hollowpoint/aplink/pkg/log"
	"github.com/hollowpoint/aplink/pkg/protocol"
	"github.com/hollowpoint/aplink/pkg/save"
)

const (
	// GracePeriod is the dwell time between the host's game session
	// becoming available and the core beginning to act on it, so
	// nothing is granted into a half-initialized game state.
	GracePeriod = 10 * time.Second

	// ItemGrantInterval is the minimum spacing between successive item
	// grants, so pickup notifications don't overlap.
	ItemGrantInterval = 1 * time.Second

	// DeathLinkGracePeriod is the debounce after sending or receiving
	// a death signal during which no further signals are processed.
	DeathLinkGracePeriod = 30 * time.Second
)

// The gesture-unlocking synthetic good: granting this good id unlocks
// the gesture instead of an inventory item.
const (
	gestureGoodsValue = 9030
	gestureID         = 29
)

// errHalted replaces a fatal error once it has been taken, so
// reconciliation stays paused until the connection is restarted.
var errHalted = errors.New("an earlier fatal error halted the client")

// Core owns the connection handle, the save store and the per-session
// reconciliation state.
type Core struct {
	config     *config.Config
	configPath string
	host       Host
	store      *save.Store
	version    string

	conn      *client.Connection
	lastState client.StateType

	// session is the session seen on the previous tick, used to
	// detect a new connection epoch and reset per-session state.
	session *client.Session

	// received holds every item delivered this session in delivery
	// order; seen dedupes replayed indices.
	received []client.Item
	seen     map[int64]struct{}

	// logBuffer collects prints for the overlay to consume.
	logBuffer []client.Print

	lastItemTime time.Time
	loadTime     time.Time
	loaded       bool

	// locationsSent counts checks reported this session. It starts at
	// zero every session so checks that may have been lost in transit
	// are re-sent.
	locationsSent int

	lastDeathLink time.Time
	sentGoal      bool

	// err is the fatal error latch; while set, live reconciliation is
	// disabled.
	err error

	now func() time.Time
}

// NewCoreOptions carries the collaborators for NewCore.
type NewCoreOptions struct {
	Config     *config.Config
	ConfigPath string
	Host       Host
	Store      *save.Store

	// Version is the running client's version, checked against the
	// version recorded in the config.
	Version string
}

// NewCore creates the core and starts its first connection attempt.
func NewCore(opts NewCoreOptions) *Core {
	c := &Core{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		host:       opts.Host,
		store:      opts.Store,
		version:    opts.Version,
		seen:       make(map[int64]struct{}),
		now:        time.Now,
	}
	c.lastItemTime = c.now()
	c.lastDeathLink = c.now()
	c.conn = c.newConnection()
	return c
}

func (c *Core) newConnection() *client.Connection {
	return client.Connect(client.ConnectOptions{
		URL:      c.config.URL,
		Game:     "Dark Souls III",
		Slot:     c.config.Slot,
		Password: c.config.Password,
		Version:  protocol.NetworkVersion{Major: 0, Minor: 4, Build: 3, Class: "Version"},
	})
}

// State returns the connection's current state type.
func (c *Core) State() client.StateType {
	return c.conn.State()
}

// Reason returns the disconnect reason, or empty unless disconnected.
func (c *Core) Reason() string {
	return c.conn.Reason()
}

// Session returns the live session, or nil unless connected.
func (c *Core) Session() *client.Session {
	return c.conn.Session()
}

// Config returns the current connection configuration.
func (c *Core) Config() *config.Config {
	return c.config
}

// Reconnect tears down the current connection epoch and starts a new
// one with the same configuration. Clears the fatal-error latch.
func (c *Core) Reconnect() {
	if c.conn.State() == client.StateDisconnected {
		c.logPrint(client.NewPrint("Reconnecting..."))
	}
	c.conn.Close()
	c.conn = c.newConnection()
	c.err = nil
}

// UpdateURL changes the server URL, persists the config and
// reconnects.
func (c *Core) UpdateURL(url string) error {
	c.config.URL = url
	if err := c.config.Save(c.configPath); err != nil {
		return err
	}
	c.Reconnect()
	return nil
}

// Close shuts down the connection.
func (c *Core) Close() {
	c.conn.Close()
}

// ConsumeLogs takes and clears the prints buffered for the overlay
// since the last call.
func (c *Core) ConsumeLogs() []client.Print {
	logs := c.logBuffer
	c.logBuffer = nil
	return logs
}

// TakeError takes ownership of the fatal error, if any. Reconciliation
// stays halted until Reconnect is called.
func (c *Core) TakeError() error {
	if c.err == nil || errors.Is(c.err, errHalted) {
		return nil
	}
	err := c.err
	c.err = errHalted
	return err
}

// Update runs one reconciliation tick. Never blocks; any fatal error
// it encounters is latched and surfaced via TakeError.
func (c *Core) Update() {
	c.updateAlways()
	if err := c.updateLive(); err != nil {
		c.err = err
	}
}

// updateAlways drains the connection regardless of whether a game is
// loaded, so chat and connection transitions surface even on the main
// menu.
func (c *Core) updateAlways() {
	c.conn.Update()

	state := c.conn.State()
	if state == client.StateDisconnected && c.lastState != client.StateDisconnected {
		c.logPrint(client.Print{Parts: []client.PrintPart{
			{Text: "Disconnected: ", Color: "red"},
			{Text: c.conn.Reason()},
		}})
	}
	c.lastState = state

	session := c.conn.Session()
	if session != c.session {
		c.session = session
		c.received = nil
		c.seen = make(map[int64]struct{})
		c.locationsSent = 0
		c.sentGoal = false
		c.lastDeathLink = c.now()
		if session != nil {
			c.logPrint(client.NewPrint(fmt.Sprintf("Connected to room %s as %s", session.RoomSeed(), session.PlayerName())))
		}
	}
	if session == nil {
		return
	}

	for _, print := range session.ConsumePrints() {
		log.Info("[server] %s", print.String())
		c.logBuffer = append(c.logBuffer, print)
	}

	for _, item := range session.ConsumeItems() {
		if _, ok := c.seen[item.Index]; ok {
			// Replayed delivery after a reconnect within the same
			// session; index already buffered.
			continue
		}
		c.seen[item.Index] = struct{}{}
		c.received = append(c.received, item)
	}
}

// updateLive runs the in-game reconciliation. It does nothing unless
// connected, and halts entirely once a fatal error is latched.
func (c *Core) updateLive() error {
	session := c.conn.Session()
	if session == nil || c.err != nil {
		return nil
	}

	if !c.host.SessionActive() {
		c.loaded = false
	} else if !c.loaded {
		c.loaded = true
		c.loadTime = c.now()
	}
	if c.loaded && c.now().Sub(c.loadTime) < GracePeriod {
		return nil
	}

	if err := c.checkVersionConflict(); err != nil {
		return err
	}
	if err := c.checkSeedConflict(session); err != nil {
		return err
	}
	if record := c.store.Current(); record != nil && record.Seed() == "" {
		seed := c.config.Seed
		if seed == "" {
			seed = session.RoomSeed()
		}
		record.SetSeed(seed)
	}
	if err := c.checkDLC(session); err != nil {
		return err
	}

	if signal := session.ConsumeDeathSignal(); signal != nil {
		c.receiveDeathSignal(session, signal)
	}
	c.sendDeathSignal(session)

	if err := c.processIncomingItems(session); err != nil {
		return err
	}
	c.processInventoryItems(session)
	c.handleGoal(session)

	return nil
}

// checkVersionConflict errors when the config was generated by a
// different randomizer version than this client.
func (c *Core) checkVersionConflict() error {
	if c.config.ClientVersion != "" && c.config.ClientVersion != c.version {
		return fmt.Errorf(
			"your configuration was generated by randomizer v%s, but this client is v%s; re-run the randomizer with the current version",
			c.config.ClientVersion, c.version)
	}
	return nil
}

// checkSeedConflict errors when the room seed, the save record's seed
// and the configured seed disagree. Any mismatch among sources that
// have a value is a hard conflict.
func (c *Core) checkSeedConflict(session *client.Session) error {
	roomSeed := session.RoomSeed()
	var saveSeed string
	if record := c.store.Current(); record != nil {
		saveSeed = record.Seed()
	}

	switch {
	case c.config.Seed != "" && roomSeed != c.config.Seed:
		return fmt.Errorf(
			"you've connected to a different multiworld than the one your randomizer generated (room seed %s, randomizer seed %s)",
			roomSeed, c.config.Seed)
	case saveSeed != "" && roomSeed != saveSeed:
		return fmt.Errorf(
			"you've connected to a different multiworld than this save file was used with (room seed %s, save file seed %s)",
			roomSeed, saveSeed)
	case saveSeed != "" && c.config.Seed != "" && c.config.Seed != saveSeed:
		return fmt.Errorf(
			"your most recent randomizer run targeted a different multiworld than this save file (randomizer seed %s, save file seed %s)",
			c.config.Seed, saveSeed)
	}
	return nil
}

// checkDLC errors when the slot expects expansion content the game
// doesn't have. Only checked in-game: the game misreports installed
// expansions until a save is loaded.
func (c *Core) checkDLC(session *client.Session) error {
	if !session.SlotData().Options.RequireDLC || c.store.Current() == nil {
		return nil
	}
	if missing := c.host.MissingDLC(); missing != "" {
		return fmt.Errorf("this multiworld requires expansion content but your game is missing %s", missing)
	}
	return nil
}

// receiveDeathSignal kills the player in response to another player's
// death, subject to the debounce grace period.
func (c *Core) receiveDeathSignal(session *client.Session, signal *client.DeathSignal) {
	if !c.allowDeathLink(session) {
		return
	}
	// Our own broadcasts come back to us; never act on those.
	if signal.Source == session.PlayerName() {
		return
	}
	if signal.Time.Sub(c.lastDeathLink) < DeathLinkGracePeriod {
		return
	}
	if _, ok := c.host.PlayerDead(); !ok {
		return
	}

	log.Info("Received death signal from %s", signal.Source)
	c.host.KillPlayer()
	c.lastDeathLink = c.now()
}

// sendDeathSignal broadcasts this player's death to the other
// death-linked players.
func (c *Core) sendDeathSignal(session *client.Session) {
	if !c.allowDeathLink(session) {
		return
	}
	dead, ok := c.host.PlayerDead()
	if !ok || !dead {
		return
	}

	log.Info("Broadcasting death signal")
	session.BroadcastDeathSignal(c.now(), "")
	c.lastDeathLink = c.now()
}

func (c *Core) allowDeathLink(session *client.Session) bool {
	return session.SlotData().Options.DeathLink &&
		c.now().Sub(c.lastDeathLink) >= DeathLinkGracePeriod
}

// processIncomingItems grants at most one not-yet-granted item per
// tick, in delivery order, respecting the grant spacing. The record is
// only advanced after the host's grant action runs, so a crash between
// the two re-grants rather than skips.
func (c *Core) processIncomingItems(session *client.Session) error {
	record := c.store.Current()
	if record == nil {
		return nil
	}

	if record.GrantedCount() > int(session.ReceivedCount()) {
		log.Warn(
			"Save record claims %d granted items but the session has only delivered %d; resetting for re-delivery",
			record.GrantedCount(), session.ReceivedCount())
		record.ResetGranted()
	}

	if !c.loaded || c.now().Sub(c.lastItemTime) < ItemGrantInterval {
		return nil
	}

	for _, item := range c.received {
		if record.IsGranted(item.Index) {
			continue
		}
		if !item.HasLocalID {
			return fmt.Errorf("item %q (id %d) has no local id defined in slot data", item.Name, item.Network.Item)
		}

		source := item.LocationName
		if !item.HasLocation {
			source = "starting inventory"
		}
		log.Info("Granting %s (remote id %d, local id %s, from %s)", item.Name, item.Network.Item, item.LocalID, source)

		if item.LocalID.Category() == items.CategoryGoods && item.LocalID.Value() == gestureGoodsValue {
			c.host.GrantGesture(gestureID, item.LocalID)
		} else {
			c.host.GrantItem(item.LocalID, item.Quantity, -1)
		}

		record.MarkGranted(item.Index)
		c.lastItemTime = c.now()
		break
	}

	return nil
}

// processInventoryItems converts synthetic placeholders in the
// player's inventory into their real rewards and reports the
// corresponding location checks in one batch.
func (c *Core) processInventoryItems(session *client.Session) {
	record := c.store.Current()
	if record == nil {
		return
	}

	for _, placeholder := range c.host.PlaceholderItems() {
		if !placeholder.Inventory.IsSynthetic() {
			continue
		}

		log.Info("Inventory contains synthetic item %s for location %d", placeholder.Inventory, placeholder.Location)
		record.AddLocation(placeholder.Location)

		switch {
		case placeholder.Gesture:
			// The player already saw a pickup notification for the
			// placeholder itself; unlock the gesture silently.
			c.host.SetGestureAcquired(gestureID)
		case placeholder.Real != nil:
			c.host.GiveItem(placeholder.Real.ID, placeholder.Real.Quantity)
		default:
			// A placeholder with no local reward is another player's
			// item; checking the location is all there is to do.
			log.Debug("Synthetic item %s has no local reward", placeholder.Inventory)
		}
		c.host.RemoveItem(placeholder.Inventory, 1)
	}

	// locationsSent only advances when the batch was actually
	// enqueued, so a drop is retried on a later tick.
	if record.LocationCount() > c.locationsSent && session.ReportLocationChecks(record.Locations()) {
		c.locationsSent = record.LocationCount()
	}
}

// handleGoal reports goal completion exactly once per session.
func (c *Core) handleGoal(session *client.Session) {
	if c.sentGoal || !c.host.GoalReached() {
		return
	}
	if !session.ReportGoalReached() {
		return
	}
	log.Info("Goal reached, notifying server")
	c.sentGoal = true
}

func (c *Core) logPrint(print client.Print) {
	log.Info("%s", print.String())
	c.logBuffer = append(c.logBuffer, print)
}
