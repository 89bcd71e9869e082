// Package protocol defines the typed wire messages exchanged with a
// multiworld session server. The wire encoding is a fixed external
// contract: each websocket frame carries a JSON array of command
// objects discriminated by their "cmd" field.
package protocol

import "encoding/json"

// Server command discriminants.
const (
	CmdRoomInfo          = "RoomInfo"
	CmdDataPackage       = "DataPackage"
	CmdConnected         = "Connected"
	CmdConnectionRefused = "ConnectionRefused"
	CmdReceivedItems     = "ReceivedItems"
	CmdPrintJSON         = "PrintJSON"
	CmdBounced           = "Bounced"
)

// Client command discriminants.
const (
	CmdConnect        = "Connect"
	CmdGetDataPackage = "GetDataPackage"
	CmdSay            = "Say"
	CmdLocationChecks = "LocationChecks"
	CmdStatusUpdate   = "StatusUpdate"
	CmdBounce         = "Bounce"
)

// ServerMessage is implemented by every message the server can send.
type ServerMessage interface {
	ServerCmd() string
}

// ClientMessage is implemented by every message the client can send.
type ClientMessage interface {
	ClientCmd() string
}

// NetworkVersion identifies a protocol version in handshake messages.
type NetworkVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

// ItemFlags is a bitmask describing an item's gameplay significance.
type ItemFlags int64

const (
	ItemFlagProgression ItemFlags = 1 << iota
	ItemFlagUseful
	ItemFlagTrap
)

// NetworkItem is one item entry as delivered by the server.
type NetworkItem struct {
	Item     int64     `json:"item"`
	Location int64     `json:"location"`
	Player   int       `json:"player"`
	Flags    ItemFlags `json:"flags"`
}

// NetworkPlayer identifies one player slot in the session.
type NetworkPlayer struct {
	Team  int    `json:"team"`
	Slot  int    `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

// GameData is the name catalog for a single game: display names keyed
// by the numeric ids the rest of the protocol uses.
type GameData struct {
	ItemNameToID     map[string]int64 `json:"item_name_to_id"`
	LocationNameToID map[string]int64 `json:"location_name_to_id"`
	Checksum         string           `json:"checksum"`
}

// DataPackageObject holds the name catalogs for every game the server
// knows about.
type DataPackageObject struct {
	Games map[string]GameData `json:"games"`
}

// RoomInfo is the first message the server sends after the websocket
// connection is established.
type RoomInfo struct {
	Cmd      string         `json:"cmd"`
	Version  NetworkVersion `json:"version"`
	Tags     []string       `json:"tags"`
	Password bool           `json:"password"`
	HintCost int            `json:"hint_cost"`
	Games    []string       `json:"games"`
	SeedName string         `json:"seed_name"`
	Time     float64        `json:"time"`
}

func (m *RoomInfo) ServerCmd() string { return CmdRoomInfo }

// DataPackage is the server's response to GetDataPackage.
type DataPackage struct {
	Cmd  string            `json:"cmd"`
	Data DataPackageObject `json:"data"`
}

func (m *DataPackage) ServerCmd() string { return CmdDataPackage }

// Connected is the successful response to a Connect handshake.
type Connected struct {
	Cmd              string          `json:"cmd"`
	Team             int             `json:"team"`
	Slot             int             `json:"slot"`
	Players          []NetworkPlayer `json:"players"`
	MissingLocations []int64         `json:"missing_locations"`
	CheckedLocations []int64         `json:"checked_locations"`
	SlotData         json.RawMessage `json:"slot_data"`
}

func (m *Connected) ServerCmd() string { return CmdConnected }

// ConnectionRefused is the failed response to a Connect handshake.
type ConnectionRefused struct {
	Cmd    string   `json:"cmd"`
	Errors []string `json:"errors"`
}

func (m *ConnectionRefused) ServerCmd() string { return CmdConnectionRefused }

// ReceivedItems delivers a batch of items. Index is the absolute
// delivery index of the first item in the batch; the server may replay
// the full list from index 0 after a reconnect.
type ReceivedItems struct {
	Cmd   string        `json:"cmd"`
	Index int64         `json:"index"`
	Items []NetworkItem `json:"items"`
}

func (m *ReceivedItems) ServerCmd() string { return CmdReceivedItems }

// JSONMessagePart is one fragment of a rich-text print. Non-text parts
// reference ids that must be resolved against the name catalog.
type JSONMessagePart struct {
	Type   string `json:"type,omitempty"`
	Text   string `json:"text,omitempty"`
	Color  string `json:"color,omitempty"`
	Player int    `json:"player,omitempty"`
	Flags  int64  `json:"flags,omitempty"`
}

// Message part types that carry an id in Text instead of literal text.
const (
	PartTypeItemID     = "item_id"
	PartTypeLocationID = "location_id"
	PartTypePlayerID   = "player_id"
)

// PrintJSON is a rich-text message from the server or another client.
type PrintJSON struct {
	Cmd  string            `json:"cmd"`
	Data []JSONMessagePart `json:"data"`
	Type string            `json:"type,omitempty"`
}

func (m *PrintJSON) ServerCmd() string { return CmdPrintJSON }

// Bounced is a broadcast relayed from another client, matched by tag.
type Bounced struct {
	Cmd   string          `json:"cmd"`
	Games []string        `json:"games,omitempty"`
	Slots []int           `json:"slots,omitempty"`
	Tags  []string        `json:"tags,omitempty"`
	Data  json.RawMessage `json:"data"`
}

func (m *Bounced) ServerCmd() string { return CmdBounced }

// Unknown preserves a message whose command this client does not
// understand. Consumers are expected to ignore it.
type Unknown struct {
	Cmd string
	Raw json.RawMessage
}

func (m *Unknown) ServerCmd() string { return m.Cmd }

// DeathLinkData is the Bounce payload used by the death-link tag.
type DeathLinkData struct {
	Time   float64 `json:"time"`
	Source string  `json:"source"`
	Cause  string  `json:"cause,omitempty"`
}

// TagDeathLink is the Bounce tag that carries DeathLinkData.
const TagDeathLink = "DeathLink"

// Items-handling flags sent in the Connect handshake.
const (
	ItemsHandlingOtherWorlds       = 0b001
	ItemsHandlingOwnWorld          = 0b010
	ItemsHandlingStartingInventory = 0b100
)

// Connect is the authenticated handshake request.
type Connect struct {
	Cmd           string         `json:"cmd"`
	Game          string         `json:"game"`
	Name          string         `json:"name"`
	Password      string         `json:"password"`
	UUID          string         `json:"uuid"`
	Version       NetworkVersion `json:"version"`
	ItemsHandling int            `json:"items_handling"`
	Tags          []string       `json:"tags"`
	SlotData      bool           `json:"slot_data"`
}

func (m *Connect) ClientCmd() string { return CmdConnect }

// GetDataPackage requests the name catalog. A nil Games slice requests
// the catalog for every game in the room.
type GetDataPackage struct {
	Cmd   string   `json:"cmd"`
	Games []string `json:"games,omitempty"`
}

func (m *GetDataPackage) ClientCmd() string { return CmdGetDataPackage }

// Say broadcasts a chat message to the session.
type Say struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text"`
}

func (m *Say) ClientCmd() string { return CmdSay }

// LocationChecks reports locations the player has checked.
type LocationChecks struct {
	Cmd       string  `json:"cmd"`
	Locations []int64 `json:"locations"`
}

func (m *LocationChecks) ClientCmd() string { return CmdLocationChecks }

// ClientStatus values for StatusUpdate.
const (
	ClientStatusReady   = 10
	ClientStatusPlaying = 20
	ClientStatusGoal    = 30
)

// StatusUpdate reports the client's session status, including goal
// completion.
type StatusUpdate struct {
	Cmd    string `json:"cmd"`
	Status int    `json:"status"`
}

func (m *StatusUpdate) ClientCmd() string { return CmdStatusUpdate }

// Bounce broadcasts a payload to other clients matched by game, slot
// or tag.
type Bounce struct {
	Cmd   string          `json:"cmd"`
	Games []string        `json:"games,omitempty"`
	Slots []int           `json:"slots,omitempty"`
	Tags  []string        `json:"tags,omitempty"`
	Data  json.RawMessage `json:"data"`
}

func (m *Bounce) ClientCmd() string { return CmdBounce }

// NewSay creates a Say command.
func NewSay(text string) *Say {
	return &Say{Cmd: CmdSay, Text: text}
}

// NewLocationChecks creates a LocationChecks command.
func NewLocationChecks(locations []int64) *LocationChecks {
	return &LocationChecks{Cmd: CmdLocationChecks, Locations: locations}
}

// NewStatusUpdate creates a StatusUpdate command.
func NewStatusUpdate(status int) *StatusUpdate {
	return &StatusUpdate{Cmd: CmdStatusUpdate, Status: status}
}

// NewGetDataPackage creates a GetDataPackage command.
func NewGetDataPackage(games []string) *GetDataPackage {
	return &GetDataPackage{Cmd: CmdGetDataPackage, Games: games}
}

// NewDeathLinkBounce creates a Bounce command carrying a death-link
// payload.
func NewDeathLinkBounce(data DeathLinkData) (*Bounce, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Bounce{Cmd: CmdBounce, Tags: []string{TagDeathLink}, Data: payload}, nil
}
