package client

import (
	"time"

	"github.com/hollowpoint/aplink/pkg/items"
	"github.com/hollowpoint/aplink/pkg/protocol"
)

// Item is one reward delivered by the server, with its names and local
// id already resolved. Immutable once constructed.
type Item struct {
	// Network is the raw entry as the server delivered it.
	Network protocol.NetworkItem

	// Index is the absolute delivery index of this item across the
	// whole session. The server may replay the item list from index 0
	// after a reconnect, so consumers must dedupe by index rather than
	// by list position.
	Index int64

	// Name is the server's display name for the item.
	Name string

	// LocationName is the display name of the location the item came
	// from. Empty with HasLocation false for starting-inventory items.
	LocationName string
	HasLocation  bool

	// LocalID is the game-side id to grant, resolved via slot data.
	// HasLocalID is false when the slot data carries no mapping for
	// the item, which the server guarantees never happens for items
	// addressed to this slot.
	LocalID    items.ID
	HasLocalID bool

	// Quantity is how many instances a single delivery grants.
	Quantity uint32
}

// IsProgression reports whether the item can unlock logical
// advancement.
func (i Item) IsProgression() bool {
	return i.Network.Flags&protocol.ItemFlagProgression != 0
}

// IsUseful reports whether the item is flagged as especially useful.
func (i Item) IsUseful() bool {
	return i.Network.Flags&protocol.ItemFlagUseful != 0
}

// IsTrap reports whether the item is a trap.
func (i Item) IsTrap() bool {
	return i.Network.Flags&protocol.ItemFlagTrap != 0
}

// DeathSignal is a cross-player death notification. Only the most
// recent unconsumed signal is retained.
type DeathSignal struct {
	Time   time.Time
	Source string
	Cause  string
}

// PrintPart is one fragment of a resolved rich-text message.
type PrintPart struct {
	Text  string
	Color string
}

// Print is a rich-text message with all id references already resolved
// against the session's catalog and player list.
type Print struct {
	Parts []PrintPart
}

// NewPrint builds a single-part plain-text print.
func NewPrint(text string) Print {
	return Print{Parts: []PrintPart{{Text: text}}}
}

// String flattens the print to plain text.
func (p Print) String() string {
	var out string
	for _, part := range p.Parts {
		out += part.Text
	}
	return out
}
