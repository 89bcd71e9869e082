package client

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/hollowpoint/aplink/pkg/items"
)

// SlotData is the per-slot configuration delivered in the Connected
// handshake. It tells the client how to translate the server's item
// ids into the ids the game understands.
type SlotData struct {
	// ItemIDs maps the server's item ids to the game's categorized
	// item ids.
	ItemIDs map[int64]items.ID

	// ItemCounts maps the server's item ids to the quantity a single
	// delivery of that id should grant. Ids not present grant one.
	ItemCounts map[int64]uint32

	// Options are the settings the player generated this slot with.
	Options SlotOptions
}

// SlotOptions are the player-chosen settings that affect client
// behavior.
type SlotOptions struct {
	// DeathLink kills this player when other players die and vice
	// versa.
	DeathLink bool

	// RequireDLC means the slot was generated expecting the game's
	// expansion content to be installed.
	RequireDLC bool
}

// rawSlotData matches the wire shape: object keys are decimal strings
// and booleans are encoded as integers.
type rawSlotData struct {
	ItemIDs    map[string]uint32 `json:"apIdsToItemIds"`
	ItemCounts map[string]uint32 `json:"itemCounts"`
	Options    struct {
		DeathLink int `json:"death_link"`
		EnableDLC int `json:"enable_dlc"`
	} `json:"options"`
}

// ParseSlotData decodes the slot data payload from the Connected
// handshake.
func ParseSlotData(data json.RawMessage) (*SlotData, error) {
	var raw rawSlotData
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to deserialize slot data: %v", err)
	}

	slotData := &SlotData{
		ItemIDs:    make(map[int64]items.ID, len(raw.ItemIDs)),
		ItemCounts: make(map[int64]uint32, len(raw.ItemCounts)),
		Options: SlotOptions{
			DeathLink:  raw.Options.DeathLink != 0,
			RequireDLC: raw.Options.EnableDLC != 0,
		},
	}

	for key, id := range raw.ItemIDs {
		remoteID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid item id key %q in slot data: %v", key, err)
		}
		slotData.ItemIDs[remoteID] = items.ID(id)
	}
	for key, count := range raw.ItemCounts {
		remoteID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid item count key %q in slot data: %v", key, err)
		}
		slotData.ItemCounts[remoteID] = count
	}

	return slotData, nil
}
