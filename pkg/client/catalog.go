package client

import (
	"fmt"

	"github.com/hollowpoint/aplink/pkg/log"
	"github.com/hollowpoint/aplink/pkg/protocol"
)

// Catalog is the inverted name catalog from the server's data package:
// numeric item and location ids mapped to display names across every
// game in the room.
type Catalog struct {
	itemNames     map[int64]string
	locationNames map[int64]string
}

// NewCatalog inverts the data package's name-to-id tables.
func NewCatalog(data *protocol.DataPackageObject) *Catalog {
	c := &Catalog{
		itemNames:     make(map[int64]string),
		locationNames: make(map[int64]string),
	}
	for _, game := range data.Games {
		for name, id := range game.ItemNameToID {
			c.itemNames[id] = name
		}
		for name, id := range game.LocationNameToID {
			c.locationNames[id] = name
		}
	}
	return c
}

// ItemName returns the display name for an item id. The catalog is
// expected to cover every id the server delivers; an id without a name
// is logged and rendered as a placeholder instead of failing.
func (c *Catalog) ItemName(id int64) string {
	if name, ok := c.itemNames[id]; ok {
		return name
	}
	log.Warn("Item id %d has no name in the data package", id)
	return fmt.Sprintf("Unknown item %d", id)
}

// LocationName returns the display name for a location id, or false if
// the id has no location. Items granted from starting inventory
// legitimately have none.
func (c *Catalog) LocationName(id int64) (string, bool) {
	name, ok := c.locationNames[id]
	return name, ok
}
