// Package items models the game's categorized item ids and the
// synthetic id ranges the randomizer injects into them. A synthetic
// item is a locally-injected stand-in that encodes a remote reward; it
// is detected purely by its numeric id.
package items

import "fmt"

// Category is the high nibble of a categorized item id.
type Category uint8

const (
	CategoryWeapon    Category = 0x0
	CategoryProtector Category = 0x1
	CategoryAccessory Category = 0x2
	CategoryGoods     Category = 0x4
)

func (c Category) String() string {
	switch c {
	case CategoryWeapon:
		return "weapon"
	case CategoryProtector:
		return "protector"
	case CategoryAccessory:
		return "accessory"
	case CategoryGoods:
		return "goods"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// ID is a categorized item id: the category in the top four bits and
// the uncategorized param id in the rest.
type ID uint32

// NewID builds a categorized id from a category and param id.
func NewID(category Category, value uint32) ID {
	return ID(uint32(category)<<28 | value&0x0FFFFFFF)
}

// Category returns the id's category nibble.
func (id ID) Category() Category {
	return Category(id >> 28)
}

// Value returns the uncategorized param id.
func (id ID) Value() uint32 {
	return uint32(id) & 0x0FFFFFFF
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.Category(), id.Value())
}

// syntheticFloor is the highest vanilla param id per category. Ids
// above the floor are rows the randomizer appended to the game's param
// tables, so anything past it is a synthetic item.
var syntheticFloor = map[Category]uint32{
	CategoryWeapon:    23010000,
	CategoryProtector: 99003000,
	CategoryAccessory: 3780000,
	CategoryGoods:     3780000,
}

// IsSynthetic reports whether the id falls in a synthetic range.
func (id ID) IsSynthetic() bool {
	floor, ok := syntheticFloor[id.Category()]
	if !ok {
		return false
	}
	return id.Value() > floor
}

// PackLocationID reassembles a remote location id from the two unused
// 32-bit param fields it is split across in a synthetic row.
func PackLocationID(low, high uint32) int64 {
	return int64(low) + int64(high)<<32
}

// Grant is a concrete in-game reward: an id and how many of it to
// give.
type Grant struct {
	ID       ID
	Quantity uint32
}

// Placeholder is one synthetic entry found in the player's inventory,
// already resolved by the host against its param row.
type Placeholder struct {
	// Inventory is the synthetic id sitting in the inventory.
	Inventory ID

	// Location is the remote location id encoded in the row.
	Location int64

	// Real is the local item the placeholder stands for, or nil if the
	// reward belongs to another player's game and has no local
	// equivalent.
	Real *Grant

	// Gesture is set when the placeholder unlocks a gesture rather
	// than an inventory item.
	Gesture bool
}
