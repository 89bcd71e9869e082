package core

import "github.com/hollowpoint/aplink/pkg/items"

// Host is the surface the game integration exposes to the core. Every
// method is called from the host's game-logic thread and must apply
// its effect synchronously.
type Host interface {
	// SessionActive reports whether a game session is currently
	// loaded. It gates all save-record access and in-game side
	// effects.
	SessionActive() bool

	// GrantItem gives the player an item through the game's normal
	// reward path, including its pickup notification. Durability -1 is
	// the game's sentinel for full durability.
	GrantItem(id items.ID, quantity uint32, durability int32)

	// GrantGesture unlocks a gesture through the reward path, showing
	// the source item's pickup notification.
	GrantGesture(gestureID int, source items.ID)

	// SetGestureAcquired unlocks a gesture silently, without a pickup
	// notification.
	SetGestureAcquired(gestureID int)

	// GiveItem adds an item directly to the inventory without the
	// reward path's notification.
	GiveItem(id items.ID, quantity uint32)

	// RemoveItem removes an item from the player's inventory.
	RemoveItem(id items.ID, quantity uint32)

	// PlaceholderItems lists the synthetic entries currently in the
	// player's inventory, resolved against their param rows.
	PlaceholderItems() []items.Placeholder

	// PlayerDead reports whether the player character is dead. The
	// second result is false when no player character is loaded.
	PlayerDead() (dead bool, ok bool)

	// KillPlayer kills the player character immediately.
	KillPlayer()

	// GoalReached reports whether the game flag marking this player's
	// goal has been set.
	GoalReached() bool

	// MissingDLC returns a description of required expansion content
	// that is not installed, or empty when nothing is missing.
	MissingDLC() string
}
