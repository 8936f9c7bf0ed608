package models

import "time"

// Player identifies the actor behind a session.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// Tile the player currently stands on; pickups are range-checked
	// against it.
	Position Position `json:"position"`

	// Connection state
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`

	SessionID string `json:"session_id,omitempty"`
}

// DisplayName returns the username, falling back to the id.
func (p *Player) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	return p.ID
}

// IsConnected checks if the player is currently connected
func (p *Player) IsConnected() bool {
	return p.Connected
}
