package entity

// Player identifies one participant of a match.
type Player struct {
	ID   int64  `json:"userId"`
	Mark string `json:"mark,omitempty"`
}
