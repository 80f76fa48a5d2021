package types

import "time"

const (
	MaxContentLength = 1000
	DefaultListLimit = 50
)

// Message board posting
type Message struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"` // callsign of the poster
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}
