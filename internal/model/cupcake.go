package model

import "time"

// Cupcake is the one business entity of the API. Every cupcake belongs to
// the user whose bearer token created it.
//
// The `json:"..."` tags tell Go's encoding/json package how to serialize
// this struct, e.g.
//
//	{"id":"cv37rs3pp9olc6atsptg","title":"Red Velvet","flavor":"cocoa","stars":5,"userId":"..."}
type Cupcake struct {
	ID        string    `json:"id"        db:"id"`
	Title     string    `json:"title"     db:"title"`
	Flavor    string    `json:"flavor"    db:"flavor"`
	Stars     int       `json:"stars"     db:"stars"`
	UserID    string    `json:"userId"    db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
