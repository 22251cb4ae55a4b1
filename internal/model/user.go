// Package model defines the records the API stores and returns.
// They are plain structs with no behavior; persistence lives in repository.
package model

import "time"

// User is the local account reconciled from an identity provider claim.
//
// WHY Username AS THE KEY?
// The identity provider hands us a nickname on every login. We store it as
// Username and put a UNIQUE constraint on it, so one nickname maps to exactly
// one row no matter how many times (or how concurrently) the user logs in.
//
// Name and Email are denormalized copies of the claim. The claim is
// authoritative: they are overwritten on every claim-bearing request.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Username  string    `json:"username"  db:"username"` // external nickname
	Name      string    `json:"name"      db:"name"`
	Email     string    `json:"email"     db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
