// Package repository defines the storage contracts of the cupcakes API.
//
// Handlers and services only ever see these interfaces; the sqlite package
// implements them, and tests swap in fakes.
package repository

import (
	"context"

	"github.com/sakif/cupcakes/internal/model"
)

// UserRepository stores the local accounts reconciled from identity claims.
type UserRepository interface {
	// Upsert creates the user keyed by Username, or refreshes Name and Email
	// of the existing row. Either way user is overwritten with the stored
	// record, so the caller always ends up with the canonical ID and
	// timestamps. Concurrent calls for one username yield one row.
	Upsert(ctx context.Context, user *model.User) error

	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// CupcakeRepository stores cupcakes.
type CupcakeRepository interface {
	// Create assigns ID and timestamps and inserts cupcake. UserID must
	// reference an existing user.
	Create(ctx context.Context, cupcake *model.Cupcake) error

	// List returns every cupcake, oldest first. An empty table yields an
	// empty, non-nil slice.
	List(ctx context.Context) ([]model.Cupcake, error)
}
