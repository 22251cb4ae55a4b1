package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cupcakes/internal/model"
	"github.com/sakif/cupcakes/internal/repository"
)

var _ repository.CupcakeRepository = (*CupcakeDB)(nil)

// CupcakeDB is the cupcakes table.
type CupcakeDB struct {
	conn *sql.DB
}

// Create inserts cupcake, filling in ID and timestamps.
//
// xid IDs are 20 URL-safe characters and sort by creation time, which is
// what List relies on to break created_at ties.
func (c *CupcakeDB) Create(ctx context.Context, cupcake *model.Cupcake) error {
	cupcake.ID = xid.New().String()
	now := time.Now().UTC()
	cupcake.CreatedAt = now
	cupcake.UpdatedAt = now

	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO cupcakes (id, title, flavor, stars, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cupcake.ID,
		cupcake.Title,
		cupcake.Flavor,
		cupcake.Stars,
		cupcake.UserID,
		cupcake.CreatedAt,
		cupcake.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating cupcake: %w", err)
	}
	return nil
}

// List returns all cupcakes, oldest first.
func (c *CupcakeDB) List(ctx context.Context) ([]model.Cupcake, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT id, title, flavor, stars, user_id, created_at, updated_at
		 FROM cupcakes
		 ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing cupcakes: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty table encodes as [] rather than null.
	cupcakes := []model.Cupcake{}
	for rows.Next() {
		var cc model.Cupcake
		if err := rows.Scan(
			&cc.ID,
			&cc.Title,
			&cc.Flavor,
			&cc.Stars,
			&cc.UserID,
			&cc.CreatedAt,
			&cc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning cupcake: %w", err)
		}
		cupcakes = append(cupcakes, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating cupcakes: %w", err)
	}

	return cupcakes, nil
}
