package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/blagoySimandov/certmapper/internal/state"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return state.CreateSchema(ctx, db)
	}, func(ctx context.Context, db *bun.DB) error {
		return state.DropSchema(ctx, db)
	})
}
