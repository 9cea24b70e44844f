package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// models lists every table owned by this service, in creation order.
var models = []any{
	(*User)(nil),
}

// CreateSchema creates any missing tables. Existing tables are left untouched.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}

// DropSchema removes every table owned by this service.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", models[i], err)
		}
	}
	return nil
}
