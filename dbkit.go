// Package dbkit exposes a process-wide Database and the migration entry
// point.
//
//	if err := dbkit.Db.Connect(ctx, cfg); err != nil {
//		return err
//	}
//	defer dbkit.Db.Disconnect()
//
//	users, err := dbkit.Db.Table("users")
//
// Applications that need more than one connection create their own with
// database.New.
package dbkit

import (
	"context"

	"github.com/deppfellow/dbkit/pkg/database"
	"github.com/rs/zerolog"
)

// Db is the shared Database.
var Db = database.New()

// Migrate applies every pending migration described by cfg.Migrations and
// closes its connection afterwards. logger is optional.
func Migrate(ctx context.Context, cfg database.Config, logger ...*zerolog.Logger) error {
	var l *zerolog.Logger
	if len(logger) > 0 {
		l = logger[0]
	}
	return database.Migrate(ctx, cfg, l)
}
