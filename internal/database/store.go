package database

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/parley/internal/config"
	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"go.uber.org/zap"
)

// Store is the persistence backend shared by the account and message services.
type Store interface {
	users.Repository
	messages.Repository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MongoStore)(nil)
)

// Open selects the backend named by cfg.DatabaseDriver.
func Open(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (Store, error) {
	switch cfg.DatabaseDriver {
	case config.DatabaseDriverSQLite, "":
		db, err := OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db), nil
	case config.DatabaseDriverMongo:
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoName, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
