package appconfig

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/RobinCoderZhao/optimist-daily/internal/prefs"
	"github.com/RobinCoderZhao/optimist-daily/internal/user"
	"github.com/RobinCoderZhao/optimist-daily/pkg/storage"
)

// Stores bundles the opened persistence layers.
type Stores struct {
	DB    *storage.DB
	Users *user.Store
	Prefs prefs.Store

	mongo *mongo.Client
}

// OpenStores opens and migrates the SQLite database and connects the
// configured preference backend.
func (c Config) OpenStores(ctx context.Context) (*Stores, error) {
	db, err := storage.Open(c.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, user.Schema, prefs.Schema); err != nil {
		db.Close()
		return nil, err
	}

	st := &Stores{DB: db, Users: user.NewStore(db)}
	switch c.Preferences.Backend {
	case BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, mdb, err := prefs.ConnectMongo(connectCtx, c.Preferences.MongoURI, c.Preferences.MongoDatabase)
		if err != nil {
			db.Close()
			return nil, err
		}
		st.mongo = client
		st.Prefs = prefs.NewMongoStore(mdb)
	default:
		st.Prefs = prefs.NewSQLiteStore(db)
	}
	slog.Info("stores ready", "database", c.Database.DSN, "preferences", c.Preferences.Backend)
	return st, nil
}

// Close releases every store.
func (s *Stores) Close() error {
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongo.Disconnect(ctx); err != nil {
			s.DB.Close()
			return fmt.Errorf("disconnect mongo: %w", err)
		}
	}
	return s.DB.Close()
}
