package main

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goNoPassword/codestore"
	"github.com/MrEthical07/goNoPassword/internal/appconfig"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openStore returns the configured code store and a function releasing its
// connections.
func openStore(ctx context.Context, settings *appconfig.Settings, logger *zap.Logger) (codestore.Store, func(), error) {
	s := settings.Store
	// Keep backend-side copies at least as long as Prune would.
	retention := settings.Engine.Code.TTL + settings.Engine.Code.PruneGrace
	noop := func() {}

	switch s.Driver {
	case "memory":
		logger.Warn("using the in-memory code store; codes are lost on restart")
		return codestore.NewMemoryStore(), noop, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{s.RedisAddr},
			Password: s.RedisPassword,
			DB:       s.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		store := codestore.NewRedisStore(client,
			codestore.WithKeyPrefix(s.KeyPrefix),
			codestore.WithRetention(retention),
		)
		return store, func() { _ = client.Close() }, nil

	case "sqlite", "postgres":
		dialector := sqlite.Open(s.DSN)
		if s.Driver == "postgres" {
			dialector = postgres.Open(s.DSN)
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, noop, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, noop, err
		}
		if s.Driver == "sqlite" {
			// sqlite serializes writers; one connection avoids SQLITE_BUSY.
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxOpenConns(20)
			sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		}
		store, err := codestore.NewGormStore(db)
		if err != nil {
			_ = sqlDB.Close()
			return nil, noop, err
		}
		return store, func() { _ = sqlDB.Close() }, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.MongoURI))
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		coll := client.Database(s.MongoDatabase).Collection(s.MongoCollection)
		store, err := codestore.NewMongoStore(ctx, coll)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		return store, closeFn, nil
	}

	return nil, noop, errors.New("unsupported store driver")
}
