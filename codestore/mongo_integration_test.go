//go:build integration

package codestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Run with: MONGO_URI=mongodb://localhost:27017 go test -tags integration ./codestore
func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("nopassword_test_" + uuid.NewString()[:8])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		coll := db.Collection("login_codes_" + uuid.NewString()[:8])
		s, err := NewMongoStore(context.Background(), coll, WithClock(clock.Now))
		if err != nil {
			t.Fatalf("NewMongoStore failed: %v", err)
		}
		return s
	})
}
