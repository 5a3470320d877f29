package db

import (
	"context"
	"fmt"
	"time"

	"roshamble/internal/logger"
	"roshamble/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDB(uri, database string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := &MongoDB{
		Client:   client,
		Database: client.Database(database),
	}

	// The journal relies on the unique seq index, so this one is not backgrounded.
	if err := db.ensureIndexes(); err != nil {
		return nil, err
	}

	return db, nil
}

func (m *MongoDB) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{
			"matchmaking_events",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
				{Keys: bson.D{{Key: "at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(24 * 3600)},
			},
		},
		{
			"match_archive",
			[]mongo.IndexModel{
				{Keys: bson.D{{Key: "players.id", Value: 1}, {Key: "createdAt", Value: -1}}},
				{Keys: bson.D{{Key: "mode", Value: 1}, {Key: "status", Value: 1}}},
			},
		},
	}

	for _, idx := range indexes {
		coll := m.Database.Collection(idx.collection)
		if _, err := coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", idx.collection, err)
		}
	}

	logger.Info("database indexes ensured")
	return nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) Events() *mongo.Collection {
	return m.Database.Collection("matchmaking_events")
}

func (m *MongoDB) MatchArchive() *mongo.Collection {
	return m.Database.Collection("match_archive")
}

// ArchiveMatch upserts a resolved match keyed by its id, so a replayed
// resolution overwrites rather than duplicates.
func (m *MongoDB) ArchiveMatch(ctx context.Context, match *models.Match) error {
	_, err := m.MatchArchive().ReplaceOne(ctx,
		bson.M{"_id": match.ID},
		match,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to archive match %s: %w", match.ID, err)
	}
	return nil
}

// ArchivedMatchesForPlayer returns the most recent resolved matches a player took part in.
func (m *MongoDB) ArchivedMatchesForPlayer(ctx context.Context, playerID string, limit int64) ([]models.Match, error) {
	cursor, err := m.MatchArchive().Find(ctx,
		bson.M{"players.id": playerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query match archive: %w", err)
	}
	defer cursor.Close(ctx)

	var matches []models.Match
	if err := cursor.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("failed to decode archived matches: %w", err)
	}
	return matches, nil
}
