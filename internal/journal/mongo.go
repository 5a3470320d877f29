package journal

import (
	"context"
	"errors"
	"fmt"

	"roshamble/internal/db"
	"roshamble/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink stores events in the matchmaking_events collection.
type MongoSink struct {
	database *db.MongoDB
}

func NewMongoSink(database *db.MongoDB) *MongoSink {
	return &MongoSink{database: database}
}

func (s *MongoSink) Append(ctx context.Context, events []models.Event) error {
	docs := make([]interface{}, len(events))
	for i := range events {
		docs[i] = events[i]
	}
	// Unordered so one duplicate seq from a retried batch does not block the rest.
	_, err := s.database.Events().InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicates(err) {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

func (s *MongoSink) Load(ctx context.Context) ([]models.Event, error) {
	cursor, err := s.database.Events().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// Close is a no-op; the connection belongs to the db package.
func (s *MongoSink) Close(context.Context) error {
	return nil
}

func onlyDuplicates(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return len(bwe.WriteErrors) > 0
}
