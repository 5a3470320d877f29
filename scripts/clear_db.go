package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"roshamble/internal/config"
	"roshamble/internal/db"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// Wipes the matchmaking journal and match archive of the selected environment.
func main() {
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.ArchiveEnabled() {
		mongodb, err := db.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to MongoDB: %v\n", err)
			os.Exit(1)
		}
		defer mongodb.Close(ctx)

		eventsResult, err := mongodb.Events().DeleteMany(ctx, bson.M{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to delete events: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d journal events\n", eventsResult.DeletedCount)

		archiveResult, err := mongodb.MatchArchive().DeleteMany(ctx, bson.M{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to delete archived matches: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d archived matches\n", archiveResult.DeletedCount)
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid redis url: %v\n", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		deleted, err := client.Del(ctx, cfg.Redis.Stream).Result()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to delete stream %s: %v\n", cfg.Redis.Stream, err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d redis stream(s)\n", deleted)
	}

	fmt.Println("Matchmaking storage cleared")
}
