package repository

import (
	"context"
	"time"

	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongo collections
const (
	CollectionThreads  = "threads"
	CollectionMessages = "messages"
	CollectionReceipts = "receipts"
)

// EnsureIndexes create the indexes the repositories rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionThreads: {
			{
				Keys:    bson.D{{Key: "organization_id", Value: 1}, {Key: "participant_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{
					{Key: "organization_id", Value: 1},
					{Key: "participants.member_id", Value: 1},
					{Key: "last_activity_at", Value: -1},
				},
			},
		},
		CollectionMessages: {
			{
				Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			},
		},
		CollectionReceipts: {
			{
				Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "recipient_id", Value: 1}},
			},
			{
				Keys: bson.D{{Key: "message_id", Value: 1}},
			},
		},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return storageErr(err)
		}
	}
	return nil
}

// storageErr wrap a driver error as transient storage error
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return errprocess.ErrTransientStorage.Wrap(err)
}

// literal keep values from being read as field paths inside pipelines
func literal(v interface{}) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
