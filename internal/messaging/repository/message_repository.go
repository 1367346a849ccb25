package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition message storage
type MessageRepository interface {
	// AppendMessage persist msg and bump the thread's last activity.
	// Unknown thread or non-participant sender is ErrInvalidReference.
	AppendMessage(ctx context.Context, msg *domain.Message) error
	FindMessage(ctx context.Context, messageID string) (*domain.Message, error)
	// SoftDeleteMessage set deleted_at once, later calls keep the first value
	SoftDeleteMessage(ctx context.Context, messageID string, at time.Time) (*domain.Message, error)
	// ListMessages newest first, strictly after cursor
	ListMessages(ctx context.Context, threadID string, cursor *domain.Cursor, limit int) ([]domain.Message, error)
	// SearchMessages case-insensitive substring match over non-deleted messages, newest first
	SearchMessages(ctx context.Context, threadID, query string, limit int) ([]domain.Message, error)
}

type mongoMessageRepository struct {
	threadsColl  *mongo.Collection
	messagesColl *mongo.Collection
}

// NewMongoMessageRepository create new mongo message repository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{
		threadsColl:  db.Collection(CollectionThreads),
		messagesColl: db.Collection(CollectionMessages),
	}
}

func (r *mongoMessageRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	defer observe("message.append")()

	if msg == nil || msg.ID == "" {
		return errprocess.ErrInvalidParams
	}

	var thread domain.Thread
	err := r.threadsColl.FindOne(ctx, bson.M{"_id": msg.ThreadID}).Decode(&thread)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errprocess.ErrInvalidReference
	}
	if err != nil {
		return storageErr(err)
	}
	if !thread.HasParticipant(msg.SenderID) {
		return errprocess.ErrInvalidReference
	}

	if _, err := r.messagesColl.InsertOne(ctx, msg); err != nil {
		return storageErr(err)
	}

	_, err = r.threadsColl.UpdateOne(ctx,
		bson.M{"_id": msg.ThreadID},
		bson.M{"$max": bson.M{"last_activity_at": msg.CreatedAt}},
	)
	return storageErr(err)
}

func (r *mongoMessageRepository) FindMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	defer observe("message.find")()

	var msg domain.Message
	err := r.messagesColl.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errprocess.ErrMessageNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &msg, nil
}

func (r *mongoMessageRepository) SoftDeleteMessage(ctx context.Context, messageID string, at time.Time) (*domain.Message, error) {
	defer observe("message.delete")()

	_, err := r.messagesColl.UpdateOne(ctx,
		bson.M{"_id": messageID, "deleted_at": nil},
		bson.M{"$set": bson.M{"deleted_at": at}},
	)
	if err != nil {
		return nil, storageErr(err)
	}
	return r.FindMessage(ctx, messageID)
}

func (r *mongoMessageRepository) ListMessages(ctx context.Context, threadID string, cursor *domain.Cursor, limit int) ([]domain.Message, error) {
	defer observe("message.list")()

	filter := bson.M{"thread_id": threadID}
	if cursor != nil {
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": cursor.CreatedAt}},
			bson.M{"created_at": cursor.CreatedAt, "_id": bson.M{"$lt": cursor.ID}},
		}
	}
	return r.find(ctx, filter, limit)
}

func (r *mongoMessageRepository) SearchMessages(ctx context.Context, threadID, query string, limit int) ([]domain.Message, error) {
	defer observe("message.search")()

	filter := bson.M{
		"thread_id":  threadID,
		"deleted_at": nil,
		"content": bson.M{
			"$regex":   regexp.QuoteMeta(query),
			"$options": "i",
		},
	}
	return r.find(ctx, filter, limit)
}

func (r *mongoMessageRepository) find(ctx context.Context, filter bson.M, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.messagesColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr(err)
	}
	messages := []domain.Message{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, storageErr(err)
	}
	return messages, nil
}
