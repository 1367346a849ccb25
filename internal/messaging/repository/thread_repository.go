package repository

import (
	"context"
	"errors"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ThreadRepository definition thread storage
type ThreadRepository interface {
	// FindOrCreateThread create the thread unless the organization already
	// has one for the same participant set, in which case that one is returned.
	FindOrCreateThread(ctx context.Context, thread *domain.Thread) (*domain.Thread, bool, error)
	FindByID(ctx context.Context, threadID string) (*domain.Thread, error)
	// ListByParticipant threads of memberID in organizationID, last activity desc
	ListByParticipant(ctx context.Context, organizationID, memberID string) ([]domain.Thread, error)
	// ListIDsByParticipant thread ids of memberID across organizations
	ListIDsByParticipant(ctx context.Context, memberID string) ([]string, error)
}

type mongoThreadRepository struct {
	threadsColl *mongo.Collection
}

// NewMongoThreadRepository create new mongo thread repository
func NewMongoThreadRepository(db *mongo.Database) ThreadRepository {
	return &mongoThreadRepository{
		threadsColl: db.Collection(CollectionThreads),
	}
}

func (r *mongoThreadRepository) FindOrCreateThread(ctx context.Context, thread *domain.Thread) (*domain.Thread, bool, error) {
	defer observe("thread.find_or_create")()

	if err := validateThread(thread); err != nil {
		return nil, false, err
	}

	_, err := r.threadsColl.InsertOne(ctx, thread)
	if err == nil {
		return thread, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, storageErr(err)
	}

	// 同一組成員已存在 thread
	var existing domain.Thread
	filter := bson.M{
		"organization_id": thread.OrganizationID,
		"participant_key": thread.ParticipantKey,
	}
	if err := r.threadsColl.FindOne(ctx, filter).Decode(&existing); err != nil {
		return nil, false, storageErr(err)
	}
	return &existing, false, nil
}

func (r *mongoThreadRepository) FindByID(ctx context.Context, threadID string) (*domain.Thread, error) {
	defer observe("thread.find")()

	var thread domain.Thread
	err := r.threadsColl.FindOne(ctx, bson.M{"_id": threadID}).Decode(&thread)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errprocess.ErrThreadNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &thread, nil
}

func (r *mongoThreadRepository) ListByParticipant(ctx context.Context, organizationID, memberID string) ([]domain.Thread, error) {
	defer observe("thread.list")()

	filter := bson.M{
		"organization_id":        organizationID,
		"participants.member_id": memberID,
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "last_activity_at", Value: -1},
		{Key: "_id", Value: -1},
	})

	cur, err := r.threadsColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, storageErr(err)
	}
	threads := []domain.Thread{}
	if err := cur.All(ctx, &threads); err != nil {
		return nil, storageErr(err)
	}
	return threads, nil
}

func (r *mongoThreadRepository) ListIDsByParticipant(ctx context.Context, memberID string) ([]string, error) {
	defer observe("thread.list_ids")()

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.threadsColl.Find(ctx, bson.M{"participants.member_id": memberID}, opts)
	if err != nil {
		return nil, storageErr(err)
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, storageErr(err)
		}
		ids = append(ids, row.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, storageErr(err)
	}
	return ids, nil
}

func validateThread(thread *domain.Thread) error {
	if thread == nil || thread.ID == "" || thread.OrganizationID == "" || len(thread.Participants) == 0 {
		return errprocess.ErrInvalidParams
	}
	if thread.ParticipantKey == "" {
		thread.ParticipantKey = domain.ParticipantKeyOf(thread.MemberIDs())
	}
	return nil
}
