package repository

import (
	"context"
	"errors"
	"time"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReceiptRepository definition receipt storage
type ReceiptRepository interface {
	// UpsertReceipt merge receipt into the stored row. A read earlier than
	// the stored one is ErrStaleReceipt; unknown message or a recipient that
	// is not a non-sender participant is ErrInvalidReference.
	UpsertReceipt(ctx context.Context, receipt domain.Receipt) error
	// FindReceipt nil when no row exists
	FindReceipt(ctx context.Context, messageID, recipientID string) (*domain.Receipt, error)
	// MarkThreadRead set read_at (and delivered_at) on every non-deleted
	// message of the thread not sent by reader, as a single storage operation.
	// Timestamps already set are kept.
	MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) error
	// MarkThreadsDelivered set delivered_at where unset for the recipient's threads
	MarkThreadsDelivered(ctx context.Context, threadIDs []string, recipientID string, at time.Time) error
	// PendingReadMessageIDs messages MarkThreadRead would still change
	PendingReadMessageIDs(ctx context.Context, threadID, readerID string) ([]string, error)
	// CountUnread unread messages per thread for viewer, threads with zero are omitted
	CountUnread(ctx context.Context, threadIDs []string, viewerID string) (map[string]int, error)
}

type mongoReceiptRepository struct {
	threadsColl  *mongo.Collection
	messagesColl *mongo.Collection
	receiptsColl *mongo.Collection
}

// NewMongoReceiptRepository create new mongo receipt repository
func NewMongoReceiptRepository(db *mongo.Database) ReceiptRepository {
	return &mongoReceiptRepository{
		threadsColl:  db.Collection(CollectionThreads),
		messagesColl: db.Collection(CollectionMessages),
		receiptsColl: db.Collection(CollectionReceipts),
	}
}

func (r *mongoReceiptRepository) UpsertReceipt(ctx context.Context, receipt domain.Receipt) error {
	defer observe("receipt.upsert")()

	var msg domain.Message
	err := r.messagesColl.FindOne(ctx, bson.M{"_id": receipt.MessageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errprocess.ErrInvalidReference
	}
	if err != nil {
		return storageErr(err)
	}
	if msg.SenderID == receipt.RecipientID {
		return errprocess.ErrInvalidReference
	}
	if err := r.checkParticipant(ctx, msg.ThreadID, receipt.RecipientID); err != nil {
		return err
	}

	delivered := receipt.DeliveredAt
	if delivered == nil {
		delivered = receipt.ReadAt
	}
	if delivered == nil {
		return nil
	}

	existing, err := r.FindReceipt(ctx, receipt.MessageID, receipt.RecipientID)
	if err != nil {
		return err
	}
	if existing != nil {
		merged := *existing
		changed, stale := merged.Merge(receipt)
		if stale {
			return errprocess.ErrStaleReceipt
		}
		if !changed {
			return nil
		}
	}

	// $ifNull / $max 保證時間戳只前進
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "message_id", Value: literal(receipt.MessageID)},
			{Key: "recipient_id", Value: literal(receipt.RecipientID)},
			{Key: "thread_id", Value: literal(msg.ThreadID)},
			{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", literal(*delivered)}}}},
			{Key: "read_at", Value: bson.D{{Key: "$max", Value: bson.A{"$read_at", literal(receipt.ReadAt)}}}},
		}}},
	}
	_, err = r.receiptsColl.UpdateOne(ctx,
		bson.M{"_id": domain.ReceiptKey(receipt.MessageID, receipt.RecipientID)},
		update,
		options.Update().SetUpsert(true),
	)
	return storageErr(err)
}

func (r *mongoReceiptRepository) FindReceipt(ctx context.Context, messageID, recipientID string) (*domain.Receipt, error) {
	defer observe("receipt.find")()

	var receipt domain.Receipt
	err := r.receiptsColl.FindOne(ctx, bson.M{"_id": domain.ReceiptKey(messageID, recipientID)}).Decode(&receipt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &receipt, nil
}

func (r *mongoReceiptRepository) MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) error {
	defer observe("receipt.mark_thread_read")()

	if err := r.checkParticipant(ctx, threadID, readerID); err != nil {
		return err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"thread_id":  threadID,
			"deleted_at": nil,
			"sender_id":  bson.M{"$ne": readerID},
		}}},
		receiptProjection(readerID, at, &at),
		receiptMerge(bson.D{
			{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", "$$new.delivered_at"}}}},
			{Key: "read_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$read_at", "$$new.read_at"}}}},
		}),
	}
	return r.aggregateDiscard(ctx, pipeline)
}

func (r *mongoReceiptRepository) MarkThreadsDelivered(ctx context.Context, threadIDs []string, recipientID string, at time.Time) error {
	defer observe("receipt.mark_delivered")()

	allowed, err := r.participantThreadIDs(ctx, threadIDs, recipientID)
	if err != nil || len(allowed) == 0 {
		return err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"thread_id":  bson.M{"$in": allowed},
			"deleted_at": nil,
			"sender_id":  bson.M{"$ne": recipientID},
		}}},
		receiptProjection(recipientID, at, nil),
		receiptMerge(bson.D{
			{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", "$$new.delivered_at"}}}},
		}),
	}
	return r.aggregateDiscard(ctx, pipeline)
}

func (r *mongoReceiptRepository) PendingReadMessageIDs(ctx context.Context, threadID, readerID string) ([]string, error) {
	defer observe("receipt.pending")()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"thread_id":  threadID,
			"deleted_at": nil,
			"sender_id":  bson.M{"$ne": readerID},
		}}},
		readLookup(readerID),
		{{Key: "$match", Value: bson.M{"reads": bson.M{"$size": 0}}}},
		{{Key: "$project", Value: bson.M{"_id": 1}}},
	}

	cur, err := r.messagesColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storageErr(err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, storageErr(err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *mongoReceiptRepository) CountUnread(ctx context.Context, threadIDs []string, viewerID string) (map[string]int, error) {
	defer observe("receipt.count_unread")()

	counts := map[string]int{}
	if len(threadIDs) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"thread_id":  bson.M{"$in": threadIDs},
			"deleted_at": nil,
			"sender_id":  bson.M{"$ne": viewerID},
		}}},
		readLookup(viewerID),
		{{Key: "$match", Value: bson.M{"reads": bson.M{"$size": 0}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$thread_id",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cur, err := r.messagesColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storageErr(err)
	}
	var rows []struct {
		ThreadID string `bson:"_id"`
		Count    int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, storageErr(err)
	}
	for _, row := range rows {
		counts[row.ThreadID] = row.Count
	}
	return counts, nil
}

func (r *mongoReceiptRepository) checkParticipant(ctx context.Context, threadID, memberID string) error {
	n, err := r.threadsColl.CountDocuments(ctx, bson.M{"_id": threadID, "participants.member_id": memberID})
	if err != nil {
		return storageErr(err)
	}
	if n == 0 {
		return errprocess.ErrInvalidReference
	}
	return nil
}

func (r *mongoReceiptRepository) participantThreadIDs(ctx context.Context, threadIDs []string, memberID string) ([]string, error) {
	if len(threadIDs) == 0 {
		return nil, nil
	}
	cur, err := r.threadsColl.Find(ctx,
		bson.M{"_id": bson.M{"$in": threadIDs}, "participants.member_id": memberID},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, storageErr(err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, storageErr(err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *mongoReceiptRepository) aggregateDiscard(ctx context.Context, pipeline mongo.Pipeline) error {
	cur, err := r.messagesColl.Aggregate(ctx, pipeline)
	if err != nil {
		return storageErr(err)
	}
	return storageErr(cur.Close(ctx))
}

// receiptProjection shape message rows into receipt rows of recipientID
func receiptProjection(recipientID string, delivered time.Time, read *time.Time) bson.D {
	return bson.D{{Key: "$project", Value: bson.D{
		{Key: "_id", Value: bson.D{{Key: "$concat", Value: bson.A{"$_id", ":", literal(recipientID)}}}},
		{Key: "message_id", Value: "$_id"},
		{Key: "recipient_id", Value: literal(recipientID)},
		{Key: "thread_id", Value: "$thread_id"},
		{Key: "delivered_at", Value: literal(delivered)},
		{Key: "read_at", Value: literal(read)},
	}}}
}

// receiptMerge upsert projected rows into receipts, set only applies to matched rows
func receiptMerge(set bson.D) bson.D {
	return bson.D{{Key: "$merge", Value: bson.D{
		{Key: "into", Value: CollectionReceipts},
		{Key: "on", Value: "_id"},
		{Key: "whenMatched", Value: bson.A{bson.D{{Key: "$set", Value: set}}}},
		{Key: "whenNotMatched", Value: "insert"},
	}}}
}

// readLookup join the viewer's read receipts as "reads"
func readLookup(viewerID string) bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: CollectionReceipts},
		{Key: "let", Value: bson.D{{Key: "mid", Value: "$_id"}}},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$message_id", "$$mid"}}},
				bson.D{{Key: "$eq", Value: bson.A{"$recipient_id", literal(viewerID)}}},
				bson.D{{Key: "$ne", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$read_at", nil}}}, nil}}},
			}}}}}}},
			bson.D{{Key: "$limit", Value: 1}},
		}},
		{Key: "as", Value: "reads"},
	}}}
}
