package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourorg/teamhub/services/realtime-service/internal/apperr"
	"github.com/yourorg/teamhub/services/realtime-service/internal/models"
)

type MessageRepo struct {
	col       *mongo.Collection
	attachCol *mongo.Collection
	userCol   *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		col:       db.Collection("messages"),
		attachCol: db.Collection("attachments"),
		userCol:   db.Collection("users"),
	}
}

func (r *MessageRepo) Insert(ctx context.Context, m *models.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	// read_by is always persisted as a canonical string array, even when
	// empty, so read-state updates never have to guess its shape.
	if m.ChatType == models.ChatProject && m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	if _, err := r.col.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) Get(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return &m, nil
}

func (r *MessageRepo) UpdateBody(ctx context.Context, id, body string, editedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted_at": nil},
		bson.M{"$set": bson.M{"body": body, "edited_at": editedAt}})
	if err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"deleted_at": deletedAt}})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) MarkReadUpTo(ctx context.Context, chatType models.ChatType, refID, readerID string, cursor time.Time) ([]string, error) {
	filter := bson.M{
		"chat_type":  chatType,
		"ref_id":     refID,
		"created_at": bson.M{"$lte": cursor},
		"deleted_at": nil,
	}
	var update bson.M
	switch chatType {
	case models.ChatProject:
		filter["read_by"] = bson.M{"$ne": readerID}
		update = bson.M{"$addToSet": bson.M{"read_by": readerID}}
	case models.ChatDirect:
		// only inbound messages get the receiver's read stamp
		filter["author_id"] = bson.M{"$ne": readerID}
		filter["read_at"] = nil
		update = bson.M{"$set": bson.M{"read_at": time.Now().UTC()}}
	default:
		return nil, fmt.Errorf("mark read: unknown chat type %q", chatType)
	}

	ids, err := r.findIDs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mark read scan: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := r.col.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, update); err != nil {
		return nil, fmt.Errorf("mark read update: %w", err)
	}
	return ids, nil
}

func (r *MessageRepo) findIDs(ctx context.Context, filter bson.M) ([]string, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

func (r *MessageRepo) History(ctx context.Context, chatType models.ChatType, refID string, limit int64, before time.Time) ([]*models.Message, error) {
	filter := bson.M{"chat_type": chatType, "ref_id": refID}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	cur, err := r.col.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("history decode: %w", err)
		}
		// tombstones keep their id and timestamps, never their content
		if m.Deleted() {
			m.Body = ""
			m.Attachments = nil
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// chronological order for clients
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MessageRepo) LinkAttachments(ctx context.Context, messageID string, attachmentIDs []string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}
	_, err := r.attachCol.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": attachmentIDs}},
		bson.M{"$set": bson.M{"message_id": messageID}})
	if err != nil {
		return fmt.Errorf("link attachments: %w", err)
	}
	return nil
}

func (r *MessageRepo) DisplayInfo(ctx context.Context, userID string) (*models.UserInfo, error) {
	var row struct {
		ID        string `bson:"_id"`
		Name      string `bson:"name"`
		AvatarURL string `bson:"avatar_url"`
	}
	err := r.userCol.FindOne(ctx, bson.M{"_id": userID}).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("display info %s: %w", userID, err)
	}
	return &models.UserInfo{ID: row.ID, Name: row.Name, AvatarURL: row.AvatarURL}, nil
}
