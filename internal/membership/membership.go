// Package membership answers scope-authorization questions against the
// directory collections. Results are point-in-time; the realtime service
// checks once at handshake.
package membership

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Checker interface {
	ProjectMember(ctx context.Context, userID, projectID string) (bool, error)
	ProjectAdmin(ctx context.Context, userID, projectID string) (bool, error)
	ConversationMember(ctx context.Context, userID, conversationID string) (bool, error)
	OrgMember(ctx context.Context, userID, orgID string) (bool, error)
}

type MongoChecker struct {
	projectMembers *mongo.Collection
	conversations  *mongo.Collection
	orgMembers     *mongo.Collection
}

func NewMongoChecker(db *mongo.Database) *MongoChecker {
	return &MongoChecker{
		projectMembers: db.Collection("project_members"),
		conversations:  db.Collection("conversations"),
		orgMembers:     db.Collection("org_members"),
	}
}

func (c *MongoChecker) ProjectMember(ctx context.Context, userID, projectID string) (bool, error) {
	n, err := c.projectMembers.CountDocuments(ctx,
		bson.M{"project_id": projectID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("project membership: %w", err)
	}
	return n > 0, nil
}

func (c *MongoChecker) ProjectAdmin(ctx context.Context, userID, projectID string) (bool, error) {
	n, err := c.projectMembers.CountDocuments(ctx,
		bson.M{"project_id": projectID, "user_id": userID, "role": "admin"})
	if err != nil {
		return false, fmt.Errorf("project admin: %w", err)
	}
	return n > 0, nil
}

func (c *MongoChecker) ConversationMember(ctx context.Context, userID, conversationID string) (bool, error) {
	n, err := c.conversations.CountDocuments(ctx,
		bson.M{"_id": conversationID, "members": userID})
	if err != nil {
		return false, fmt.Errorf("conversation membership: %w", err)
	}
	return n > 0, nil
}

func (c *MongoChecker) OrgMember(ctx context.Context, userID, orgID string) (bool, error) {
	n, err := c.orgMembers.CountDocuments(ctx,
		bson.M{"org_id": orgID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("org membership: %w", err)
	}
	return n > 0, nil
}
