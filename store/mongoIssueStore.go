// Package store implements the engine's persistence interfaces on top of
// MongoDB collections.
package store

import (
	"context"

	"civicgrid-be/engine"
	"civicgrid-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// openStatuses matches every non-terminal issue.
var openStatuses = bson.M{"$in": []models.IssueStatus{models.Pending, models.InProgress}}

// MongoIssueStore persists issues in a MongoDB collection. SaveIssue is a
// compare-and-swap on (id, version) so concurrent read-modify-writes fail
// with engine.ErrVersionConflict instead of losing updates.
type MongoIssueStore struct {
	col *mongo.Collection
}

// NewMongoIssueStore wraps the given collection.
func NewMongoIssueStore(col *mongo.Collection) *MongoIssueStore {
	return &MongoIssueStore{col: col}
}

func (s *MongoIssueStore) IssueByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	var issue models.Issue
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&issue)
	if err == mongo.ErrNoDocuments {
		return nil, engine.ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (s *MongoIssueStore) OpenIssuesByCategory(ctx context.Context, category models.IssueCategory) ([]models.Issue, error) {
	return s.findIssues(ctx, bson.M{"category": category, "status": openStatuses})
}

func (s *MongoIssueStore) OpenIssues(ctx context.Context) ([]models.Issue, error) {
	return s.findIssues(ctx, bson.M{"status": openStatuses})
}

func (s *MongoIssueStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	_, err := s.col.InsertOne(ctx, issue)
	return err
}

func (s *MongoIssueStore) SaveIssue(ctx context.Context, issue *models.Issue) error {
	next := *issue
	next.Version = issue.Version + 1

	res, err := s.col.ReplaceOne(ctx,
		bson.M{"_id": issue.ID, "version": issue.Version}, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return engine.ErrVersionConflict
	}

	issue.Version = next.Version
	return nil
}

func (s *MongoIssueStore) findIssues(ctx context.Context, filter bson.M) ([]models.Issue, error) {
	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var issues []models.Issue
	if err := cursor.All(ctx, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}
