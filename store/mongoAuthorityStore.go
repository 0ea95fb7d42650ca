package store

import (
	"context"

	"civicgrid-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoAuthorityStore reads authority accounts from the users collection.
// The engine only ever needs the active accounts of a single department.
type MongoAuthorityStore struct {
	col *mongo.Collection
}

// NewMongoAuthorityStore wraps the given users collection.
func NewMongoAuthorityStore(col *mongo.Collection) *MongoAuthorityStore {
	return &MongoAuthorityStore{col: col}
}

func (s *MongoAuthorityStore) ActiveAuthorities(ctx context.Context, department models.Department) ([]models.User, error) {
	filter := bson.M{
		"role":       models.RoleAuthority,
		"department": department,
		"active":     true,
	}

	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var authorities []models.User
	if err := cursor.All(ctx, &authorities); err != nil {
		return nil, err
	}
	return authorities, nil
}
