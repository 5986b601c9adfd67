package repositories

import (
	"context"
	"time"

	"github.com/formadex/crm-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// JournalRepository is the durable error journal for exhausted workflow
// dispatches.
type JournalRepository interface {
	Record(ctx context.Context, entry *models.JournalEntry) error
	Recent(ctx context.Context, limit int64) ([]models.JournalEntry, error)
}

// MongoJournalRepository implements JournalRepository for MongoDB
type MongoJournalRepository struct {
	collection *mongo.Collection
}

// NewMongoJournalRepository creates a new MongoJournalRepository
func NewMongoJournalRepository(db *mongo.Database) *MongoJournalRepository {
	return &MongoJournalRepository{collection: db.Collection("dispatch_errors")}
}

func (r *MongoJournalRepository) Record(ctx context.Context, entry *models.JournalEntry) error {
	entry.ID = primitive.NewObjectID()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.collection.InsertOne(ctx, entry)
	return err
}

func (r *MongoJournalRepository) Recent(ctx context.Context, limit int64) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry
	findOptions := options.Find().SetLimit(limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
