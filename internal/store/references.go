package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"leavebot/internal/botframework"
)

// ReferenceBook maps a user key (email, channel id or directory object id)
// to the last conversation reference seen for that user. Last writer wins.
type ReferenceBook interface {
	Put(ctx context.Context, key string, ref botframework.ConversationReference) error
	Get(ctx context.Context, key string) (botframework.ConversationReference, error)
}

// MemoryReferenceBook is an in-process ReferenceBook.
type MemoryReferenceBook struct {
	mu   sync.RWMutex
	refs map[string]botframework.ConversationReference
}

func NewMemoryReferenceBook() *MemoryReferenceBook {
	return &MemoryReferenceBook{refs: make(map[string]botframework.ConversationReference)}
}

func (b *MemoryReferenceBook) Put(_ context.Context, key string, ref botframework.ConversationReference) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs[key] = ref
	return nil
}

func (b *MemoryReferenceBook) Get(_ context.Context, key string) (botframework.ConversationReference, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ref, ok := b.refs[key]
	if !ok {
		return botframework.ConversationReference{}, ErrNotFound
	}
	return ref, nil
}

// MongoReferenceBook keeps references in MongoDB so proactive messages
// survive restarts.
type MongoReferenceBook struct {
	refs *mongo.Collection
}

type referenceDoc struct {
	Key       string                             `bson:"_id"`
	Ref       botframework.ConversationReference `bson:"ref"`
	UpdatedAt time.Time                          `bson:"updated_at"`
}

func NewMongoReferenceBook(ctx context.Context, db *MongoDB) (*MongoReferenceBook, error) {
	refs := db.Collection("conversation_references")
	if _, err := refs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("create conversation_references indexes: %w", err)
	}
	return &MongoReferenceBook{refs: refs}, nil
}

func (b *MongoReferenceBook) Put(ctx context.Context, key string, ref botframework.ConversationReference) error {
	_, err := b.refs.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"ref": ref, "updated_at": time.Now()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert reference: %w", err)
	}
	return nil
}

func (b *MongoReferenceBook) Get(ctx context.Context, key string) (botframework.ConversationReference, error) {
	var doc referenceDoc
	err := b.refs.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return botframework.ConversationReference{}, ErrNotFound
	}
	if err != nil {
		return botframework.ConversationReference{}, fmt.Errorf("find reference: %w", err)
	}
	return doc.Ref, nil
}
