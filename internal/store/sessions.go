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

	"leavebot/internal/model"
)

// SessionStore holds conversation sessions between turns. Get returns a new
// START session for unknown conversations.
type SessionStore interface {
	Get(ctx context.Context, conversationID string) (*model.ConversationSession, error)
	Save(ctx context.Context, session *model.ConversationSession) error
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.ConversationSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]model.ConversationSession)}
}

func (s *MemorySessionStore) Get(_ context.Context, conversationID string) (*model.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[conversationID]; ok {
		return &sess, nil
	}
	return model.NewSession(conversationID), nil
}

// Save stores a copy, so callers may keep mutating their value.
func (s *MemorySessionStore) Save(_ context.Context, session *model.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = time.Now()
	s.sessions[session.ConversationID] = *session
	return nil
}

// MongoSessionStore keeps sessions in the "sessions" collection, keyed by
// conversation id.
type MongoSessionStore struct {
	sessions *mongo.Collection
}

func NewMongoSessionStore(ctx context.Context, db *MongoDB) (*MongoSessionStore, error) {
	sessions := db.Collection("sessions")
	if _, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create sessions indexes: %w", err)
	}
	return &MongoSessionStore{sessions: sessions}, nil
}

func (s *MongoSessionStore) Get(ctx context.Context, conversationID string) (*model.ConversationSession, error) {
	var sess model.ConversationSession
	err := s.sessions.FindOne(ctx, bson.M{"_id": conversationID}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.NewSession(conversationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &sess, nil
}

func (s *MongoSessionStore) Save(ctx context.Context, session *model.ConversationSession) error {
	session.UpdatedAt = time.Now()
	_, err := s.sessions.ReplaceOne(ctx,
		bson.M{"_id": session.ConversationID},
		session,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
