package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoDatabase = "cura-ai"
	chatsCollection      = "chats"
	consentsCollection   = "consents"
)

// MongoStore keeps one document per (userId, mode) with the messages
// embedded in insertion order, plus one consent document per user.
type MongoStore struct {
	client   *mongo.Client
	chats    *mongo.Collection
	consents *mongo.Collection

	indexMu sync.Mutex
	indexed bool
}

// NewMongoStore connects lazily; an unreachable server surfaces on Ping and on
// each operation rather than here.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(3 * time.Second).
		SetConnectTimeout(3 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:   client,
		chats:    db.Collection(chatsCollection),
		consents: db.Collection(consentsCollection),
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the primary and creates indexes the first time it succeeds.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return s.ensureIndexes(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexed {
		return nil
	}

	_, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "mode", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create chats index: %w", err)
	}
	_, err = s.consents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create consents index: %w", err)
	}
	s.indexed = true
	return nil
}

func sessionFilter(userID string, mode Mode) bson.D {
	return bson.D{{Key: "userId", Value: userID}, {Key: "mode", Value: string(mode)}}
}

func (s *MongoStore) FindSession(ctx context.Context, userID string, mode Mode) (*Session, error) {
	var sess Session
	err := s.chats.FindOne(ctx, sessionFilter(userID, mode)).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}
	return &sess, nil
}

func (s *MongoStore) UpsertSession(ctx context.Context, userID string, mode Mode) (*Session, error) {
	now := time.Now()
	update := bson.D{{Key: "$setOnInsert", Value: bson.D{
		{Key: "messages", Value: bson.A{}},
		{Key: "createdAt", Value: now},
		{Key: "updatedAt", Value: now},
	}}}
	_, err := s.chats.UpdateOne(ctx, sessionFilter(userID, mode), update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert session: %w", err)
	}
	return s.FindSession(ctx, userID, mode)
}

func (s *MongoStore) AppendMessage(ctx context.Context, userID string, mode Mode, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "messages", Value: msg}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: msg.Timestamp}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: msg.Timestamp}}},
	}
	_, err := s.chats.UpdateOne(ctx, sessionFilter(userID, mode), update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteSession(ctx context.Context, userID string, mode Mode) error {
	if _, err := s.chats.DeleteOne(ctx, sessionFilter(userID, mode)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *MongoStore) GetConsent(ctx context.Context, userID string) (*ConsentRecord, error) {
	var rec ConsentRecord
	err := s.consents.FindOne(ctx, bson.D{{Key: "userId", Value: userID}}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find consent: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) UpsertConsent(ctx context.Context, rec ConsentRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "hasConsented", Value: rec.HasConsented},
		{Key: "timestamp", Value: rec.Timestamp},
	}}}
	_, err := s.consents.UpdateOne(ctx, bson.D{{Key: "userId", Value: rec.UserID}}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert consent: %w", err)
	}
	return nil
}
