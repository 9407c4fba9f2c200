package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

// MongoStore persists accounts and messages in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
}

// OpenMongo connects, verifies the connection and ensures the indexes exist.
func OpenMongo(ctx context.Context, uri, databaseName string, logger *zap.Logger) (*MongoStore, error) {
	if uri == "" || databaseName == "" {
		return nil, fmt.Errorf("mongo uri and database name are required")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	database := client.Database(databaseName)
	store := &MongoStore{
		client:   client,
		users:    database.Collection(usersCollection),
		messages: database.Collection(messagesCollection),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", "mongo"), zap.String("database", databaseName))
	}
	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (s *MongoStore) CreateUser(ctx context.Context, user users.User) error {
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return users.ErrEmailTaken
	}
	return err
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (users.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoStore) FindUserByID(ctx context.Context, userID string) (users.User, error) {
	return s.findUser(ctx, bson.D{{Key: "_id", Value: userID}})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.D) (users.User, error) {
	var user users.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return users.User{}, users.ErrUserNotFound
	}
	return user, err
}

func (s *MongoStore) ListUsersExcept(ctx context.Context, userID string) ([]users.User, error) {
	cursor, err := s.users.Find(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: userID}}}},
		options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var peers []users.User
	if err := cursor.All(ctx, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func (s *MongoStore) UpdateProfilePic(ctx context.Context, userID, url string, updatedAt time.Time) (users.User, error) {
	var user users.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "profile_pic", Value: url}, {Key: "updated_at", Value: updatedAt}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return users.User{}, users.ErrUserNotFound
	}
	return user, err
}

func (s *MongoStore) CreateMessage(ctx context.Context, message messages.Message) error {
	_, err := s.messages.InsertOne(ctx, message)
	return err
}

func (s *MongoStore) ListConversation(ctx context.Context, userA, userB string) ([]messages.Message, error) {
	filter := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "sender_id", Value: userA}, {Key: "receiver_id", Value: userB}},
		bson.D{{Key: "sender_id", Value: userB}, {Key: "receiver_id", Value: userA}},
	}}}
	cursor, err := s.messages.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var conversation []messages.Message
	if err := cursor.All(ctx, &conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
