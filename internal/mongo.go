package internal

import (
	"context"
	"errors"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"log"
	"time"
	"yappy/config"
	"yappy/entity"
	"yappy/services"
)

const (
	collectionLog      = "payment_log"
	collectionPayments = "payments"
	collectionStore    = "secure_store"
)

type MongoDB struct {
	clientOptions *options.ClientOptions
	database      string
}

// storedValue is a secure store record, Value is already encrypted.
type storedValue struct {
	Key     string    `bson:"key"`
	Value   []byte    `bson:"value"`
	Updated time.Time `bson:"updated"`
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	err := connection.Disconnect(ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

func (m *MongoDB) WriteLogMessage(ctx context.Context, data services.Data) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(ctx, data)
	return err
}

func (m *MongoDB) GetPayment(ctx context.Context, orderId string) (*entity.PaymentRecord, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "order_id", Value: orderId}}
	collection := connection.Database(m.database).Collection(collectionPayments)
	var record entity.PaymentRecord
	if err = collection.FindOne(ctx, filter).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (m *MongoDB) SavePayment(ctx context.Context, record *entity.PaymentRecord) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "order_id", Value: record.OrderId}}
	set := bson.M{"$set": record}
	collection := connection.Database(m.database).Collection(collectionPayments)
	_, err = collection.UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

func (m *MongoDB) GetValue(ctx context.Context, key string) ([]byte, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "key", Value: key}}
	collection := connection.Database(m.database).Collection(collectionStore)
	var value storedValue
	if err = collection.FindOne(ctx, filter).Decode(&value); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return value.Value, nil
}

func (m *MongoDB) SetValue(ctx context.Context, key string, value []byte) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "key", Value: key}}
	set := bson.M{"$set": storedValue{Key: key, Value: value, Updated: time.Now()}}
	collection := connection.Database(m.database).Collection(collectionStore)
	_, err = collection.UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

func (m *MongoDB) DeleteValue(ctx context.Context, key string) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	filter := bson.D{{Key: "key", Value: key}}
	collection := connection.Database(m.database).Collection(collectionStore)
	_, err = collection.DeleteOne(ctx, filter)
	return err
}
