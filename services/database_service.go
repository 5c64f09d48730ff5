package services

import (
	"context"
	"yappy/entity"
)

type Database interface {
	WriteLogMessage(ctx context.Context, data Data) error

	GetPayment(ctx context.Context, orderId string) (*entity.PaymentRecord, error)
	SavePayment(ctx context.Context, record *entity.PaymentRecord) error
}

// KeyValue is the raw backend of the encrypted store. Get returns nil, nil for a missing key.
type KeyValue interface {
	GetValue(ctx context.Context, key string) ([]byte, error)
	SetValue(ctx context.Context, key string, value []byte) error
	DeleteValue(ctx context.Context, key string) error
}

type Data interface {
	DataType() string
}
