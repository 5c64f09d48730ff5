package services

import (
	"context"
	"yappy/entity"
)

type Payments interface {
	StartPayment(ctx context.Context, request entity.PaymentRequest) (*entity.PaymentRecord, error)
	GetPayment(ctx context.Context, orderId string) (*entity.PaymentRecord, error)
	CancelPayment(ctx context.Context, orderId string) (*entity.PaymentRecord, error)
}

type Credentials interface {
	Resolve(ctx context.Context) (entity.Credentials, error)
	Save(ctx context.Context, credentials entity.Credentials) error
}

type ConfigRefresher interface {
	Refresh(ctx context.Context) (entity.Credentials, error)
}
