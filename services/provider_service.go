package services

import (
	"context"
	"yappy/entity"
)

// Provider is the Yappy REST API as seen by a payment flow.
type Provider interface {
	OpenSession(ctx context.Context, credentials entity.Credentials) (string, error)
	CloseSession(ctx context.Context, credentials entity.Credentials, token string)
	GenerateQr(ctx context.Context, credentials entity.Credentials, token string, request entity.PaymentRequest) (*entity.QrResult, error)
	TransactionStatus(ctx context.Context, credentials entity.Credentials, token string, transactionId string) (entity.TransactionStatus, error)
	VoidTransaction(ctx context.Context, credentials entity.Credentials, token string, transactionId string) error
}
