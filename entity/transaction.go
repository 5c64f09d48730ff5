// Package entity defines data models for the Yappy payment service.
package entity

import (
	"strings"
	"time"
)

// TransactionStatus is the provider side state of a QR transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusDeclined  TransactionStatus = "DECLINED"
	StatusExpired   TransactionStatus = "EXPIRED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusVoided    TransactionStatus = "VOIDED"
	StatusCancelled TransactionStatus = "CANCELLED"
	StatusUnknown   TransactionStatus = "UNKNOWN"
)

var knownStatuses = map[string]TransactionStatus{
	string(StatusPending):   StatusPending,
	string(StatusCompleted): StatusCompleted,
	string(StatusDeclined):  StatusDeclined,
	string(StatusExpired):   StatusExpired,
	string(StatusFailed):    StatusFailed,
	string(StatusVoided):    StatusVoided,
	string(StatusCancelled): StatusCancelled,
}

// ParseStatus maps a provider status string to a TransactionStatus, ignoring case.
// Unrecognized values are reported as StatusUnknown.
func ParseStatus(value string) TransactionStatus {
	if status, ok := knownStatuses[strings.ToUpper(strings.TrimSpace(value))]; ok {
		return status
	}
	return StatusUnknown
}

// IsTerminal reports whether polling should stop at this status.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusExpired, StatusFailed, StatusVoided, StatusCancelled:
		return true
	}
	return false
}

// Session is an open device session at the provider.
type Session struct {
	Token    string    `json:"-" bson:"-"`
	OpenedAt time.Time `json:"opened_at" bson:"opened_at"`
	Closed   bool      `json:"closed" bson:"closed"`
}

// Transaction is created by a successful QR generation, its status changes only by polling.
type Transaction struct {
	YappyTransactionId string            `json:"transaction_id" bson:"transaction_id"`
	LocalOrderId       string            `json:"order_id" bson:"order_id"`
	Hash               string            `json:"hash" bson:"hash"`
	Date               string            `json:"date,omitempty" bson:"date"`
	Status             TransactionStatus `json:"status" bson:"status"`
	UpdatedAt          time.Time         `json:"updated_at" bson:"updated_at"`
}

// IsFinished reports whether the transaction reached a terminal status.
func (t *Transaction) IsFinished() bool {
	return t != nil && t.Status.IsTerminal()
}
