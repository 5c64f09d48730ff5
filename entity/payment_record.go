package entity

import "time"

// PaymentRecord is the stored state of a payment flow, updated from flow events.
type PaymentRecord struct {
	OrderId       string            `json:"order_id" bson:"order_id"`
	Description   string            `json:"description" bson:"description"`
	Charge        ChargeAmount      `json:"charge" bson:"charge"`
	TransactionId string            `json:"transaction_id,omitempty" bson:"transaction_id"`
	Hash          string            `json:"hash,omitempty" bson:"hash"`
	Status        TransactionStatus `json:"status,omitempty" bson:"status"`
	Outcome       FlowOutcome       `json:"outcome,omitempty" bson:"outcome"`
	Error         string            `json:"error,omitempty" bson:"error"`
	IsFinished    bool              `json:"is_finished" bson:"is_finished"`
	TimeOpened    time.Time         `json:"time_opened" bson:"time_opened"`
	TimeUpdated   time.Time         `json:"time_updated" bson:"time_updated"`
	TimeClosed    time.Time         `json:"time_closed,omitempty" bson:"time_closed"`
}

// NewPaymentRecord creates a record for a normalized request.
func NewPaymentRecord(request PaymentRequest) *PaymentRecord {
	now := time.Now()
	return &PaymentRecord{
		OrderId:     request.OrderId,
		Description: request.Description,
		Charge:      request.ChargeAmount(),
		TimeOpened:  now,
		TimeUpdated: now,
	}
}

// Apply updates the record from a flow event.
func (r *PaymentRecord) Apply(event FlowEvent) {
	r.TimeUpdated = event.Time
	if t := event.Transaction; t != nil {
		if t.YappyTransactionId != "" {
			r.TransactionId = t.YappyTransactionId
		}
		if t.Hash != "" {
			r.Hash = t.Hash
		}
		if t.Status != "" {
			r.Status = t.Status
		}
	}
	if event.Error != "" {
		r.Error = event.Error
	}
	if event.IsFinal() {
		r.Outcome = event.Outcome
		r.IsFinished = true
		r.TimeClosed = event.Time
	}
}

// LogMessage is written to the payment log collection.
type LogMessage struct {
	Time     time.Time `json:"time" bson:"time"`
	Level    string    `json:"level" bson:"level"`
	Category string    `json:"category" bson:"category"`
	Text     string    `json:"text" bson:"text"`
}

func (l *LogMessage) DataType() string {
	return "log_message"
}
