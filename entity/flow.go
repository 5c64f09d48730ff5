package entity

import "time"

// FlowOutcome is how a payment flow ended.
type FlowOutcome string

const (
	OutcomeSuccess   FlowOutcome = "SUCCESS"
	OutcomeDeclined  FlowOutcome = "DECLINED"
	OutcomeFailed    FlowOutcome = "FAILED"
	OutcomeTimeout   FlowOutcome = "TIMEOUT"
	OutcomeCancelled FlowOutcome = "CANCELLED"
)

// OutcomeOf maps a terminal transaction status to the flow outcome.
func OutcomeOf(status TransactionStatus) FlowOutcome {
	switch status {
	case StatusCompleted:
		return OutcomeSuccess
	case StatusCancelled, StatusVoided:
		return OutcomeCancelled
	}
	return OutcomeDeclined
}

type FlowEventType string

const (
	EventSessionOpened FlowEventType = "session_opened"
	EventQrReady       FlowEventType = "qr_ready"
	EventStatus        FlowEventType = "status"
	EventFinal         FlowEventType = "final"
)

// FlowEvent is emitted by a running payment flow. Only the last event is final.
type FlowEvent struct {
	Type        FlowEventType `json:"type"`
	OrderId     string        `json:"order_id"`
	Transaction *Transaction  `json:"transaction,omitempty"`
	Outcome     FlowOutcome   `json:"outcome,omitempty"`
	Error       string        `json:"error,omitempty"`
	Time        time.Time     `json:"time"`
}

// IsFinal reports whether this is the last event of the flow.
func (e FlowEvent) IsFinal() bool {
	return e.Type == EventFinal
}

// FlowResult is returned when a flow run ends.
type FlowResult struct {
	OrderId     string       `json:"order_id"`
	Outcome     FlowOutcome  `json:"outcome"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Attempts    int          `json:"attempts"`
}
