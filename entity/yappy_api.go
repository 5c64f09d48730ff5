package entity

import (
	"bytes"
	"encoding/json"
)

// StatusBlock is attached by the provider to every response.
type StatusBlock struct {
	// Code is "YP-0000" on success, otherwise an error code from the provider table
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Device identifies the POS terminal opening a session.
type Device struct {
	Id   string `json:"id"`
	Name string `json:"name,omitempty"`
	User string `json:"user,omitempty"`
}

type DeviceBody struct {
	Device  Device `json:"device"`
	GroupId string `json:"group_id"`
}

// DeviceRequest is sent to POST /session/device.
type DeviceRequest struct {
	Body DeviceBody `json:"body"`
}

type SessionBody struct {
	Token  string `json:"token"`
	State  string `json:"state,omitempty"`
	OpenAt string `json:"open_at,omitempty"`
}

// SessionResponse carries the token either inside Body or flat at the top level.
type SessionResponse struct {
	Body   *SessionBody `json:"body,omitempty"`
	Token  string       `json:"token,omitempty"`
	Status *StatusBlock `json:"status,omitempty"`
}

// SessionToken returns the token from whichever shape the provider used.
func (r *SessionResponse) SessionToken() string {
	if r.Body != nil && r.Body.Token != "" {
		return r.Body.Token
	}
	return r.Token
}

type QrBody struct {
	ChargeAmount ChargeAmount `json:"charge_amount"`
	OrderId      string       `json:"order_id"`
	Description  string       `json:"description,omitempty"`
}

// QrRequest is sent to POST /qr/generate/DYN.
type QrRequest struct {
	Body QrBody `json:"body"`
}

type QrResult struct {
	Date          string `json:"date,omitempty"`
	TransactionId string `json:"transactionId"`
	Hash          string `json:"hash"`
}

// QrResponse carries the result either inside Body or flat at the top level.
type QrResponse struct {
	Body   *QrResult    `json:"body,omitempty"`
	Status *StatusBlock `json:"status,omitempty"`
	QrResult
}

// Result returns the QR data from whichever shape the provider used.
func (r *QrResponse) Result() QrResult {
	if r.Body != nil && (r.Body.Hash != "" || r.Body.TransactionId != "") {
		return *r.Body
	}
	return r.QrResult
}

type TransactionBody struct {
	TransactionId string `json:"transactionId,omitempty"`
	Status        string `json:"status"`
	Date          string `json:"date,omitempty"`
}

// TransactionResponse is returned by GET /transaction/{id}.
// In the nested shape "status" is a status block, in the flat shape it is the transaction status.
type TransactionResponse struct {
	Body       *TransactionBody
	Status     *StatusBlock
	FlatStatus string
}

func (r *TransactionResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Body   *TransactionBody `json:"body"`
		Status json.RawMessage  `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Body = raw.Body
	status := bytes.TrimSpace(raw.Status)
	if len(status) == 0 || bytes.Equal(status, []byte("null")) {
		return nil
	}
	if status[0] == '"' {
		return json.Unmarshal(status, &r.FlatStatus)
	}
	var block StatusBlock
	if err := json.Unmarshal(status, &block); err != nil {
		return err
	}
	r.Status = &block
	return nil
}

// TransactionStatus returns the provider status from whichever shape was used.
func (r *TransactionResponse) TransactionStatus() string {
	if r.Body != nil && r.Body.Status != "" {
		return r.Body.Status
	}
	return r.FlatStatus
}

// VoidRequest is sent to PUT /transaction/{id}.
type VoidRequest struct {
	Body VoidBody `json:"body"`
}

type VoidBody struct {
	Status string `json:"status"`
}

// ErrorResponse is the generic provider error envelope.
// A plain string "status" is a transaction status, not an error, and is ignored here.
type ErrorResponse struct {
	Status  *StatusBlock
	Code    string
	Message string
}

func (r *ErrorResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status  json.RawMessage `json:"status"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Code = raw.Code
	r.Message = raw.Message
	status := bytes.TrimSpace(raw.Status)
	if len(status) > 0 && status[0] == '{' {
		var block StatusBlock
		if err := json.Unmarshal(status, &block); err != nil {
			return err
		}
		r.Status = &block
	}
	return nil
}

// ErrorCode returns the provider code from whichever shape was used.
func (r *ErrorResponse) ErrorCode() string {
	if r.Status != nil && r.Status.Code != "" {
		return r.Status.Code
	}
	return r.Code
}

// ErrorDescription returns the provider supplied description, if any.
func (r *ErrorResponse) ErrorDescription() string {
	if r.Status != nil && r.Status.Description != "" {
		return r.Status.Description
	}
	return r.Message
}
