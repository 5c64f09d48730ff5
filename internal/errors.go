package internal

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("already exists")
	ErrNoCredentials = errors.New("credentials not configured")
)

// provider result codes
const (
	CodeSuccess        = "YP-0000"
	CodeInvalidKeys    = "YP-0001"
	CodeInvalidToken   = "YP-0002"
	CodeDeviceNotFound = "YP-0003"
	CodeSessionOpen    = "YP-0004"
	CodeSessionClosed  = "YP-0005"
	CodeInvalidAmount  = "YP-0006"
	CodeOrderDuplicate = "YP-0007"
	CodeTxNotFound     = "YP-0008"
	CodeTxNotVoidable  = "YP-0009"
	CodeGroupNotFound  = "YP-0010"
	CodeInternal       = "YP-9999"
)

var codeDescriptions = map[string]string{
	CodeSuccess:        "operation completed",
	CodeInvalidKeys:    "invalid api key or secret key",
	CodeInvalidToken:   "session token is invalid or expired",
	CodeDeviceNotFound: "device is not registered",
	CodeSessionOpen:    "device session is already open",
	CodeSessionClosed:  "device session is already closed",
	CodeInvalidAmount:  "charge amount is invalid",
	CodeOrderDuplicate: "order id already used",
	CodeTxNotFound:     "transaction not found",
	CodeTxNotVoidable:  "transaction cannot be voided",
	CodeGroupNotFound:  "group is not registered",
	CodeInternal:       "provider internal error",
}

// DescribeCode returns a human readable description of a provider code.
func DescribeCode(code string) string {
	if desc, ok := codeDescriptions[code]; ok {
		return desc
	}
	return "unknown error"
}

// ValidationError is bad caller input, it is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// NetworkError is a failure to reach the remote side at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// VendorError is an error code returned by the provider.
type VendorError struct {
	Op          string
	Code        string
	Description string
	HttpStatus  int
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s: %s %s (http %d)", e.Op, e.Code, e.Description, e.HttpStatus)
}

func newVendorError(op, code, description string, httpStatus int) *VendorError {
	if description == "" {
		description = DescribeCode(code)
	}
	return &VendorError{Op: op, Code: code, Description: description, HttpStatus: httpStatus}
}

// SessionError is a failure to open a device session.
type SessionError struct {
	Code        string
	AlreadyOpen bool
	Err         error
}

func (e *SessionError) Error() string {
	if e.AlreadyOpen {
		return fmt.Sprintf("session: %s already open", e.Code)
	}
	return fmt.Sprintf("session: %s: %v", e.Code, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// QrError is a QR generation that returned no usable hash.
type QrError struct {
	Reason string
	Err    error
}

func (e *QrError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qr: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("qr: %s", e.Reason)
}

func (e *QrError) Unwrap() error {
	return e.Err
}

// vendorCode extracts the provider code from an error chain, if any.
func vendorCode(err error) string {
	var vendorErr *VendorError
	if errors.As(err, &vendorErr) {
		return vendorErr.Code
	}
	return ""
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNetwork(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

func IsVendor(err error) bool {
	var target *VendorError
	return errors.As(err, &target)
}
