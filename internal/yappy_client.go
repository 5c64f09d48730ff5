package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"net"
	"net/http"
	"time"
	"yappy/entity"
	"yappy/services"
)

const (
	pathSession     = "/session/device"
	pathGenerateQr  = "/qr/generate/DYN"
	pathTransaction = "/transaction/%s"

	DefaultRequestTimeout = 15 * time.Second
)

// YappyClient calls the Yappy REST API. Every flow owns its own client value.
type YappyClient struct {
	client *resty.Client
	logger services.LogHandler
}

// NewYappyClient creates a client with fixed connect/read/write timeouts.
func NewYappyClient(timeout time.Duration, logger services.LogHandler) *YappyClient {
	return &YappyClient{
		client: newRestyClient(timeout),
		logger: logger,
	}
}

func newRestyClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return resty.New().
		SetTransport(otelhttp.NewTransport(transport)).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// OpenSession opens a device session and returns its token.
func (y *YappyClient) OpenSession(ctx context.Context, credentials entity.Credentials) (string, error) {
	request := entity.DeviceRequest{
		Body: entity.DeviceBody{
			Device: entity.Device{
				Id:   credentials.DeviceId,
				Name: credentials.DeviceName,
				User: credentials.DeviceUser,
			},
			GroupId: credentials.GroupId,
		},
	}
	y.logger.Info(fmt.Sprintf("open session: device %s; group %s", secret(credentials.DeviceId), secret(credentials.GroupId)))

	body, err := y.do(ctx, "open session", http.MethodPost, credentials, "", pathSession, request)
	if err != nil {
		code := vendorCode(err)
		if code == CodeSessionOpen {
			y.logger.Warn("open session: device session is already open")
			return "", &SessionError{Code: code, AlreadyOpen: true, Err: err}
		}
		return "", &SessionError{Code: code, Err: err}
	}

	var response entity.SessionResponse
	if err = json.Unmarshal(body, &response); err != nil {
		return "", &SessionError{Err: fmt.Errorf("parse response: %w", err)}
	}
	token := response.SessionToken()
	if token == "" {
		return "", &SessionError{Err: fmt.Errorf("empty token in response")}
	}
	y.logger.Debug(fmt.Sprintf("session opened: token %s", secret(token)))
	return token, nil
}

// CloseSession closes a device session. It never fails: an already closed session
// counts as closed and other errors are only logged.
func (y *YappyClient) CloseSession(ctx context.Context, credentials entity.Credentials, token string) {
	if token == "" {
		y.logger.Warn("close session: no token")
		return
	}
	_, err := y.do(ctx, "close session", http.MethodDelete, credentials, token, pathSession, nil)
	if err != nil {
		if vendorCode(err) == CodeSessionClosed {
			y.logger.Debug("close session: already closed")
			return
		}
		y.logger.Error("close session", err)
		return
	}
	y.logger.Info(fmt.Sprintf("session closed: token %s", secret(token)))
}

// GenerateQr requests a dynamic QR for the payment request. The charge breakdown
// is validated before anything is sent.
func (y *YappyClient) GenerateQr(ctx context.Context, credentials entity.Credentials, token string, request entity.PaymentRequest) (*entity.QrResult, error) {
	if err := request.Validate(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	qrRequest := entity.QrRequest{
		Body: entity.QrBody{
			ChargeAmount: request.ChargeAmount(),
			OrderId:      request.OrderId,
			Description:  request.Description,
		},
	}
	y.logger.Info(fmt.Sprintf("generate qr: order %s; total %.2f", request.OrderId, qrRequest.Body.ChargeAmount.Total))

	body, err := y.do(ctx, "generate qr", http.MethodPost, credentials, token, pathGenerateQr, qrRequest)
	if err != nil {
		return nil, err
	}

	var response entity.QrResponse
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, &QrError{Reason: "parse response", Err: err}
	}
	result := response.Result()
	if result.Hash == "" {
		return nil, &QrError{Reason: "no hash in response"}
	}
	if result.TransactionId == "" {
		return nil, &QrError{Reason: "no transaction id in response"}
	}
	y.logger.Debug(fmt.Sprintf("qr generated: transaction %s", result.TransactionId))
	return &result, nil
}

// TransactionStatus reads the current status of a transaction.
func (y *YappyClient) TransactionStatus(ctx context.Context, credentials entity.Credentials, token string, transactionId string) (entity.TransactionStatus, error) {
	body, err := y.do(ctx, "transaction status", http.MethodGet, credentials, token, fmt.Sprintf(pathTransaction, transactionId), nil)
	if err != nil {
		return entity.StatusUnknown, err
	}
	var response entity.TransactionResponse
	if err = json.Unmarshal(body, &response); err != nil {
		return entity.StatusUnknown, fmt.Errorf("transaction status: parse response: %w", err)
	}
	value := response.TransactionStatus()
	status := entity.ParseStatus(value)
	if status == entity.StatusUnknown {
		y.logger.Warn(fmt.Sprintf("transaction %s: unrecognized status %q", transactionId, value))
	}
	return status, nil
}

// VoidTransaction asks the provider to void a pending transaction.
func (y *YappyClient) VoidTransaction(ctx context.Context, credentials entity.Credentials, token string, transactionId string) error {
	request := entity.VoidRequest{Body: entity.VoidBody{Status: string(entity.StatusVoided)}}
	_, err := y.do(ctx, "void transaction", http.MethodPut, credentials, token, fmt.Sprintf(pathTransaction, transactionId), request)
	if err != nil {
		return err
	}
	y.logger.Info(fmt.Sprintf("transaction %s voided", transactionId))
	return nil
}

// do sends a request and returns the raw body of a successful response.
func (y *YappyClient) do(ctx context.Context, op, method string, credentials entity.Credentials, token, path string, payload interface{}) ([]byte, error) {
	request := y.client.R().
		SetContext(ctx).
		SetHeader("api-key", credentials.ApiKey).
		SetHeader("secret-key", credentials.SecretKey)
	if token != "" {
		request.SetAuthToken(token)
	}
	if payload != nil {
		request.SetBody(payload)
	}

	response, err := request.Execute(method, credentials.BaseUrl+path)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	body := response.Body()
	y.logger.Debug(fmt.Sprintf("%s: http %d; %d bytes", op, response.StatusCode(), len(body)))

	var envelope entity.ErrorResponse
	parseErr := json.Unmarshal(body, &envelope)

	if !response.IsSuccess() {
		code := envelope.ErrorCode()
		if parseErr != nil || code == "" {
			code = fmt.Sprintf("HTTP-%d", response.StatusCode())
		}
		return nil, newVendorError(op, code, envelope.ErrorDescription(), response.StatusCode())
	}
	if parseErr == nil {
		if code := envelope.ErrorCode(); code != "" && code != CodeSuccess {
			return nil, newVendorError(op, code, envelope.ErrorDescription(), response.StatusCode())
		}
	}
	return body, nil
}
