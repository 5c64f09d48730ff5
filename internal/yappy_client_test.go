package internal

import (
	"context"
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"yappy/entity"
)

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

// fakeYappy answers with a fixed status and body per "METHOD path" and records requests.
type fakeYappy struct {
	mutex     sync.Mutex
	responses map[string]fakeResponse
	requests  []capturedRequest
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeYappy(t *testing.T, responses map[string]fakeResponse) (*fakeYappy, entity.Credentials) {
	t.Helper()
	fake := &fakeYappy{responses: responses}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path
		fake.mutex.Lock()
		fake.requests = append(fake.requests, capturedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: body})
		response, ok := fake.responses[key]
		fake.mutex.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(response.status)
		_, _ = io.WriteString(w, response.body)
	}))
	t.Cleanup(server.Close)

	credentials := testCredentials()
	credentials.BaseUrl = server.URL + "/"
	return fake, credentials.WithDefaults()
}

func (f *fakeYappy) captured() []capturedRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]capturedRequest(nil), f.requests...)
}

func TestYappyClientOpenSession(t *testing.T) {
	t.Run("nested token", func(t *testing.T) {
		fake, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /session/device": {200, `{"body":{"token":"tok-nested","state":"OPEN"},"status":{"code":"YP-0000","description":"ok"}}`},
		})
		client := NewYappyClient(0, testLogger())

		token, err := client.OpenSession(context.Background(), credentials)
		require.NoError(t, err)
		assert.Equal(t, "tok-nested", token)

		requests := fake.captured()
		require.Len(t, requests, 1)
		assert.Equal(t, "api-key-123", requests[0].header.Get("api-key"))
		assert.Equal(t, "secret-key-456", requests[0].header.Get("secret-key"))
		assert.Empty(t, requests[0].header.Get("Authorization"))

		var sent entity.DeviceRequest
		require.NoError(t, json.Unmarshal(requests[0].body, &sent))
		assert.Equal(t, "device-1", sent.Body.Device.Id)
		assert.Equal(t, entity.DefaultDeviceName, sent.Body.Device.Name)
		assert.Equal(t, entity.DefaultDeviceUser, sent.Body.Device.User)
		assert.Equal(t, "group-1", sent.Body.GroupId)
	})

	t.Run("flat token", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /session/device": {200, `{"token":"tok-flat"}`},
		})
		token, err := NewYappyClient(0, testLogger()).OpenSession(context.Background(), credentials)
		require.NoError(t, err)
		assert.Equal(t, "tok-flat", token)
	})

	t.Run("already open", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /session/device": {409, `{"status":{"code":"YP-0004","description":"session open"}}`},
		})
		_, err := NewYappyClient(0, testLogger()).OpenSession(context.Background(), credentials)
		var sessionErr *SessionError
		require.ErrorAs(t, err, &sessionErr)
		assert.True(t, sessionErr.AlreadyOpen)
		assert.Equal(t, CodeSessionOpen, sessionErr.Code)
	})

	t.Run("empty token", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /session/device": {200, `{"body":{},"status":{"code":"YP-0000"}}`},
		})
		_, err := NewYappyClient(0, testLogger()).OpenSession(context.Background(), credentials)
		var sessionErr *SessionError
		require.ErrorAs(t, err, &sessionErr)
		assert.False(t, sessionErr.AlreadyOpen)
	})

	t.Run("vendor error in success response", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /session/device": {200, `{"status":{"code":"YP-0001"}}`},
		})
		_, err := NewYappyClient(0, testLogger()).OpenSession(context.Background(), credentials)
		var vendorErr *VendorError
		require.ErrorAs(t, err, &vendorErr)
		assert.Equal(t, CodeInvalidKeys, vendorErr.Code)
		assert.Equal(t, "invalid api key or secret key", vendorErr.Description)
		assert.Equal(t, 200, vendorErr.HttpStatus)
	})
}

func TestYappyClientCloseSession(t *testing.T) {
	t.Run("sends bearer token", func(t *testing.T) {
		fake, credentials := newFakeYappy(t, map[string]fakeResponse{
			"DELETE /session/device": {200, `{"status":{"code":"YP-0000"}}`},
		})
		NewYappyClient(0, testLogger()).CloseSession(context.Background(), credentials, "tok-1")

		requests := fake.captured()
		require.Len(t, requests, 1)
		assert.Equal(t, http.MethodDelete, requests[0].method)
		assert.Equal(t, "Bearer tok-1", requests[0].header.Get("Authorization"))
	})

	t.Run("errors are absorbed", func(t *testing.T) {
		fake, credentials := newFakeYappy(t, map[string]fakeResponse{
			"DELETE /session/device": {400, `{"status":{"code":"YP-0005"}}`},
		})
		client := NewYappyClient(0, testLogger())
		client.CloseSession(context.Background(), credentials, "tok-1")
		client.CloseSession(context.Background(), credentials, "")
		assert.Len(t, fake.captured(), 1)
	})
}

func TestYappyClientGenerateQr(t *testing.T) {
	request := entity.PaymentRequest{Amount: 10.00, Tax: 0.70, Total: 10.70, OrderId: "ORDER1", Description: "coffee"}

	t.Run("nested result", func(t *testing.T) {
		fake, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /qr/generate/DYN": {200, `{"body":{"date":"2024-05-01","transactionId":"TX-9","hash":"H-9"},"status":{"code":"YP-0000"}}`},
		})
		result, err := NewYappyClient(0, testLogger()).GenerateQr(context.Background(), credentials, "tok-1", request)
		require.NoError(t, err)
		assert.Equal(t, "TX-9", result.TransactionId)
		assert.Equal(t, "H-9", result.Hash)
		assert.Equal(t, "2024-05-01", result.Date)

		requests := fake.captured()
		require.Len(t, requests, 1)
		assert.Equal(t, "Bearer tok-1", requests[0].header.Get("Authorization"))

		var sent entity.QrRequest
		require.NoError(t, json.Unmarshal(requests[0].body, &sent))
		assert.Equal(t, "ORDER1", sent.Body.OrderId)
		assert.InDelta(t, 10.00, sent.Body.ChargeAmount.SubTotal, 1e-9)
		assert.InDelta(t, 0.70, sent.Body.ChargeAmount.Tax, 1e-9)
		assert.InDelta(t, 10.70, sent.Body.ChargeAmount.Total, 1e-9)
	})

	t.Run("flat result", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /qr/generate/DYN": {200, `{"transactionId":"TX-1","hash":"H-1"}`},
		})
		result, err := NewYappyClient(0, testLogger()).GenerateQr(context.Background(), credentials, "tok-1", request)
		require.NoError(t, err)
		assert.Equal(t, "TX-1", result.TransactionId)
		assert.Equal(t, "H-1", result.Hash)
	})

	t.Run("missing hash", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /qr/generate/DYN": {200, `{"body":{"transactionId":"TX-1"}}`},
		})
		_, err := NewYappyClient(0, testLogger()).GenerateQr(context.Background(), credentials, "tok-1", request)
		var qrErr *QrError
		require.ErrorAs(t, err, &qrErr)
	})

	t.Run("invalid amounts are not sent", func(t *testing.T) {
		fake, credentials := newFakeYappy(t, map[string]fakeResponse{})
		bad := request
		bad.Total = 10.80
		_, err := NewYappyClient(0, testLogger()).GenerateQr(context.Background(), credentials, "tok-1", bad)
		assert.True(t, IsValidation(err))
		assert.Empty(t, fake.captured())
	})

	t.Run("vendor error", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /qr/generate/DYN": {500, `{"code":"YP-9999","message":"boom"}`},
		})
		_, err := NewYappyClient(0, testLogger()).GenerateQr(context.Background(), credentials, "tok-1", request)
		var vendorErr *VendorError
		require.ErrorAs(t, err, &vendorErr)
		assert.Equal(t, CodeInternal, vendorErr.Code)
		assert.Equal(t, "boom", vendorErr.Description)
		assert.Equal(t, 500, vendorErr.HttpStatus)
	})

	t.Run("http error without envelope", func(t *testing.T) {
		_, credentials := newFakeYappy(t, map[string]fakeResponse{
			"POST /qr/generate/DYN": {502, `bad gateway`},
		})
		_, err := NewYappyClient(0, testLogger()).GenerateQr(context.Background(), credentials, "tok-1", request)
		var vendorErr *VendorError
		require.ErrorAs(t, err, &vendorErr)
		assert.Equal(t, "HTTP-502", vendorErr.Code)
	})
}

func TestYappyClientTransactionStatus(t *testing.T) {
	tests := []struct {
		name string
		body string
		want entity.TransactionStatus
	}{
		{"nested", `{"body":{"transactionId":"TX-1","status":"COMPLETED"},"status":{"code":"YP-0000"}}`, entity.StatusCompleted},
		{"flat", `{"status":"pending"}`, entity.StatusPending},
		{"unrecognized", `{"body":{"status":"ON_HOLD"}}`, entity.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, credentials := newFakeYappy(t, map[string]fakeResponse{
				"GET /transaction/TX-1": {200, tt.body},
			})
			status, err := NewYappyClient(0, testLogger()).TransactionStatus(context.Background(), credentials, "tok-1", "TX-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, "Bearer tok-1", fake.captured()[0].header.Get("Authorization"))
		})
	}
}

func TestYappyClientVoidTransaction(t *testing.T) {
	fake, credentials := newFakeYappy(t, map[string]fakeResponse{
		"PUT /transaction/TX-1": {200, `{"status":{"code":"YP-0000"}}`},
	})
	require.NoError(t, NewYappyClient(0, testLogger()).VoidTransaction(context.Background(), credentials, "tok-1", "TX-1"))

	requests := fake.captured()
	require.Len(t, requests, 1)
	var sent entity.VoidRequest
	require.NoError(t, json.Unmarshal(requests[0].body, &sent))
	assert.Equal(t, "VOIDED", sent.Body.Status)
}

func TestYappyClientNetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	credentials := testCredentials()
	credentials.BaseUrl = url
	_, err := NewYappyClient(0, testLogger()).TransactionStatus(context.Background(), credentials, "tok-1", "TX-1")
	assert.True(t, IsNetwork(err))
}
