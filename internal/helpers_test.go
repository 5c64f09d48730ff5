package internal

import (
	"context"
	"io"
	"sync"
	"time"
	"yappy/entity"
)

func testLogger() *Logger {
	return newLogger(io.Discard, "test", true, nil)
}

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testCredentials() entity.Credentials {
	return entity.Credentials{
		ApiKey:    "api-key-123",
		SecretKey: "secret-key-456",
		DeviceId:  "device-1",
		GroupId:   "group-1",
		BaseUrl:   "http://yappy.test",
	}
}

// fakeProvider scripts provider answers and counts calls.
type fakeProvider struct {
	mutex sync.Mutex

	openErr   error
	token     string
	qrErr     error
	statuses  []string
	statusErr error
	voidErr   error
	// called inside TransactionStatus, before answering
	onStatus func(call int)
	// when set, GenerateQr signals qrEntered and waits for qrRelease
	qrEntered chan struct{}
	qrRelease chan struct{}

	// order of session and void calls, e.g. "close:token-1"
	calls []string

	opens      int
	closes     int
	closedWith []string
	qrs        int
	statusHits int
	voids      int
}

func newFakeProvider(statuses ...string) *fakeProvider {
	return &fakeProvider{token: "token-1", statuses: statuses}
}

func (f *fakeProvider) OpenSession(_ context.Context, _ entity.Credentials) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.opens++
	if f.openErr != nil {
		return "", f.openErr
	}
	return f.token, nil
}

func (f *fakeProvider) CloseSession(_ context.Context, _ entity.Credentials, token string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.closes++
	f.closedWith = append(f.closedWith, token)
	f.calls = append(f.calls, "close:"+token)
}

func (f *fakeProvider) GenerateQr(_ context.Context, _ entity.Credentials, _ string, request entity.PaymentRequest) (*entity.QrResult, error) {
	if f.qrRelease != nil {
		close(f.qrEntered)
		<-f.qrRelease
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.qrs++
	if f.qrErr != nil {
		return nil, f.qrErr
	}
	return &entity.QrResult{TransactionId: "tx-" + request.OrderId, Hash: "hash-" + request.OrderId}, nil
}

func (f *fakeProvider) TransactionStatus(_ context.Context, _ entity.Credentials, _ string, _ string) (entity.TransactionStatus, error) {
	f.mutex.Lock()
	f.statusHits++
	call := f.statusHits
	hook := f.onStatus
	f.mutex.Unlock()
	if hook != nil {
		hook(call)
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.statusErr != nil {
		return entity.StatusUnknown, f.statusErr
	}
	if len(f.statuses) == 0 {
		return entity.StatusPending, nil
	}
	index := call - 1
	if index >= len(f.statuses) {
		index = len(f.statuses) - 1
	}
	return entity.ParseStatus(f.statuses[index]), nil
}

func (f *fakeProvider) VoidTransaction(_ context.Context, _ entity.Credentials, token string, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.voids++
	f.calls = append(f.calls, "void:"+token)
	return f.voidErr
}

func (f *fakeProvider) callOrder() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) counts() (opens, closes, qrs, statuses, voids int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.opens, f.closes, f.qrs, f.statusHits, f.voids
}

// memoryTokens is a SessionTokens kept in memory.
type memoryTokens struct {
	mutex sync.Mutex
	token string
}

func (m *memoryTokens) LastToken(context.Context) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.token, nil
}

func (m *memoryTokens) RememberToken(_ context.Context, token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.token = token
	return nil
}

func (m *memoryTokens) ForgetToken(_ context.Context, token string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.token == token {
		m.token = ""
	}
	return nil
}

func collect(events <-chan entity.FlowEvent) []entity.FlowEvent {
	var all []entity.FlowEvent
	for event := range events {
		all = append(all, event)
	}
	return all
}

func eventTypes(events []entity.FlowEvent) []string {
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, string(event.Type))
	}
	return types
}
