package internal

import (
	"context"
	"errors"
	"fmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"sync"
	"time"
	"yappy/entity"
	"yappy/services"
)

const cleanupTimeout = 15 * time.Second

const tracerName = "yappy/payment-flow"

// SessionTokens remembers the token of a session that was opened and not yet closed.
type SessionTokens interface {
	LastToken(ctx context.Context) (string, error)
	RememberToken(ctx context.Context, token string) error
	ForgetToken(ctx context.Context, token string) error
}

// Flow runs one payment: open session, generate QR, poll the transaction status,
// close the session. The session is closed exactly once, on every exit path.
// A Flow is used for a single Run; Cancel may be called from another goroutine.
type Flow struct {
	provider    services.Provider
	credentials entity.Credentials
	logger      services.LogHandler
	tokens      SessionTokens
	tracer      trace.Tracer
	poller      *Poller
	events      chan entity.FlowEvent

	// cleanup orders void before close between Run and Cancel
	cleanup     sync.Mutex
	mutex       sync.Mutex
	started     bool
	finished    bool
	cancelled   bool
	voided      bool
	orderId     string
	session     *entity.Session
	transaction *entity.Transaction
	err         error
}

func NewFlow(provider services.Provider, credentials entity.Credentials, policy RetryPolicy, logger services.LogHandler) *Flow {
	poller := NewPoller(policy, logger)
	return &Flow{
		provider:    provider,
		credentials: credentials.WithDefaults(),
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		poller:      poller,
		events:      make(chan entity.FlowEvent, poller.policy.MaxAttempts+4),
	}
}

// SetSessionTokens enables reuse of a remembered token when the provider
// reports the device session as already open.
func (f *Flow) SetSessionTokens(tokens SessionTokens) {
	f.tokens = tokens
}

// Events delivers flow progress. The channel is closed after the final event.
func (f *Flow) Events() <-chan entity.FlowEvent {
	return f.events
}

// Transaction returns a copy of the current transaction, nil before the QR is generated.
func (f *Flow) Transaction() *entity.Transaction {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.transaction == nil {
		return nil
	}
	t := *f.transaction
	return &t
}

// Run executes the payment and blocks until it ends. The returned error is set
// only for the FAILED outcome.
func (f *Flow) Run(ctx context.Context, request entity.PaymentRequest) (result *entity.FlowResult, err error) {
	request = request.Normalize()

	f.mutex.Lock()
	if f.started {
		f.mutex.Unlock()
		return nil, fmt.Errorf("flow for order %s already started", f.orderId)
	}
	f.started = true
	f.orderId = request.OrderId
	f.mutex.Unlock()

	ctx, span := f.tracer.Start(ctx, "payment.flow", trace.WithAttributes(
		attribute.String("order.id", request.OrderId),
		attribute.Float64("order.total", request.ChargeAmount().Total),
	))
	defer span.End()

	result = &entity.FlowResult{OrderId: request.OrderId}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		f.cleanup.Lock()
		f.closeSession(cleanupCtx)
		f.cleanup.Unlock()
		result.Transaction = f.Transaction()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("flow.outcome", string(result.Outcome)))
		f.finish(result, err)
	}()

	if err = request.Validate(); err != nil {
		result.Outcome = entity.OutcomeFailed
		return result, &ValidationError{Reason: err.Error()}
	}

	if f.isCancelled() {
		result.Outcome = entity.OutcomeCancelled
		return result, nil
	}

	token, err := f.openSession(ctx)
	if err != nil {
		return f.failed(result, err)
	}
	if f.isCancelled() {
		result.Outcome = entity.OutcomeCancelled
		return result, nil
	}

	qrCtx, qrSpan := f.tracer.Start(ctx, "payment.generate_qr")
	qr, err := f.provider.GenerateQr(qrCtx, f.credentials, token, request)
	qrSpan.End()
	if err != nil {
		return f.failed(result, err)
	}

	f.mutex.Lock()
	f.transaction = &entity.Transaction{
		YappyTransactionId: qr.TransactionId,
		LocalOrderId:       request.OrderId,
		Hash:               qr.Hash,
		Date:               qr.Date,
		Status:             entity.StatusPending,
		UpdatedAt:          time.Now(),
	}
	f.mutex.Unlock()
	f.emit(entity.EventQrReady, "", "")

	if f.isCancelled() {
		// cancel arrived while the QR was being generated
		voidCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		f.cleanup.Lock()
		if e := f.voidTransaction(voidCtx); e != nil {
			f.logger.Error(fmt.Sprintf("order %s: void transaction", request.OrderId), e)
		}
		f.cleanup.Unlock()
		cancel()
		result.Outcome = entity.OutcomeCancelled
		return result, nil
	}

	poll := f.poll(ctx, token, qr.TransactionId)
	result.Attempts = poll.Attempts

	switch poll.State {
	case PollTerminal:
		result.Outcome = entity.OutcomeOf(poll.Status)
		f.logger.Info(fmt.Sprintf("order %s: transaction %s finished with %s", request.OrderId, qr.TransactionId, poll.Status))
	case PollTimeout:
		result.Outcome = entity.OutcomeTimeout
		f.logger.Warn(fmt.Sprintf("order %s: no final status after %d attempts", request.OrderId, poll.Attempts))
	case PollCancelled:
		result.Outcome = entity.OutcomeCancelled
		if !f.isCancelled() {
			// context cancelled by the caller, not via Cancel
			voidCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
			f.cleanup.Lock()
			_ = f.voidTransaction(voidCtx)
			f.cleanup.Unlock()
			cancel()
		}
	}
	return result, nil
}

// Cancel stops polling, voids the transaction if one exists and closes the session
// regardless of the void result. Only the void error is returned. Before the QR is
// ready the running flow does the void and the close itself.
func (f *Flow) Cancel(ctx context.Context) error {
	f.mutex.Lock()
	if f.cancelled || f.finished {
		f.mutex.Unlock()
		return nil
	}
	f.cancelled = true
	orderId := f.orderId
	f.mutex.Unlock()

	f.logger.Info(fmt.Sprintf("order %s: cancel requested", orderId))
	f.poller.Cancel()

	f.cleanup.Lock()
	defer f.cleanup.Unlock()
	if f.Transaction() == nil {
		// QR not generated yet: Run voids what it gets and closes the session after
		return nil
	}
	err := f.voidTransaction(ctx)
	if err != nil {
		f.logger.Error(fmt.Sprintf("order %s: void transaction", orderId), err)
	}
	f.closeSession(ctx)
	return err
}

// Err returns the error of a FAILED run, available once the final event is sent.
func (f *Flow) Err() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.err
}

func (f *Flow) IsCancelled() bool {
	return f.isCancelled()
}

func (f *Flow) isCancelled() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.cancelled
}

func (f *Flow) failed(result *entity.FlowResult, err error) (*entity.FlowResult, error) {
	if f.isCancelled() {
		// errors caused by the cancel closing the session are not failures
		f.logger.Debug(fmt.Sprintf("order %s: error after cancel: %v", result.OrderId, err))
		result.Outcome = entity.OutcomeCancelled
		return result, nil
	}
	result.Outcome = entity.OutcomeFailed
	return result, err
}

func (f *Flow) openSession(ctx context.Context) (string, error) {
	ctx, span := f.tracer.Start(ctx, "payment.open_session")
	defer span.End()

	token, err := f.provider.OpenSession(ctx, f.credentials)
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) && sessionErr.AlreadyOpen {
		token, err = f.reuseToken(ctx, err)
	}
	if err != nil {
		return "", err
	}

	f.mutex.Lock()
	f.session = &entity.Session{Token: token, OpenedAt: time.Now()}
	f.mutex.Unlock()

	if f.tokens != nil {
		if e := f.tokens.RememberToken(ctx, token); e != nil {
			f.logger.Error("remember session token", e)
		}
	}
	f.emit(entity.EventSessionOpened, "", "")
	return token, nil
}

// reuseToken continues with the remembered token of a session that was never closed.
// Without one the flow fails: it never proceeds with an empty token.
func (f *Flow) reuseToken(ctx context.Context, openErr error) (string, error) {
	if f.tokens == nil {
		return "", openErr
	}
	token, err := f.tokens.LastToken(ctx)
	if err != nil {
		f.logger.Error("load remembered session token", err)
		return "", openErr
	}
	if token == "" {
		return "", openErr
	}
	f.logger.Warn(fmt.Sprintf("session already open, reusing token %s", secret(token)))
	return token, nil
}

func (f *Flow) poll(ctx context.Context, token, transactionId string) PollResult {
	ctx, span := f.tracer.Start(ctx, "payment.poll_status")
	defer span.End()

	f.poller.OnStatus = func(attempt int, status entity.TransactionStatus) {
		f.mutex.Lock()
		f.transaction.Status = status
		f.transaction.UpdatedAt = time.Now()
		f.mutex.Unlock()
		if !status.IsTerminal() {
			f.emit(entity.EventStatus, "", "")
		}
	}
	result := f.poller.Run(ctx, func(ctx context.Context, attempt int) (entity.TransactionStatus, error) {
		return f.provider.TransactionStatus(ctx, f.credentials, token, transactionId)
	})
	span.SetAttributes(
		attribute.Int("poll.attempts", result.Attempts),
		attribute.String("poll.state", string(result.State)),
	)
	return result
}

func (f *Flow) voidTransaction(ctx context.Context) error {
	f.mutex.Lock()
	if f.transaction == nil || f.voided || f.transaction.IsFinished() || f.session == nil || f.session.Closed {
		f.mutex.Unlock()
		return nil
	}
	f.voided = true
	transactionId := f.transaction.YappyTransactionId
	token := f.session.Token
	f.mutex.Unlock()

	ctx, span := f.tracer.Start(ctx, "payment.void_transaction")
	defer span.End()

	err := f.provider.VoidTransaction(ctx, f.credentials, token, transactionId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("void transaction %s: %w", transactionId, err)
	}
	f.mutex.Lock()
	f.transaction.Status = entity.StatusVoided
	f.transaction.UpdatedAt = time.Now()
	f.mutex.Unlock()
	return nil
}

// closeSession closes the open session once; later calls do nothing.
func (f *Flow) closeSession(ctx context.Context) {
	f.mutex.Lock()
	if f.session == nil || f.session.Closed {
		f.mutex.Unlock()
		return
	}
	f.session.Closed = true
	token := f.session.Token
	f.mutex.Unlock()

	ctx, span := f.tracer.Start(ctx, "payment.close_session")
	f.provider.CloseSession(ctx, f.credentials, token)
	span.End()
	if f.tokens != nil {
		if err := f.tokens.ForgetToken(ctx, token); err != nil {
			f.logger.Error("forget session token", err)
		}
	}
}

func (f *Flow) emit(eventType entity.FlowEventType, outcome entity.FlowOutcome, errText string) {
	event := entity.FlowEvent{
		Type:        eventType,
		OrderId:     f.orderId,
		Transaction: f.Transaction(),
		Outcome:     outcome,
		Error:       errText,
		Time:        time.Now(),
	}
	select {
	case f.events <- event:
	default:
		f.logger.Warn(fmt.Sprintf("order %s: event %s dropped", f.orderId, eventType))
	}
}

func (f *Flow) finish(result *entity.FlowResult, err error) {
	f.mutex.Lock()
	f.err = err
	f.finished = true
	f.mutex.Unlock()
	errText := ""
	if err != nil {
		errText = err.Error()
		f.logger.Error(fmt.Sprintf("order %s: payment failed", result.OrderId), err)
	}
	// the final event must not be dropped
	f.events <- entity.FlowEvent{
		Type:        entity.EventFinal,
		OrderId:     result.OrderId,
		Transaction: result.Transaction,
		Outcome:     result.Outcome,
		Error:       errText,
		Time:        time.Now(),
	}
	close(f.events)
}
