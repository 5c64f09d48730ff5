package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"yappy/config"
	"yappy/entity"
	"yappy/services"
)

// Payments runs Yappy payment flows for the checkout. Each order has its own flow,
// guarded by a per-order lock so different orders proceed in parallel.
type Payments struct {
	database    services.Database
	logger      services.LogHandler
	credentials services.Credentials
	tokens      SessionTokens
	policy      RetryPolicy
	newProvider func() services.Provider
	retention   time.Duration
	locks       sync.Map // map[string]*sync.Mutex for per-order locking
	active      sync.Map // map[string]*activePayment
}

type activePayment struct {
	flow   *Flow
	mutex  sync.Mutex
	record *entity.PaymentRecord
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (a *activePayment) snapshot() *entity.PaymentRecord {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	record := *a.record
	return &record
}

func (a *activePayment) markReady() {
	a.once.Do(func() { close(a.ready) })
}

func (a *activePayment) isDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// finished payments stay readable this long when there is no database
const defaultRetention = 10 * time.Minute

// NewPayments creates the payment service; every flow gets its own Yappy client.
func NewPayments(conf *config.Config, credentials *CredentialsStore, logger services.LogHandler) *Payments {
	timeout := conf.Http.Timeout
	return &Payments{
		logger:      logger,
		credentials: credentials,
		tokens:      credentials,
		policy: RetryPolicy{
			Interval:    conf.Poll.Interval,
			MaxAttempts: conf.Poll.MaxAttempts,
		},
		retention: defaultRetention,
		newProvider: func() services.Provider {
			return NewYappyClient(timeout, logger)
		},
	}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

// SetProvider replaces the provider factory.
func (p *Payments) SetProvider(newProvider func() services.Provider) {
	p.newProvider = newProvider
}

func (p *Payments) SetPolicy(policy RetryPolicy) {
	p.policy = policy
}

// SetRetention sets how long a finished payment is kept in memory without a database.
func (p *Payments) SetRetention(retention time.Duration) {
	p.retention = retention
}

// lockOrder acquires a lock for a specific order to prevent concurrent modifications.
func (p *Payments) lockOrder(id string) *sync.Mutex {
	value, _ := p.locks.LoadOrStore(id, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex
}

func (p *Payments) unlockOrder(id string, mutex *sync.Mutex) {
	mutex.Unlock()
	p.locks.Delete(id)
}

// StartPayment starts a flow for the request and returns once the QR is ready
// or the flow ended, whichever comes first.
func (p *Payments) StartPayment(ctx context.Context, request entity.PaymentRequest) (*entity.PaymentRecord, error) {
	request = request.Normalize()
	if err := request.Validate(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	mutex := p.lockOrder(request.OrderId)
	defer p.unlockOrder(request.OrderId, mutex)

	if value, ok := p.active.Load(request.OrderId); ok && !value.(*activePayment).isDone() {
		return nil, fmt.Errorf("order %s: %w", request.OrderId, ErrConflict)
	}
	if p.database != nil {
		_, err := p.database.GetPayment(ctx, request.OrderId)
		if err == nil {
			return nil, fmt.Errorf("order %s: %w", request.OrderId, ErrConflict)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check order %s: %w", request.OrderId, err)
		}
	}

	credentials, err := p.credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	flow := NewFlow(p.newProvider(), credentials, p.policy, p.logger)
	if p.tokens != nil {
		flow.SetSessionTokens(p.tokens)
	}
	payment := &activePayment{
		flow:   flow,
		record: entity.NewPaymentRecord(request),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.active.Store(request.OrderId, payment)
	p.saveRecord(ctx, payment.snapshot())
	p.logger.Info(fmt.Sprintf("order %s: payment started; total %.2f", request.OrderId, payment.record.Charge.Total))

	go p.consumeEvents(payment)
	go p.runFlowWithRecovery(context.WithoutCancel(ctx), payment, request)

	select {
	case <-payment.ready:
	case <-ctx.Done():
		return payment.snapshot(), ctx.Err()
	}
	record := payment.snapshot()
	if record.IsFinished && record.Outcome == entity.OutcomeFailed {
		return record, p.flowError(payment)
	}
	return record, nil
}

// runFlowWithRecovery runs the flow with a deadline above the poll ceiling and recovers panics.
func (p *Payments) runFlowWithRecovery(parentCtx context.Context, payment *activePayment, request entity.PaymentRequest) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in payment flow", fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(parentCtx, p.policy.Ceiling()+4*DefaultRequestTimeout)
	defer cancel()

	result, err := payment.flow.Run(ctx, request)
	if err != nil {
		// already reported by the final event
		return
	}
	p.logger.Info(fmt.Sprintf("order %s: payment finished with %s after %d attempts", result.OrderId, result.Outcome, result.Attempts))
}

func (p *Payments) consumeEvents(payment *activePayment) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in payment events", fmt.Errorf("panic: %v", r))
		}
		payment.markReady()
		close(payment.done)
	}()

	for event := range payment.flow.Events() {
		payment.mutex.Lock()
		payment.record.Apply(event)
		payment.mutex.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		p.saveRecord(ctx, payment.snapshot())
		cancel()

		if event.Type == entity.EventQrReady || event.IsFinal() {
			payment.markReady()
		}
		if event.IsFinal() {
			p.release(event.OrderId, payment)
		}
	}
}

// release drops a finished payment from memory. With a database the stored record
// serves further reads at once, without one the record lives for the retention time.
func (p *Payments) release(orderId string, payment *activePayment) {
	if p.database != nil {
		p.active.CompareAndDelete(orderId, payment)
		return
	}
	time.AfterFunc(p.retention, func() {
		p.active.CompareAndDelete(orderId, payment)
	})
}

func (p *Payments) flowError(payment *activePayment) error {
	if err := payment.flow.Err(); err != nil {
		return err
	}
	return errors.New("payment failed")
}

func (p *Payments) saveRecord(ctx context.Context, record *entity.PaymentRecord) {
	if p.database == nil {
		return
	}
	if err := p.database.SavePayment(ctx, record); err != nil {
		p.logger.Error(fmt.Sprintf("order %s: save payment", record.OrderId), err)
	}
}

// GetPayment returns the live state of a running flow or the stored record.
func (p *Payments) GetPayment(ctx context.Context, orderId string) (*entity.PaymentRecord, error) {
	if value, ok := p.active.Load(orderId); ok {
		return value.(*activePayment).snapshot(), nil
	}
	if p.database == nil {
		return nil, fmt.Errorf("order %s: %w", orderId, ErrNotFound)
	}
	record, err := p.database.GetPayment(ctx, orderId)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderId, ErrNotFound)
		}
		return nil, fmt.Errorf("get payment %s: %w", orderId, err)
	}
	return record, nil
}

// CancelPayment cancels a running flow and waits for it to end. Cancelling a
// finished payment returns its record unchanged.
func (p *Payments) CancelPayment(ctx context.Context, orderId string) (*entity.PaymentRecord, error) {
	value, ok := p.active.Load(orderId)
	if !ok {
		return p.GetPayment(ctx, orderId)
	}
	payment := value.(*activePayment)
	if payment.isDone() {
		return payment.snapshot(), nil
	}

	if err := payment.flow.Cancel(ctx); err != nil {
		// void is best effort, the session is closed anyway
		p.logger.Warn(fmt.Sprintf("order %s: cancel: %v", orderId, err))
	}
	select {
	case <-payment.done:
	case <-ctx.Done():
		return payment.snapshot(), ctx.Err()
	}
	return payment.snapshot(), nil
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
