package entity

import (
	"fmt"
	"github.com/google/uuid"
	"math"
	"strings"
)

// AmountTolerance is the allowed difference between the charge total and the sum of its parts.
const AmountTolerance = 0.001

// PaymentRequest is a charge requested by the checkout.
type PaymentRequest struct {
	// Amount is the subtotal before tax, tip and discount
	Amount   float64 `json:"amount"`
	Tax      float64 `json:"tax,omitempty"`
	Tip      float64 `json:"tip,omitempty"`
	Discount float64 `json:"discount,omitempty"`
	// Total is computed from the other parts when zero
	Total       float64 `json:"total,omitempty"`
	OrderId     string  `json:"order_id,omitempty"`
	Description string  `json:"description,omitempty"`
}

// ChargeAmount is the breakdown of a transaction sent to the provider.
type ChargeAmount struct {
	SubTotal float64 `json:"sub_total"`
	Tax      float64 `json:"tax"`
	Tip      float64 `json:"tip"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Normalize fills the order id when the caller did not supply one.
func (r PaymentRequest) Normalize() PaymentRequest {
	r.OrderId = strings.TrimSpace(r.OrderId)
	if r.OrderId == "" {
		r.OrderId = NewOrderId()
	}
	if r.Description == "" {
		r.Description = fmt.Sprintf("order %s", r.OrderId)
	}
	return r
}

// ChargeAmount builds the charge breakdown for the request.
func (r PaymentRequest) ChargeAmount() ChargeAmount {
	total := r.Total
	if total == 0 {
		total = r.Amount + r.Tax + r.Tip - r.Discount
	}
	return ChargeAmount{
		SubTotal: r.Amount,
		Tax:      r.Tax,
		Tip:      r.Tip,
		Discount: r.Discount,
		Total:    total,
	}
}

// Validate checks the request before anything is sent to the provider.
func (r PaymentRequest) Validate() error {
	if r.Amount <= 0 || math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return fmt.Errorf("amount must be positive, got %v", r.Amount)
	}
	return r.ChargeAmount().Validate()
}

// Validate checks that subTotal + tax + tip - discount matches the total.
func (c ChargeAmount) Validate() error {
	for name, v := range map[string]float64{
		"sub_total": c.SubTotal,
		"tax":       c.Tax,
		"tip":       c.Tip,
		"discount":  c.Discount,
		"total":     c.Total,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is invalid: %v", name, v)
		}
	}
	sum := c.SubTotal + c.Tax + c.Tip - c.Discount
	if diff := math.Abs(sum - c.Total); diff > AmountTolerance {
		return fmt.Errorf("charge amount mismatch: %.3f + %.3f + %.3f - %.3f = %.3f, total %.3f",
			c.SubTotal, c.Tax, c.Tip, c.Discount, sum, c.Total)
	}
	return nil
}

// NewOrderId generates a 15 character order id accepted by the provider.
func NewOrderId() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:15])
}
