// Package pricing computes what a customer pays for a cart: subtotal,
// shipping fee, the discounts that apply and the final total.
//
// Evaluate is a pure function over records supplied by the caller; it never
// touches the database, so the same inputs always produce the same quote.
package pricing

import (
	"time"

	"github.com/safar/hardware-store/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Reasons a candidate discount was not applied.
const (
	ReasonInactive      = "inactive"
	ReasonNotStarted    = "not_started"
	ReasonExpired       = "expired"
	ReasonMembersOnly   = "members_only"
	ReasonPickupOnly    = "pickup_only"
	ReasonBelowMinimum  = "below_minimum"
	ReasonNotCombinable = "not_combinable"
)

type Line struct {
	ProductID int64
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

type Input struct {
	Lines          []Line
	ShippingMethod models.ShippingMethod
	Level          models.MembershipLevel
	// Discounts are the candidates the customer selected, in the order they were supplied.
	Discounts []models.Discount
	Now       time.Time
	// DeliveryFee is charged for delivery; pickup is always free.
	DeliveryFee decimal.Decimal
}

type Applied struct {
	DiscountID int64           `json:"discount_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

type Rejected struct {
	DiscountID int64  `json:"discount_id"`
	Name       string `json:"name"`
	Reason     string `json:"reason"`
}

type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	Applied        []Applied       `json:"applied_discounts"`
	Rejected       []Rejected      `json:"rejected_discounts,omitempty"`
}

// Subtotal sums unit price times quantity over all lines.
func Subtotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func ShippingFee(method models.ShippingMethod, deliveryFee decimal.Decimal) decimal.Decimal {
	if method == models.ShippingPickup {
		return decimal.Zero
	}
	return deliveryFee
}

// Eligible checks the validity window and every eligibility gate of d.
// The returned reason is empty when d applies.
func Eligible(d models.Discount, level models.MembershipLevel, method models.ShippingMethod, subtotal decimal.Decimal, now time.Time) (bool, string) {
	switch {
	case !d.Active:
		return false, ReasonInactive
	case d.StartAt.After(now):
		return false, ReasonNotStarted
	case d.EndAt != nil && d.EndAt.Before(now):
		return false, ReasonExpired
	case d.MemberOnly && (level == models.LevelFree || level == ""):
		return false, ReasonMembersOnly
	case d.PickupOnly && method != models.ShippingPickup:
		return false, ReasonPickupOnly
	case d.MinAmount != nil && subtotal.LessThan(*d.MinAmount):
		return false, ReasonBelowMinimum
	}
	return true, ""
}

// Amount is what d takes off subtotal. Percentages are floored to whole units.
func Amount(d models.Discount, subtotal decimal.Decimal) decimal.Decimal {
	if d.ValueType == models.ValuePercentage {
		return subtotal.Mul(d.Value).Div(hundred).Floor()
	}
	return d.Value
}

// Evaluate prices the input. Combinable discounts stack additively in the
// order supplied. An exclusive discount never stacks: the single largest
// exclusive discount wins only when it beats the combinable sum, otherwise
// every exclusive candidate is rejected. The final total never goes below zero.
func Evaluate(in Input) Quote {
	subtotal := Subtotal(in.Lines)
	fee := ShippingFee(in.ShippingMethod, in.DeliveryFee)

	q := Quote{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Applied:     []Applied{},
	}

	var combinable []Applied
	combinableSum := decimal.Zero
	var exclusive []Applied
	bestExclusive := -1

	for _, d := range in.Discounts {
		ok, reason := Eligible(d, in.Level, in.ShippingMethod, subtotal, in.Now)
		if !ok {
			q.Rejected = append(q.Rejected, Rejected{DiscountID: d.ID, Name: d.Name, Reason: reason})
			continue
		}

		a := Applied{DiscountID: d.ID, Name: d.Name, Amount: Amount(d, subtotal)}
		if !d.Exclusive {
			combinable = append(combinable, a)
			combinableSum = combinableSum.Add(a.Amount)
			continue
		}

		exclusive = append(exclusive, a)
		if bestExclusive < 0 || a.Amount.GreaterThan(exclusive[bestExclusive].Amount) {
			bestExclusive = len(exclusive) - 1
		}
	}

	if bestExclusive >= 0 && exclusive[bestExclusive].Amount.GreaterThan(combinableSum) {
		q.Applied = append(q.Applied, exclusive[bestExclusive])
		for i, a := range exclusive {
			if i != bestExclusive {
				q.Rejected = append(q.Rejected, Rejected{DiscountID: a.DiscountID, Name: a.Name, Reason: ReasonNotCombinable})
			}
		}
		for _, a := range combinable {
			q.Rejected = append(q.Rejected, Rejected{DiscountID: a.DiscountID, Name: a.Name, Reason: ReasonNotCombinable})
		}
	} else {
		q.Applied = append(q.Applied, combinable...)
		for _, a := range exclusive {
			q.Rejected = append(q.Rejected, Rejected{DiscountID: a.DiscountID, Name: a.Name, Reason: ReasonNotCombinable})
		}
	}

	q.DiscountAmount = decimal.Zero
	for _, a := range q.Applied {
		q.DiscountAmount = q.DiscountAmount.Add(a.Amount)
	}

	q.FinalTotal = subtotal.Add(fee).Sub(q.DiscountAmount)
	if q.FinalTotal.IsNegative() {
		q.FinalTotal = decimal.Zero
	}

	return q
}

// WithinTolerance reports whether a client-computed total agrees with the
// server quote to within tolerance.
func WithinTolerance(server, client, tolerance decimal.Decimal) bool {
	return server.Sub(client).Abs().LessThanOrEqual(tolerance)
}
